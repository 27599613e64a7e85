package ir

// EventKind names the kind of a domain event.
type EventKind string

const (
	KindBind     EventKind = "BIND"
	KindUnbind   EventKind = "UNBIND"
	KindCheckin  EventKind = "CHECKIN"
	KindMove     EventKind = "MOVE"
	KindCheckout EventKind = "CHECKOUT"
	KindReturn   EventKind = "RETURN"
)

// Kinds lists every recognised event kind in declaration order.
// A projector must handle each member; see projector tests.
var Kinds = []EventKind{
	KindBind,
	KindUnbind,
	KindCheckin,
	KindMove,
	KindCheckout,
	KindReturn,
}

// Known reports whether k is a member of Kinds.
func (k EventKind) Known() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k EventKind) String() string {
	return string(k)
}
