package ir

import "time"

// ObjectRef identifies a physical object by type and identifier.
// It is comparable and used directly as a map key.
type ObjectRef struct {
	Type string
	ID   string
}

func (o ObjectRef) String() string {
	return o.Type + ":" + o.ID
}

// BindTarget is what a tag is bound to: ObjectTarget or ZoneTarget.
type BindTarget interface {
	bindTarget()
}

// ObjectTarget binds a tag to a specific object.
type ObjectTarget struct {
	Object ObjectRef
}

// ZoneTarget binds a tag to a zone.
type ZoneTarget struct {
	ZoneID string
}

func (ObjectTarget) bindTarget() {}
func (ZoneTarget) bindTarget()   {}

// Target names as they appear on the wire.
const (
	TargetObject = "OBJECT"
	TargetZone   = "ZONE"
)

// Binding associates a tag with exactly one target. Last write wins.
type Binding struct {
	TagUID string
	Target BindTarget
}

// Location is where an object currently sits: ZoneLocation or ContainerLocation.
type Location interface {
	location()
}

// ZoneLocation places an object directly in a zone.
type ZoneLocation struct {
	ZoneID string
}

// ContainerLocation places an object at a path inside nested containers.
type ContainerLocation struct {
	Path string
}

func (ZoneLocation) location()      {}
func (ContainerLocation) location() {}

// Placement is the current location of one object.
type Placement struct {
	Object    ObjectRef
	Location  Location
	UpdatedAt time.Time
}

// TxStatus is the lifecycle state of a Transaction.
type TxStatus string

const (
	TxOpen     TxStatus = "OPEN"
	TxReturned TxStatus = "RETURNED"
)

// Transaction is a checkout/return record for one object.
type Transaction struct {
	ID               string
	Object           ObjectRef
	Status           TxStatus
	CheckoutAt       time.Time
	ExpectedReturnAt *time.Time
	ReturnedAt       *time.Time
}
