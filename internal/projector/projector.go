// Package projector applies one event to the materialized store.
//
// Apply is the only entry point. It decodes the payload for the event's
// kind and performs that kind's state transition through a store.Writer.
// It never touches the seen-key set; deduplication belongs to the caller.
package projector

import (
	"time"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

// Rejection messages.
const (
	MessageUnknownKind = "Unknown kind"
	MessageRejected    = "Rejected by projector"
)

// Outcome is the projector's verdict for one event.
// Code and Message are set only when Accepted is false.
type Outcome struct {
	Accepted bool
	Code     string
	Message  string
}

func accepted() Outcome {
	return Outcome{Accepted: true}
}

func rejected(message string) Outcome {
	return Outcome{Code: ir.CodeSchemaInvalid, Message: message}
}

// Apply performs ev's state transition at event time at.
//
// Every recognised kind is accepted. An unrecognised kind, or a payload
// that matches none of its kind's variants, is rejected with
// SCHEMA_INVALID and leaves the store untouched.
func Apply(w store.Writer, ev ir.Event, at time.Time) Outcome {
	var err error

	switch ev.Kind {
	case ir.KindBind:
		err = applyBind(w, ev)
	case ir.KindUnbind:
		err = applyUnbind(w, ev)
	case ir.KindCheckin, ir.KindMove:
		err = applyPlace(w, ev, at)
	case ir.KindCheckout:
		err = applyCheckout(w, ev, at)
	case ir.KindReturn:
		err = applyReturn(w, ev, at)
	default:
		return rejected(MessageUnknownKind)
	}

	if err != nil {
		return rejected(err.Error())
	}
	return accepted()
}

func applyBind(w store.Writer, ev ir.Event) error {
	p, err := ir.DecodeBind(ev.Payload)
	if err != nil {
		return err
	}
	w.PutBinding(ir.Binding{TagUID: p.TagUID, Target: p.Target})
	return nil
}

// applyUnbind succeeds whether or not the tag was bound.
func applyUnbind(w store.Writer, ev ir.Event) error {
	p, err := ir.DecodeUnbind(ev.Payload)
	if err != nil {
		return err
	}
	w.DeleteBinding(p.TagUID)
	return nil
}

// applyPlace overwrites the placement. MOVE does not require a prior one.
func applyPlace(w store.Writer, ev ir.Event, at time.Time) error {
	p, err := ir.DecodePlace(ev.Kind, ev.Payload)
	if err != nil {
		return err
	}
	w.PutPlacement(ir.Placement{Object: p.Object, Location: p.Location, UpdatedAt: at})
	return nil
}

// applyCheckout opens a transaction keyed by the event ID and indexes it
// under the object. An existing OPEN transaction for the same object is
// left OPEN but loses its index entry.
func applyCheckout(w store.Writer, ev ir.Event, at time.Time) error {
	p, err := ir.DecodeCheckout(ev.Payload)
	if err != nil {
		return err
	}

	txID := ev.EventID
	if prev, ok := w.Transaction(txID); ok && prev.Object != p.Object {
		if id, ok := w.OpenTransaction(prev.Object); ok && id == txID {
			w.ClearOpenTransaction(prev.Object)
		}
	}

	w.PutTransaction(ir.Transaction{
		ID:               txID,
		Object:           p.Object,
		Status:           ir.TxOpen,
		CheckoutAt:       at,
		ExpectedReturnAt: p.ExpectedReturnAt,
	})
	w.SetOpenTransaction(p.Object, txID)
	return nil
}

// applyReturn closes the referenced transaction if it is OPEN.
// An unresolvable reference or an already RETURNED transaction is a no-op.
func applyReturn(w store.Writer, ev ir.Event, at time.Time) error {
	p, err := ir.DecodeReturn(ev.Payload)
	if err != nil {
		return err
	}

	var txID string
	switch ref := p.Ref.(type) {
	case ir.ReturnByTx:
		txID = ref.TxID
	case ir.ReturnByObject:
		id, ok := w.OpenTransaction(ref.Object)
		if !ok {
			return nil
		}
		txID = id
	}

	tx, ok := w.Transaction(txID)
	if !ok || tx.Status != ir.TxOpen {
		return nil
	}

	returnedAt := at
	tx.Status = ir.TxReturned
	tx.ReturnedAt = &returnedAt
	w.PutTransaction(tx)

	// Only drop the index entry that points at this transaction; a newer
	// overlapping checkout keeps its entry.
	if id, ok := w.OpenTransaction(tx.Object); ok && id == txID {
		w.ClearOpenTransaction(tx.Object)
	}
	return nil
}
