// Package query serves point lookups against the materialized store.
//
// Each lookup returns a wire view or ErrNotFound. Views are plain structs
// whose JSON encoding is the read API's response body.
package query

import (
	"errors"
	"time"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

// ErrNotFound is returned when the requested key has no entry.
var ErrNotFound = errors.New("not found")

// BindingView is the read shape of a binding.
// Exactly one of (ObjectType, ObjectID) or ZoneID is set.
type BindingView struct {
	TagUID     string `json:"tagUid"`
	Target     string `json:"target"`
	ObjectType string `json:"objectType,omitempty"`
	ObjectID   string `json:"objectId,omitempty"`
	ZoneID     string `json:"zoneId,omitempty"`
}

// PlacementView is the read shape of a placement.
// Exactly one of ZoneID or CtbPath is set.
type PlacementView struct {
	ObjectType string    `json:"objectType"`
	ObjectID   string    `json:"objectId"`
	ZoneID     string    `json:"zoneId,omitempty"`
	CtbPath    string    `json:"ctbPath,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TransactionView is the read shape of a transaction.
type TransactionView struct {
	TxID             string     `json:"txId"`
	ObjectType       string     `json:"objectType"`
	ObjectID         string     `json:"objectId"`
	Status           string     `json:"status"`
	CheckoutAt       time.Time  `json:"checkoutAt"`
	ExpectedReturnAt *time.Time `json:"expectedReturnAt,omitempty"`
	ReturnedAt       *time.Time `json:"returnedAt,omitempty"`
}

// Source is the read side of the store.
type Source interface {
	Binding(tagUID string) (ir.Binding, bool)
	Placement(obj ir.ObjectRef) (ir.Placement, bool)
	Transaction(txID string) (ir.Transaction, bool)
}

var _ Source = (*store.Store)(nil)

// Service answers lookups. It never mutates its source.
type Service struct {
	src Source
}

// NewService creates a Service over src.
func NewService(src Source) *Service {
	return &Service{src: src}
}

// Binding looks up the binding for tagUID.
func (s *Service) Binding(tagUID string) (BindingView, error) {
	b, ok := s.src.Binding(tagUID)
	if !ok {
		return BindingView{}, ErrNotFound
	}
	return NewBindingView(b), nil
}

// Placement looks up the placement of (objectType, objectID).
func (s *Service) Placement(objectType, objectID string) (PlacementView, error) {
	p, ok := s.src.Placement(ir.ObjectRef{Type: objectType, ID: objectID})
	if !ok {
		return PlacementView{}, ErrNotFound
	}
	return NewPlacementView(p), nil
}

// Transaction looks up a transaction by ID.
func (s *Service) Transaction(txID string) (TransactionView, error) {
	tx, ok := s.src.Transaction(txID)
	if !ok {
		return TransactionView{}, ErrNotFound
	}
	return NewTransactionView(tx), nil
}

// NewBindingView converts a binding to its read shape.
func NewBindingView(b ir.Binding) BindingView {
	v := BindingView{TagUID: b.TagUID}
	switch t := b.Target.(type) {
	case ir.ObjectTarget:
		v.Target = ir.TargetObject
		v.ObjectType = t.Object.Type
		v.ObjectID = t.Object.ID
	case ir.ZoneTarget:
		v.Target = ir.TargetZone
		v.ZoneID = t.ZoneID
	}
	return v
}

// NewPlacementView converts a placement to its read shape.
func NewPlacementView(p ir.Placement) PlacementView {
	v := PlacementView{
		ObjectType: p.Object.Type,
		ObjectID:   p.Object.ID,
		UpdatedAt:  p.UpdatedAt,
	}
	switch loc := p.Location.(type) {
	case ir.ZoneLocation:
		v.ZoneID = loc.ZoneID
	case ir.ContainerLocation:
		v.CtbPath = loc.Path
	}
	return v
}

// NewTransactionView converts a transaction to its read shape.
func NewTransactionView(tx ir.Transaction) TransactionView {
	return TransactionView{
		TxID:             tx.ID,
		ObjectType:       tx.Object.Type,
		ObjectID:         tx.Object.ID,
		Status:           string(tx.Status),
		CheckoutAt:       tx.CheckoutAt,
		ExpectedReturnAt: tx.ExpectedReturnAt,
		ReturnedAt:       tx.ReturnedAt,
	}
}
