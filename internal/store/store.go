package store

import (
	"sync"

	"github.com/roach88/aether/internal/ir"
)

// Reader exposes single-key lookups over all five structures.
type Reader interface {
	Binding(tagUID string) (ir.Binding, bool)
	Placement(obj ir.ObjectRef) (ir.Placement, bool)
	Transaction(txID string) (ir.Transaction, bool)
	OpenTransaction(obj ir.ObjectRef) (string, bool)
	Seen(eventKey string) bool
}

// Writer adds single-key mutations to Reader.
// A Writer is only valid inside the Update callback that received it.
type Writer interface {
	Reader
	PutBinding(b ir.Binding)
	DeleteBinding(tagUID string)
	PutPlacement(p ir.Placement)
	PutTransaction(tx ir.Transaction)
	SetOpenTransaction(obj ir.ObjectRef, txID string)
	ClearOpenTransaction(obj ir.ObjectRef)
	MarkSeen(eventKey string)
}

// Store is the in-memory materialized state.
// The zero value is not usable; call New.
type Store struct {
	mu    sync.RWMutex
	state *state
}

// state is the unlocked data. It implements Writer.
type state struct {
	bindings     map[string]ir.Binding
	placements   map[ir.ObjectRef]ir.Placement
	transactions map[string]ir.Transaction
	openTx       map[ir.ObjectRef]string
	seen         map[string]struct{}
}

// New returns an empty store.
func New() *Store {
	return &Store{state: newState()}
}

func newState() *state {
	return &state{
		bindings:     make(map[string]ir.Binding),
		placements:   make(map[ir.ObjectRef]ir.Placement),
		transactions: make(map[string]ir.Transaction),
		openTx:       make(map[ir.ObjectRef]string),
		seen:         make(map[string]struct{}),
	}
}

// Update runs fn with exclusive access to the store.
//
// Every mutation fn makes becomes visible to readers at once when Update
// returns. There is no rollback: mutations made before fn returns an error
// are kept.
func (s *Store) Update(fn func(w Writer) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// View runs fn with shared access to the store.
// fn must not retain r after returning.
func (s *Store) View(fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.state)
}

// Binding returns the binding for tagUID.
func (s *Store) Binding(tagUID string) (ir.Binding, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Binding(tagUID)
}

// Placement returns the current placement of obj.
func (s *Store) Placement(obj ir.ObjectRef) (ir.Placement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Placement(obj)
}

// Transaction returns the transaction with the given ID.
func (s *Store) Transaction(txID string) (ir.Transaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Transaction(txID)
}

// OpenTransaction returns the ID of obj's OPEN transaction, if any.
func (s *Store) OpenTransaction(obj ir.ObjectRef) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.OpenTransaction(obj)
}

// Seen reports whether eventKey was accepted before.
func (s *Store) Seen(eventKey string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Seen(eventKey)
}

// Stats counts entries in each structure.
type Stats struct {
	Bindings         int `json:"bindings"`
	Placements       int `json:"placements"`
	Transactions     int `json:"transactions"`
	OpenTransactions int `json:"openTransactions"`
	SeenKeys         int `json:"seenKeys"`
}

// Stats returns a consistent count of every structure.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		Bindings:         len(s.state.bindings),
		Placements:       len(s.state.placements),
		Transactions:     len(s.state.transactions),
		OpenTransactions: len(s.state.openTx),
		SeenKeys:         len(s.state.seen),
	}
}

func (st *state) Binding(tagUID string) (ir.Binding, bool) {
	b, ok := st.bindings[tagUID]
	return b, ok
}

func (st *state) Placement(obj ir.ObjectRef) (ir.Placement, bool) {
	p, ok := st.placements[obj]
	return p, ok
}

func (st *state) Transaction(txID string) (ir.Transaction, bool) {
	tx, ok := st.transactions[txID]
	return tx, ok
}

func (st *state) OpenTransaction(obj ir.ObjectRef) (string, bool) {
	id, ok := st.openTx[obj]
	return id, ok
}

func (st *state) Seen(eventKey string) bool {
	_, ok := st.seen[eventKey]
	return ok
}

func (st *state) PutBinding(b ir.Binding) {
	st.bindings[b.TagUID] = b
}

// DeleteBinding is a no-op when tagUID is not bound.
func (st *state) DeleteBinding(tagUID string) {
	delete(st.bindings, tagUID)
}

func (st *state) PutPlacement(p ir.Placement) {
	st.placements[p.Object] = p
}

func (st *state) PutTransaction(tx ir.Transaction) {
	st.transactions[tx.ID] = tx
}

func (st *state) SetOpenTransaction(obj ir.ObjectRef, txID string) {
	st.openTx[obj] = txID
}

func (st *state) ClearOpenTransaction(obj ir.ObjectRef) {
	delete(st.openTx, obj)
}

func (st *state) MarkSeen(eventKey string) {
	st.seen[eventKey] = struct{}{}
}
