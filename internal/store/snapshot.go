package store

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/aether/internal/ir"
)

// Snapshot is a point-in-time copy of the whole store.
// Every slice is sorted so equal stores produce equal snapshots.
type Snapshot struct {
	Bindings     []ir.Binding
	Placements   []ir.Placement
	Transactions []ir.Transaction
	OpenIndex    []OpenEntry
	SeenKeys     []string
}

// OpenEntry is one row of the open-transaction index.
type OpenEntry struct {
	Object ir.ObjectRef
	TxID   string
}

// Snapshot copies every structure under the shared lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	snap := Snapshot{
		Bindings:     make([]ir.Binding, 0, len(st.bindings)),
		Placements:   make([]ir.Placement, 0, len(st.placements)),
		Transactions: make([]ir.Transaction, 0, len(st.transactions)),
		OpenIndex:    make([]OpenEntry, 0, len(st.openTx)),
		SeenKeys:     make([]string, 0, len(st.seen)),
	}
	for _, b := range st.bindings {
		snap.Bindings = append(snap.Bindings, b)
	}
	for _, p := range st.placements {
		snap.Placements = append(snap.Placements, p)
	}
	for _, tx := range st.transactions {
		snap.Transactions = append(snap.Transactions, copyTransaction(tx))
	}
	for obj, id := range st.openTx {
		snap.OpenIndex = append(snap.OpenIndex, OpenEntry{Object: obj, TxID: id})
	}
	for key := range st.seen {
		snap.SeenKeys = append(snap.SeenKeys, key)
	}

	slices.SortFunc(snap.Bindings, func(a, b ir.Binding) int { return cmp.Compare(a.TagUID, b.TagUID) })
	slices.SortFunc(snap.Placements, func(a, b ir.Placement) int { return compareObjects(a.Object, b.Object) })
	slices.SortFunc(snap.Transactions, func(a, b ir.Transaction) int { return cmp.Compare(a.ID, b.ID) })
	slices.SortFunc(snap.OpenIndex, func(a, b OpenEntry) int { return compareObjects(a.Object, b.Object) })
	slices.Sort(snap.SeenKeys)
	return snap
}

// Verify checks the open-index invariant against the transactions map.
// It returns the first violation found, or nil.
func (s *Store) Verify() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := s.state
	for obj, id := range st.openTx {
		tx, ok := st.transactions[id]
		if !ok {
			return fmt.Errorf("open index %s -> %s: transaction missing", obj, id)
		}
		if tx.Object != obj {
			return fmt.Errorf("open index %s -> %s: transaction belongs to %s", obj, id, tx.Object)
		}
		if tx.Status != ir.TxOpen {
			return fmt.Errorf("open index %s -> %s: transaction is %s", obj, id, tx.Status)
		}
	}
	for id, tx := range st.transactions {
		if tx.Status == ir.TxReturned && tx.ReturnedAt == nil {
			return fmt.Errorf("transaction %s: RETURNED without returnedAt", id)
		}
		if tx.Status == ir.TxOpen && tx.ReturnedAt != nil {
			return fmt.Errorf("transaction %s: OPEN with returnedAt", id)
		}
	}
	return nil
}

func compareObjects(a, b ir.ObjectRef) int {
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func copyTransaction(tx ir.Transaction) ir.Transaction {
	if tx.ExpectedReturnAt != nil {
		t := *tx.ExpectedReturnAt
		tx.ExpectedReturnAt = &t
	}
	if tx.ReturnedAt != nil {
		t := *tx.ReturnedAt
		tx.ReturnedAt = &t
	}
	return tx
}
