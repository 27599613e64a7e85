package snapshot

import (
	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/query"
	"github.com/roach88/aether/internal/store"
)

// document is the canonical JSON form hashed into the snapshot digest.
type document struct {
	Bindings         []query.BindingView     `json:"bindings"`
	Placements       []query.PlacementView   `json:"placements"`
	Transactions     []query.TransactionView `json:"transactions"`
	OpenTransactions []openView              `json:"openTransactions"`
	SeenEventKeys    []string                `json:"seenEventKeys"`
}

type openView struct {
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
	TxID       string `json:"txId"`
}

func newDocument(snap store.Snapshot) document {
	doc := document{
		Bindings:         make([]query.BindingView, 0, len(snap.Bindings)),
		Placements:       make([]query.PlacementView, 0, len(snap.Placements)),
		Transactions:     make([]query.TransactionView, 0, len(snap.Transactions)),
		OpenTransactions: make([]openView, 0, len(snap.OpenIndex)),
		SeenEventKeys:    snap.SeenKeys,
	}
	if doc.SeenEventKeys == nil {
		doc.SeenEventKeys = []string{}
	}
	for _, b := range snap.Bindings {
		doc.Bindings = append(doc.Bindings, query.NewBindingView(b))
	}
	for _, p := range snap.Placements {
		v := query.NewPlacementView(p)
		v.UpdatedAt = v.UpdatedAt.UTC()
		doc.Placements = append(doc.Placements, v)
	}
	for _, tx := range snap.Transactions {
		doc.Transactions = append(doc.Transactions, utcTransaction(query.NewTransactionView(tx)))
	}
	for _, e := range snap.OpenIndex {
		doc.OpenTransactions = append(doc.OpenTransactions, openView{
			ObjectType: e.Object.Type,
			ObjectID:   e.Object.ID,
			TxID:       e.TxID,
		})
	}
	return doc
}

// Digest returns the content hash of snap. Equal stores have equal digests
// regardless of insertion order or time zone of the stored instants.
func Digest(snap store.Snapshot) (string, error) {
	return ir.Digest(ir.DomainSnapshot, newDocument(snap))
}

func utcTransaction(v query.TransactionView) query.TransactionView {
	v.CheckoutAt = v.CheckoutAt.UTC()
	if v.ExpectedReturnAt != nil {
		t := v.ExpectedReturnAt.UTC()
		v.ExpectedReturnAt = &t
	}
	if v.ReturnedAt != nil {
		t := v.ReturnedAt.UTC()
		v.ReturnedAt = &t
	}
	return v
}
