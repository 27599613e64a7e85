package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aether/internal/ir"
)

var (
	item1 = ir.ObjectRef{Type: "ITEM", ID: "i1"}
	item2 = ir.ObjectRef{Type: "ITEM", ID: "i2"}
	t0    = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
)

func TestNewStoreIsEmpty(t *testing.T) {
	s := New()

	assert.Equal(t, Stats{}, s.Stats())
	_, ok := s.Binding("t1")
	assert.False(t, ok)
	_, ok = s.Placement(item1)
	assert.False(t, ok)
	_, ok = s.Transaction("tx1")
	assert.False(t, ok)
	_, ok = s.OpenTransaction(item1)
	assert.False(t, ok)
	assert.False(t, s.Seen("k1"))
	assert.NoError(t, s.Verify())
}

func TestBindingLastWriteWins(t *testing.T) {
	s := New()

	require.NoError(t, s.Update(func(w Writer) error {
		w.PutBinding(ir.Binding{TagUID: "t1", Target: ir.ZoneTarget{ZoneID: "z9"}})
		return nil
	}))
	b, ok := s.Binding("t1")
	require.True(t, ok)
	assert.Equal(t, ir.ZoneTarget{ZoneID: "z9"}, b.Target)

	require.NoError(t, s.Update(func(w Writer) error {
		w.PutBinding(ir.Binding{TagUID: "t1", Target: ir.ObjectTarget{Object: item1}})
		return nil
	}))
	b, ok = s.Binding("t1")
	require.True(t, ok)
	assert.Equal(t, ir.ObjectTarget{Object: item1}, b.Target)
	assert.Equal(t, 1, s.Stats().Bindings)
}

func TestDeleteBindingIsIdempotent(t *testing.T) {
	s := New()

	require.NoError(t, s.Update(func(w Writer) error {
		w.PutBinding(ir.Binding{TagUID: "t1", Target: ir.ZoneTarget{ZoneID: "z1"}})
		w.DeleteBinding("t1")
		w.DeleteBinding("t1")
		w.DeleteBinding("never-bound")
		return nil
	}))

	_, ok := s.Binding("t1")
	assert.False(t, ok)
}

func TestPlacementOverwrite(t *testing.T) {
	s := New()

	require.NoError(t, s.Update(func(w Writer) error {
		w.PutPlacement(ir.Placement{Object: item1, Location: ir.ZoneLocation{ZoneID: "z1"}, UpdatedAt: t0})
		w.PutPlacement(ir.Placement{Object: item1, Location: ir.ContainerLocation{Path: "rack/a"}, UpdatedAt: t0.Add(time.Minute)})
		return nil
	}))

	p, ok := s.Placement(item1)
	require.True(t, ok)
	assert.Equal(t, ir.ContainerLocation{Path: "rack/a"}, p.Location)
	assert.Equal(t, t0.Add(time.Minute), p.UpdatedAt)
	assert.Equal(t, 1, s.Stats().Placements)
}

func TestSeenKeys(t *testing.T) {
	s := New()

	require.NoError(t, s.Update(func(w Writer) error {
		assert.False(t, w.Seen("k1"))
		w.MarkSeen("k1")
		assert.True(t, w.Seen("k1"), "writer observes its own marks")
		w.MarkSeen("k1")
		return nil
	}))

	assert.True(t, s.Seen("k1"))
	assert.False(t, s.Seen("k2"))
	assert.Equal(t, 1, s.Stats().SeenKeys)
}

func TestUpdateErrorKeepsMutations(t *testing.T) {
	s := New()
	boom := errors.New("boom")

	err := s.Update(func(w Writer) error {
		w.MarkSeen("k1")
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.True(t, s.Seen("k1"))
}

func TestVerify(t *testing.T) {
	returnedAt := t0.Add(time.Hour)

	tests := []struct {
		name    string
		setup   func(w Writer)
		wantErr string
	}{
		{
			name: "consistent",
			setup: func(w Writer) {
				w.PutTransaction(ir.Transaction{ID: "tx1", Object: item1, Status: ir.TxOpen, CheckoutAt: t0})
				w.SetOpenTransaction(item1, "tx1")
				w.PutTransaction(ir.Transaction{ID: "tx2", Object: item2, Status: ir.TxReturned, CheckoutAt: t0, ReturnedAt: &returnedAt})
			},
		},
		{
			name: "dangling index",
			setup: func(w Writer) {
				w.SetOpenTransaction(item1, "missing")
			},
			wantErr: "transaction missing",
		},
		{
			name: "index points at other object",
			setup: func(w Writer) {
				w.PutTransaction(ir.Transaction{ID: "tx1", Object: item2, Status: ir.TxOpen, CheckoutAt: t0})
				w.SetOpenTransaction(item1, "tx1")
			},
			wantErr: "belongs to ITEM:i2",
		},
		{
			name: "index points at returned",
			setup: func(w Writer) {
				w.PutTransaction(ir.Transaction{ID: "tx1", Object: item1, Status: ir.TxReturned, CheckoutAt: t0, ReturnedAt: &returnedAt})
				w.SetOpenTransaction(item1, "tx1")
			},
			wantErr: "transaction is RETURNED",
		},
		{
			name: "returned without timestamp",
			setup: func(w Writer) {
				w.PutTransaction(ir.Transaction{ID: "tx1", Object: item1, Status: ir.TxReturned, CheckoutAt: t0})
			},
			wantErr: "RETURNED without returnedAt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			require.NoError(t, s.Update(func(w Writer) error {
				tt.setup(w)
				return nil
			}))

			err := s.Verify()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSnapshotIsSortedCopy(t *testing.T) {
	s := New()
	expected := t0.Add(24 * time.Hour)

	require.NoError(t, s.Update(func(w Writer) error {
		w.PutBinding(ir.Binding{TagUID: "t2", Target: ir.ZoneTarget{ZoneID: "z1"}})
		w.PutBinding(ir.Binding{TagUID: "t1", Target: ir.ObjectTarget{Object: item1}})
		w.PutPlacement(ir.Placement{Object: item2, Location: ir.ZoneLocation{ZoneID: "z2"}, UpdatedAt: t0})
		w.PutPlacement(ir.Placement{Object: item1, Location: ir.ZoneLocation{ZoneID: "z1"}, UpdatedAt: t0})
		w.PutTransaction(ir.Transaction{ID: "tx1", Object: item1, Status: ir.TxOpen, CheckoutAt: t0, ExpectedReturnAt: &expected})
		w.SetOpenTransaction(item1, "tx1")
		w.MarkSeen("b")
		w.MarkSeen("a")
		return nil
	}))

	snap := s.Snapshot()

	require.Len(t, snap.Bindings, 2)
	assert.Equal(t, "t1", snap.Bindings[0].TagUID)
	assert.Equal(t, "t2", snap.Bindings[1].TagUID)
	require.Len(t, snap.Placements, 2)
	assert.Equal(t, item1, snap.Placements[0].Object)
	assert.Equal(t, []OpenEntry{{Object: item1, TxID: "tx1"}}, snap.OpenIndex)
	assert.Equal(t, []string{"a", "b"}, snap.SeenKeys)

	// Mutating the snapshot must not reach the store.
	*snap.Transactions[0].ExpectedReturnAt = t0
	tx, ok := s.Transaction("tx1")
	require.True(t, ok)
	assert.Equal(t, expected, *tx.ExpectedReturnAt)
}

// TestUpdateIsAtomicToReaders checks that readers never see half of an
// Update: every batch writes two bindings that must always agree.
func TestUpdateIsAtomicToReaders(t *testing.T) {
	s := New()
	const batches = 200

	var wg sync.WaitGroup
	stop := make(chan struct{})
	failures := make(chan string, 16)

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				_ = s.View(func(rd Reader) error {
					a, okA := rd.Binding("a")
					b, okB := rd.Binding("b")
					if okA != okB || (okA && a.Target != b.Target) {
						select {
						case failures <- fmt.Sprintf("torn read: %v/%v", a.Target, b.Target):
						default:
						}
					}
					return nil
				})
			}
		}()
	}

	for i := 0; i < batches; i++ {
		zone := ir.ZoneTarget{ZoneID: fmt.Sprintf("z%d", i)}
		require.NoError(t, s.Update(func(w Writer) error {
			w.PutBinding(ir.Binding{TagUID: "a", Target: zone})
			w.PutBinding(ir.Binding{TagUID: "b", Target: zone})
			return nil
		}))
	}
	close(stop)
	wg.Wait()
	close(failures)

	for f := range failures {
		t.Error(f)
	}
}
