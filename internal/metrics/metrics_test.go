package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/aether/internal/ir"
	"github.com/roach88/aether/internal/store"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestBatchApplied(t *testing.T) {
	m, _ := newTestMetrics(t)

	req := ir.BatchRequest{Events: []ir.Event{
		{EventID: "e1", EventKey: "k1", Kind: ir.KindBind},
		{EventID: "e2", EventKey: "k2", Kind: "FOO"},
		{EventID: "e3", EventKey: "k1", Kind: ir.KindBind},
	}}
	resp := &ir.BatchResponse{Results: []ir.Result{
		{EventID: "e1", EventKey: "k1", Status: ir.StatusAccepted, EventIndex: 0},
		{EventID: "e2", EventKey: "k2", Status: ir.StatusRejected, EventIndex: 1},
		{EventID: "e3", EventKey: "k1", Status: ir.StatusDuplicate, EventIndex: 2},
	}}

	m.BatchApplied(req, resp, 3*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues(OutcomeApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("BIND", "ACCEPTED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("BIND", "DUPLICATE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsTotal.WithLabelValues("UNKNOWN", "REJECTED")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.EventsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(m.BatchSize))
}

func TestBatchFailed(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.BatchFailed("SCHEMA_INVALID", time.Millisecond)
	m.BatchFailed("SCHEMA_INVALID", time.Millisecond)
	m.BatchFailed("SERVER_RESPONSE_INVALID", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("SCHEMA_INVALID")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchesTotal.WithLabelValues("SERVER_RESPONSE_INVALID")))
}

func TestObserveHTTP(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveHTTP("GET", "/api/read/binding/:tagUid", 404, time.Millisecond)
	m.ObserveHTTP("GET", "/api/read/binding/:tagUid", 200, time.Millisecond)
	m.ObserveHTTP("GET", "/api/read/binding/:tagUid", 200, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/read/binding/:tagUid", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/read/binding/:tagUid", "404")))
}

func TestRegisterStoreGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := store.New()
	RegisterStoreGauges(reg, s.Stats)

	require.NoError(t, s.Update(func(w store.Writer) error {
		w.PutBinding(ir.Binding{TagUID: "t1", Target: ir.ZoneTarget{ZoneID: "z1"}})
		w.MarkSeen("k1")
		w.MarkSeen("k2")
		return nil
	}))

	expected := `
# HELP aether_store_bindings Tags currently bound
# TYPE aether_store_bindings gauge
aether_store_bindings 1
# HELP aether_store_seen_event_keys Accepted event keys
# TYPE aether_store_seen_event_keys gauge
aether_store_seen_event_keys 2
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"aether_store_bindings", "aether_store_seen_event_keys")
	assert.NoError(t, err)
}

func TestNewPanicsOnDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	assert.Panics(t, func() { New(reg) })
}
