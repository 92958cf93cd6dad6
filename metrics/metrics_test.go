package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordCompose("light", "ok", 20*time.Millisecond)
	m.RecordCompose("light", "ok", 30*time.Millisecond)
	m.RecordDegradation(KindSearch)
	m.RecordCache("compose", true)
	m.RecordCache("compose", false)
	m.RecordCache("compose", false)
	m.RecordSlotSearch("dish", "tags")
	m.SetBreakerState(2)
	m.RecordSessionSignal()
	m.RecordReindexed(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ComposeRequests.WithLabelValues("light", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Degradations.WithLabelValues(KindSearch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("compose")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheMisses.WithLabelValues("compose")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SlotSearches.WithLabelValues("dish", "tags")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionSignals))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.ReindexedRecords))
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
		New(nil)
	})
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCompose("light", "ok", time.Second)
		m.RecordDegradation(KindTimeout)
		m.RecordCache("search", true)
		m.RecordSlotSearch("vibe", "text")
		m.SetBreakerState(0)
		m.RecordSessionSignal()
		m.RecordReindexed(1)
	})
}
