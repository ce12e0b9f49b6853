package cache

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetBeforeTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	st := NewStore("test", 100*time.Millisecond, clk)

	st.Set("k", "v")
	clk.Advance(50 * time.Millisecond)

	v, ok := st.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestStoreExpiresLazily(t *testing.T) {
	clk := clockwork.NewFakeClock()
	st := NewStore("test", 100*time.Millisecond, clk)

	st.Set("k", "v")
	clk.Advance(150 * time.Millisecond)

	_, ok := st.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, st.Len(), "expired entry should be evicted on access")

	// A subsequent set succeeds and resets the deadline.
	st.Set("k", "v2")
	v, ok := st.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v2", v)
}

func TestStoreSetOverwritesAndResetsTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	st := NewStore("test", 100*time.Millisecond, clk)

	st.Set("k", "old")
	clk.Advance(80 * time.Millisecond)
	st.Set("k", "new")
	clk.Advance(80 * time.Millisecond)

	// 160ms after first set, but only 80ms after the overwrite.
	v, ok := st.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestStorePerEntryTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	st := NewStore("test", time.Hour, clk)

	st.SetTTL("short", "v", time.Minute)
	st.Set("long", "v")
	clk.Advance(2 * time.Minute)

	_, ok := st.Get("short")
	assert.False(t, ok)
	_, ok = st.Get("long")
	assert.True(t, ok)
}

func TestStoreCountsHitsAndMisses(t *testing.T) {
	clk := clockwork.NewFakeClock()
	st := NewStore("test", time.Hour, clk)
	hits := prometheus.NewCounter(prometheus.CounterOpts{Name: "hits"})
	misses := prometheus.NewCounter(prometheus.CounterOpts{Name: "misses"})
	st.Instrument(hits, misses)

	_, _ = st.Get("k") // absent
	st.Set("k", "v")
	_, _ = st.Get("k")
	clk.Advance(2 * time.Hour)
	_, _ = st.Get("k") // expired

	assert.Equal(t, 1.0, testutil.ToFloat64(hits))
	assert.Equal(t, 2.0, testutil.ToFloat64(misses))
}

func TestManagerCreatesStoresOnFirstUse(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock())

	a := m.Store("locations", time.Hour)
	b := m.Store("locations", time.Minute)
	assert.Same(t, a, b, "same name should return the same store")

	c := m.Store("glossary", time.Hour)
	assert.NotSame(t, a, c)
}

func TestManagerInstrumentsStoresByName(t *testing.T) {
	m := NewManager(clockwork.NewFakeClock())
	existing := m.Store("locations", time.Hour)

	hits := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "hits"}, []string{"store"})
	misses := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "misses"}, []string{"store"})
	m.Instrument(hits, misses)

	later := m.Store("glossary", time.Hour)
	existing.Set("k", "v")
	_, _ = existing.Get("k")
	_, _ = later.Get("absent")

	assert.Equal(t, 1.0, testutil.ToFloat64(hits.WithLabelValues("locations")))
	assert.Equal(t, 1.0, testutil.ToFloat64(misses.WithLabelValues("glossary")))
}
