package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup(true)
		m.ChunkRelayed()
		m.StreamStarted()
		m.StreamFinished(StatusDone, time.Second)
		m.WatchCachedHandles(func() int { return 1 })
	})
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.ChunkRelayed()
	m.StreamStarted()
	m.StreamFinished(StatusFailed, 10*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.chunks))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeStreams))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.messages.WithLabelValues(StatusFailed)))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.WatchCachedHandles(func() int { return 3 })

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "next_chat_cached_handles 3")
}
