package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_RecordDispatch(t *testing.T) {
	c := NewCollector()

	c.RecordDispatch(PlaneControl, "reset", 202)
	c.RecordDispatch(PlaneControl, "reset", 202)
	c.RecordDispatch(PlaneData, "match", 404)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues(PlaneControl, "reset", "202")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.dispatchTotal.WithLabelValues(PlaneData, "match", "404")))
}

func TestCollector_ProxyAndUpstream(t *testing.T) {
	c := NewCollector()

	c.RecordProxy(OutcomeVetoed)
	c.RecordProxy(OutcomeForwarded)
	c.ObserveUpstream(20 * time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.proxyTotal.WithLabelValues(OutcomeVetoed)))
	assert.Equal(t, 1, testutil.CollectAndCount(c.upstreamDuration))
}

func TestCollector_NilSafe(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.RecordDispatch(PlaneData, "match", 200)
		c.RecordProxy(OutcomeForwarded)
		c.ObserveUpstream(time.Second)
		c.RecordAborted()
		c.ObserveExpectations(func() int { return 1 })
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObserveExpectations(func() int { return 3 })
	c.RecordAborted()

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "mockserver_expectations 3")
	assert.Contains(t, string(body), "mockserver_aborted_requests_total 1")
}
