package metrics

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveSend("push", true, 120*time.Millisecond)
	m.ObserveSend("push", false, time.Second)
	m.ObserveSend("push", true, 80*time.Millisecond)
	m.IncRetry("server")
	m.IncRetry("")
	m.ObserveBatch(42)
	m.IncWebhookRequest(http.StatusOK)
	m.IncWebhookRequest(http.StatusUnauthorized)
	m.IncWebhookEvent("message", OutcomeSuccess)
	m.IncWebhookEvent("follow", OutcomeSkipped)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.sends.WithLabelValues("push", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sends.WithLabelValues("push", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("server")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retries.WithLabelValues("unknown")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookRequests.WithLabelValues("401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.webhookEvents.WithLabelValues("follow", OutcomeSkipped)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.batchSize))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.Nil(t, New(nil))

	assert.NotPanics(t, func() {
		m.ObserveSend("push", true, time.Second)
		m.IncRetry("network")
		m.ObserveBatch(1)
		m.IncWebhookRequest(http.StatusOK)
		m.IncWebhookEvent("message", OutcomeFailure)
	})
}
