// Package metrics はLINE通知のPrometheusメトリクスを定義する
// nil の *Metrics はすべての記録を無視する
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "nexustrade_line"

// Outcome ラベルの値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Metrics は送信・リトライ・Webhookのメトリクス
type Metrics struct {
	sends           *prometheus.CounterVec
	sendDuration    *prometheus.HistogramVec
	retries         *prometheus.CounterVec
	batchSize       prometheus.Histogram
	webhookRequests *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

// New はメトリクスを reg に登録する。reg が nil なら何も記録しない
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	m := &Metrics{
		sends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages sent to the LINE API by operation and outcome.",
		}, []string{"op", "outcome"}),
		sendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Duration of a logical send including retries.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_retries_total",
			Help:      "Retries scheduled by error type.",
		}, []string{"type"}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_recipients",
			Help:      "Number of recipients per batch send.",
			Buckets:   []float64{1, 10, 50, 100, 250, 500},
		}),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by response status.",
		}, []string{"status"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
	}
	reg.MustRegister(m.sends, m.sendDuration, m.retries, m.batchSize, m.webhookRequests, m.webhookEvents)
	return m
}

// ObserveSend は1回の論理送信の結果を記録する
func (m *Metrics) ObserveSend(op string, success bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if !success {
		outcome = OutcomeFailure
	}
	m.sends.WithLabelValues(normalizeLabel(op), outcome).Inc()
	m.sendDuration.WithLabelValues(normalizeLabel(op)).Observe(d.Seconds())
}

// IncRetry はリトライを記録する
func (m *Metrics) IncRetry(errType string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(errType)).Inc()
}

// ObserveBatch は一斉送信の宛先数を記録する
func (m *Metrics) ObserveBatch(recipients int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(recipients))
}

// IncWebhookRequest はWebhookリクエストの応答ステータスを記録する
func (m *Metrics) IncWebhookRequest(status int) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

// IncWebhookEvent はイベント処理の結果を記録する
func (m *Metrics) IncWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
