package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/metrics"
	"github.com/morinonusi421/nexustrade-line/internal/middleware"
	"github.com/morinonusi421/nexustrade-line/internal/service"
	"github.com/morinonusi421/nexustrade-line/internal/webhook"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// DefaultMaxBodyBytes はWebhook本文の上限
const DefaultMaxBodyBytes = 1 << 20

const forgetTimeout = 2 * time.Second

// SignatureVerifier はWebhook署名の検証を行う
type SignatureVerifier interface {
	Configured() bool
	ValidateWebhookSignature(body []byte, signature string) bool
}

// Submitter はイベント処理をバックグラウンドに渡す
type Submitter interface {
	Submit(name string, job webhook.Job) error
}

// Deduper は再送されたイベントを判定する
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// WebhookOptions はWebhookの制限値
type WebhookOptions struct {
	MaxBodyBytes int64
	MaxEvents    int
}

// WebhookHandler はLINE Webhookを処理するハンドラー
type WebhookHandler struct {
	verifier   SignatureVerifier
	events     service.EventService
	dispatcher Submitter
	dedupe     Deduper
	metrics    *metrics.Metrics
	opts       WebhookOptions
	logger     *logrus.Entry
}

// NewWebhookHandler は WebhookHandler の新しいインスタンスを作成する
// dedupe と m は nil でもよい
func NewWebhookHandler(
	verifier SignatureVerifier,
	events service.EventService,
	dispatcher Submitter,
	dedupe Deduper,
	m *metrics.Metrics,
	opts WebhookOptions,
	log *logrus.Entry,
) *WebhookHandler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.MaxEvents <= 0 {
		opts.MaxEvents = webhook.DefaultMaxEvents
	}
	if log == nil {
		log = logger.Discard()
	}
	return &WebhookHandler{
		verifier:   verifier,
		events:     events,
		dispatcher: dispatcher,
		dedupe:     dedupe,
		metrics:    m,
		opts:       opts,
		logger:     log,
	}
}

// Handle はLINE Webhookのリクエストを処理する
//
// 署名検証とパースだけを同期で行い、200を返してからイベントを処理する
// 生の本文で署名を検証するため、JSONの解析より前に全体を読む
func (h *WebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	log := middleware.Logger(r.Context(), h.logger)

	if !h.verifier.Configured() {
		log.Error("Webhook received but LINE channel is not configured")
		h.respond(w, http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			log.WithField("limit", tooLarge.Limit).Warn("Webhook body too large")
			h.respond(w, http.StatusRequestEntityTooLarge)
			return
		}
		log.WithError(err).Warn("Failed to read webhook body")
		h.respond(w, http.StatusBadRequest)
		return
	}

	if !h.verifier.ValidateWebhookSignature(body, r.Header.Get(webhook.SignatureHeader)) {
		log.Warn("Invalid webhook signature")
		h.respond(w, http.StatusUnauthorized)
		return
	}

	batch, err := webhook.Parse(body, h.opts.MaxEvents)
	if err != nil {
		log.WithError(err).Warn("Malformed webhook payload")
		h.respond(w, http.StatusBadRequest)
		return
	}

	h.respond(w, http.StatusOK)

	for _, ev := range batch.Events {
		h.dispatch(log, ev)
	}
}

// dispatch は1件のイベントをバックグラウンド処理に渡す
// 200を返す前に外部I/Oをしないよう、再送判定もジョブの中で行う
func (h *WebhookHandler) dispatch(log *logrus.Entry, ev webhook.Event) {
	evLog := log.WithFields(logrus.Fields{
		"event_type": ev.Type,
		"event_id":   ev.WebhookEventID,
		"timestamp":  ev.Timestamp,
		"user_id":    logger.TruncateID(ev.Source.UserID),
	})

	err := h.dispatcher.Submit(ev.Type, func(ctx context.Context) error {
		if h.alreadyProcessed(ctx, evLog, ev) {
			return nil
		}
		if err := h.events.Handle(middleware.WithLogger(ctx, evLog), ev); err != nil {
			h.forget(ctx, evLog, ev)
			return err
		}
		return nil
	})
	if err != nil {
		evLog.WithError(err).Error("Failed to enqueue event")
		h.metrics.IncWebhookEvent(ev.Type, metrics.OutcomeFailure)
	}
}

// alreadyProcessed は webhookEventId が処理済みなら true を返す
// 判定に失敗した場合は処理を続ける
func (h *WebhookHandler) alreadyProcessed(ctx context.Context, log *logrus.Entry, ev webhook.Event) bool {
	if h.dedupe == nil || ev.WebhookEventID == "" {
		return false
	}
	seen, err := h.dedupe.Seen(ctx, ev.WebhookEventID)
	if err != nil {
		log.WithError(err).Warn("Redelivery check failed; processing anyway")
		return false
	}
	if seen {
		log.Info("Skipping already processed event")
		h.metrics.IncWebhookEvent(ev.Type, metrics.OutcomeSkipped)
	}
	return seen
}

// forget は処理に失敗したイベントの記録を消し、再送で処理できるようにする
// ジョブの context がタイムアウトしていても消せるよう切り離す
func (h *WebhookHandler) forget(ctx context.Context, log *logrus.Entry, ev webhook.Event) {
	if h.dedupe == nil || ev.WebhookEventID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), forgetTimeout)
	defer cancel()
	if err := h.dedupe.Forget(ctx, ev.WebhookEventID); err != nil {
		log.WithError(err).Warn("Failed to release redelivery marker")
	}
}

func (h *WebhookHandler) respond(w http.ResponseWriter, status int) {
	h.metrics.IncWebhookRequest(status)
	w.WriteHeader(status)
}
