package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/morinonusi421/nexustrade-line/internal/middleware"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/service"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/pkg/httputil"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// NotificationAPIHandler はアプリ内部から通知を送るためのAPI
type NotificationAPIHandler struct {
	notifications service.NotificationService
	logger        *logrus.Entry
}

func NewNotificationAPIHandler(notifications service.NotificationService, log *logrus.Entry) *NotificationAPIHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &NotificationAPIHandler{
		notifications: notifications,
		logger:        log,
	}
}

// Routes は /api/line 配下のルートを登録する
func (h *NotificationAPIHandler) Routes(r chi.Router) {
	r.Post("/send", h.Send)
	r.Post("/batch", h.Batch)
	r.Post("/template", h.Template)
	r.Post("/broadcast", h.Broadcast)
	r.Get("/status", h.Status)
	r.Get("/templates", h.Templates)
}

type SendRequest struct {
	To                   string `json:"to"`
	Text                 string `json:"text"`
	NotificationDisabled bool   `json:"notificationDisabled"`
	MaxAttempts          int    `json:"maxAttempts"`
}

type BatchRequest struct {
	To                   []string `json:"to"`
	Text                 string   `json:"text"`
	NotificationDisabled bool     `json:"notificationDisabled"`
	BatchSize            int      `json:"batchSize"`
	BatchDelayMs         int64    `json:"batchDelayMs"`
}

type TemplateRequest struct {
	To                   string         `json:"to"`
	Template             string         `json:"template"`
	Data                 map[string]any `json:"data"`
	NotificationDisabled bool           `json:"notificationDisabled"`
}

// BroadcastRequest は text か template のどちらかを指定する
type BroadcastRequest struct {
	Text                 string         `json:"text"`
	Template             string         `json:"template"`
	Data                 map[string]any `json:"data"`
	NotificationDisabled bool           `json:"notificationDisabled"`
	BatchSize            int            `json:"batchSize"`
	BatchDelayMs         int64          `json:"batchDelayMs"`
}

type errorBody struct {
	Type            apperrors.Type `json:"type"`
	Code            string         `json:"code"`
	Message         string         `json:"message"`
	SuggestedAction string         `json:"suggestedAction"`
}

func (h *NotificationAPIHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("body", err.Error()))
		return
	}

	result := h.notifications.SendMessage(r.Context(), req.To, model.NewTextMessage(req.Text), service.SendOptions{
		NotificationDisabled: req.NotificationDisabled,
		MaxAttempts:          req.MaxAttempts,
	})
	h.writeSendResult(w, result)
}

func (h *NotificationAPIHandler) Batch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("body", err.Error()))
		return
	}

	result, err := h.notifications.SendBatchMessage(r.Context(), req.To, model.NewTextMessage(req.Text), batchOptions(req.NotificationDisabled, req.BatchSize, req.BatchDelayMs))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeBatchResult(w, result)
}

func (h *NotificationAPIHandler) Template(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("body", err.Error()))
		return
	}

	result := h.notifications.SendTemplateMessage(r.Context(), req.To, req.Template, template.Data(req.Data), service.SendOptions{
		NotificationDisabled: req.NotificationDisabled,
	})
	h.writeSendResult(w, result)
}

func (h *NotificationAPIHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := httputil.DecodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, apperrors.NewValidationError("body", err.Error()))
		return
	}

	msg := model.NewTextMessage(req.Text)
	if req.Template != "" {
		rendered, err := h.notifications.RenderTemplate(req.Template, template.Data(req.Data))
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		msg = rendered
	}

	result, err := h.notifications.BroadcastMessage(r.Context(), msg, batchOptions(req.NotificationDisabled, req.BatchSize, req.BatchDelayMs))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeBatchResult(w, result)
}

func (h *NotificationAPIHandler) Status(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  h.notifications.GetStatus(r.Context()),
	})
}

func (h *NotificationAPIHandler) Templates(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"templates": h.notifications.GetAvailableTemplates(),
	})
}

func (h *NotificationAPIHandler) writeSendResult(w http.ResponseWriter, result service.SendResult) {
	if result.Success {
		httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
			"success": true,
			"result":  result,
		})
		return
	}

	info := apperrors.Info{Type: apperrors.TypeUnknown}
	if result.Error != nil {
		info = *result.Error
	}
	httputil.WriteJSONError(w, statusFor(info.Type), map[string]any{
		"success": false,
		"error":   toErrorBody(info),
		"result": map[string]any{
			"recipient": result.Recipient,
			"attempts":  result.Attempts,
			"timestamp": result.Timestamp,
		},
	})
}

// writeBatchResult は一部が失敗しても200を返す
// 宛先ごとの失敗は results と errors に含まれる
func (h *NotificationAPIHandler) writeBatchResult(w http.ResponseWriter, result service.BatchResult) {
	results := make([]map[string]any, len(result.Results))
	for i, r := range result.Results {
		item := map[string]any{
			"success":   r.Success,
			"recipient": r.Recipient,
			"attempts":  r.Attempts,
			"timestamp": r.Timestamp,
		}
		if r.MessageID != "" {
			item["messageId"] = r.MessageID
		}
		if r.Error != nil {
			item["error"] = toErrorBody(*r.Error)
		}
		results[i] = item
	}
	errs := make([]map[string]any, len(result.Errors))
	for i, e := range result.Errors {
		errs[i] = map[string]any{
			"index":     e.Index,
			"recipient": e.Recipient,
			"error":     toErrorBody(e.Error),
		}
	}

	httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"success":    result.Failed == 0,
		"totalUsers": result.TotalUsers,
		"successful": result.Successful,
		"failed":     result.Failed,
		"results":    results,
		"errors":     errs,
	})
}

// writeError はエラーを分類して返す
// プロバイダの応答本文などの詳細はログにだけ残す
func (h *NotificationAPIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	info := apperrors.Classify(err)
	middleware.Logger(r.Context(), h.logger).WithError(err).WithFields(logrus.Fields{
		"error_type": info.Type,
		"error_code": info.Code,
	}).Warn("Notification API request failed")

	httputil.WriteJSONError(w, statusFor(info.Type), map[string]any{
		"success": false,
		"error":   toErrorBody(info),
	})
}

func toErrorBody(info apperrors.Info) errorBody {
	return errorBody{
		Type:            info.Type,
		Code:            info.Code,
		Message:         info.FriendlyMessage,
		SuggestedAction: info.SuggestedAction,
	}
}

func statusFor(t apperrors.Type) int {
	switch t {
	case apperrors.TypeValidation:
		return http.StatusBadRequest
	case apperrors.TypeConfiguration:
		return http.StatusServiceUnavailable
	case apperrors.TypeRateLimit:
		return http.StatusTooManyRequests
	case apperrors.TypeTimeout:
		return http.StatusGatewayTimeout
	case apperrors.TypeNetwork, apperrors.TypeServer, apperrors.TypeClient, apperrors.TypeAuthentication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func batchOptions(disabled bool, size int, delayMs int64) service.BatchOptions {
	return service.BatchOptions{
		SendOptions: service.SendOptions{NotificationDisabled: disabled},
		BatchSize:   size,
		BatchDelay:  time.Duration(delayMs) * time.Millisecond,
	}
}
