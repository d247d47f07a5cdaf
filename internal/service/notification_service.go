package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/repository"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/internal/validation"
	"github.com/morinonusi421/nexustrade-line/internal/webhook"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// NotificationConfig は通知サービスの設定
type NotificationConfig struct {
	// AccessTokenSet はチャネルアクセストークンが設定されているか
	// トークン自体はここに持たない
	AccessTokenSet bool
	ChannelSecret  string
	WebhookBaseURL string

	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	Deadline         time.Duration
	BatchSize        int
	BatchDelay       time.Duration
}

// Missing は未設定の必須キーを返す
func (c NotificationConfig) Missing() []string {
	var missing []string
	if !c.AccessTokenSet {
		missing = append(missing, "LINE_CHANNEL_ACCESS_TOKEN")
	}
	if c.ChannelSecret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	return missing
}

// RetryStatus はリトライ設定
type RetryStatus struct {
	MaxAttempts int   `json:"maxAttempts"`
	BaseDelayMs int64 `json:"baseDelayMs"`
	MaxDelayMs  int64 `json:"maxDelayMs"`
	DeadlineMs  int64 `json:"deadlineMs"`
}

// BatchStatus は一斉送信の設定
type BatchStatus struct {
	Size    int   `json:"size"`
	DelayMs int64 `json:"delayMs"`
}

// Status は通知サービスの状態
type Status struct {
	Configured    bool        `json:"configured"`
	Missing       []string    `json:"missing,omitempty"`
	WebhookURL    string      `json:"webhookUrl"`
	TemplateCount int         `json:"templateCount"`
	Followers     int         `json:"followers"`
	Retry         RetryStatus `json:"retry"`
	Batch         BatchStatus `json:"batch"`
}

// TemplateInfo は利用できるテンプレート
type TemplateInfo struct {
	Name template.Name     `json:"name"`
	Kind model.MessageKind `json:"kind"`
}

// NotificationService はアプリケーションから使う通知機能の窓口
type NotificationService interface {
	// SendMessage は1件のメッセージをPush送信する
	SendMessage(ctx context.Context, to string, msg model.Message, opts SendOptions) SendResult

	// SendBatchMessage は同じメッセージを最大500件の宛先に送る
	// 宛先リストやオプション自体が不正な場合はエラーを返し、何も送らない
	SendBatchMessage(ctx context.Context, to []string, msg model.Message, opts BatchOptions) (BatchResult, error)

	// SendTemplateMessage はテンプレートを描画してPush送信する
	SendTemplateMessage(ctx context.Context, to, name string, data template.Data, opts SendOptions) SendResult

	// BroadcastMessage は現在の友だち全員に送る
	BroadcastMessage(ctx context.Context, msg model.Message, opts BatchOptions) (BatchResult, error)

	// RenderTemplate はテンプレート名を検証して描画する
	RenderTemplate(name string, data template.Data) (model.Message, error)

	GetStatus(ctx context.Context) Status
	GetAvailableTemplates() []TemplateInfo

	// ValidateWebhookSignature は X-Line-Signature を検証する
	ValidateWebhookSignature(body []byte, signature string) bool

	// Configured は必須設定がそろっているか
	Configured() bool
}

type notificationService struct {
	messaging MessagingService
	renderer  *template.Renderer
	followers repository.FollowerRepository
	cfg       NotificationConfig
	logger    *logrus.Entry
	clock     func() time.Time
}

// NewNotificationService は NotificationService の新しいインスタンスを作成する
// followers が nil の場合、一斉配信は設定エラーになる
func NewNotificationService(messaging MessagingService, renderer *template.Renderer, followers repository.FollowerRepository, cfg NotificationConfig, log *logrus.Entry) NotificationService {
	if log == nil {
		log = logger.Discard()
	}
	return &notificationService{
		messaging: messaging,
		renderer:  renderer,
		followers: followers,
		cfg:       cfg,
		logger:    log,
		clock:     time.Now,
	}
}

func (s *notificationService) Configured() bool {
	return len(s.cfg.Missing()) == 0
}

func (s *notificationService) SendMessage(ctx context.Context, to string, msg model.Message, opts SendOptions) SendResult {
	if err := s.configError(); err != nil {
		return s.failed(to, err)
	}
	return s.messaging.Send(ctx, to, msg, opts)
}

func (s *notificationService) SendBatchMessage(ctx context.Context, to []string, msg model.Message, opts BatchOptions) (BatchResult, error) {
	if err := validation.ValidateRecipientCount(to); err != nil {
		return BatchResult{}, err
	}
	if err := s.checkBatch(msg, opts); err != nil {
		return BatchResult{}, err
	}
	return s.messaging.SendBatch(ctx, to, msg, opts), nil
}

func (s *notificationService) SendTemplateMessage(ctx context.Context, to, name string, data template.Data, opts SendOptions) SendResult {
	if err := s.configError(); err != nil {
		return s.failed(to, err)
	}
	msg, err := s.RenderTemplate(name, data)
	if err != nil {
		return s.failed(to, err)
	}
	return s.messaging.Send(ctx, to, msg, opts)
}

func (s *notificationService) RenderTemplate(name string, data template.Data) (model.Message, error) {
	n, err := template.ParseName(name)
	if err != nil {
		return model.Message{}, err
	}
	return s.renderer.Render(n, data)
}

// BroadcastMessage はブロックされていない友だち全員へ送る
// 友だちが500人を超える場合もチャンクに分けて送る
func (s *notificationService) BroadcastMessage(ctx context.Context, msg model.Message, opts BatchOptions) (BatchResult, error) {
	if err := s.checkBatch(msg, opts); err != nil {
		return BatchResult{}, err
	}
	if s.followers == nil {
		return BatchResult{}, &apperrors.ConfigurationError{Missing: []string{"DATABASE_PATH"}}
	}

	ids, err := s.followers.ListActiveIDs(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to list followers: %w", err)
	}
	if len(ids) == 0 {
		s.logger.Info("Broadcast skipped: no active followers")
		return BatchResult{Results: []SendResult{}, Errors: []BatchError{}}, nil
	}

	s.logger.WithField("recipients", len(ids)).Info("Broadcasting message")
	return s.messaging.SendBatch(ctx, ids, msg, opts), nil
}

func (s *notificationService) GetStatus(ctx context.Context) Status {
	missing := s.cfg.Missing()
	st := Status{
		Configured:    len(missing) == 0,
		Missing:       missing,
		TemplateCount: len(template.Names()),
		Retry: RetryStatus{
			MaxAttempts: s.cfg.RetryMaxAttempts,
			BaseDelayMs: s.cfg.RetryBaseDelay.Milliseconds(),
			MaxDelayMs:  s.cfg.RetryMaxDelay.Milliseconds(),
			DeadlineMs:  s.cfg.Deadline.Milliseconds(),
		},
		Batch: BatchStatus{
			Size:    s.cfg.BatchSize,
			DelayMs: s.cfg.BatchDelay.Milliseconds(),
		},
	}
	if s.cfg.WebhookBaseURL != "" {
		st.WebhookURL = strings.TrimRight(s.cfg.WebhookBaseURL, "/") + "/webhook"
	}

	if s.followers != nil {
		n, err := s.followers.CountActive(ctx)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to count followers")
		} else {
			st.Followers = n
		}
	}
	return st
}

func (s *notificationService) GetAvailableTemplates() []TemplateInfo {
	names := template.Names()
	out := make([]TemplateInfo, 0, len(names))
	for _, n := range names {
		kind, _ := template.KindOf(n)
		out = append(out, TemplateInfo{Name: n, Kind: kind})
	}
	return out
}

func (s *notificationService) ValidateWebhookSignature(body []byte, signature string) bool {
	return webhook.VerifySignature(s.cfg.ChannelSecret, body, signature)
}

func (s *notificationService) checkBatch(msg model.Message, opts BatchOptions) error {
	if err := validation.ValidateBatchOptions(opts.BatchSize, opts.BatchDelay); err != nil {
		return err
	}
	if err := validation.ValidateMessage(msg); err != nil {
		return err
	}
	return s.configError()
}

func (s *notificationService) configError() error {
	if missing := s.cfg.Missing(); len(missing) > 0 {
		return &apperrors.ConfigurationError{Missing: missing}
	}
	return nil
}

func (s *notificationService) failed(to string, err error) SendResult {
	info := apperrors.Classify(err)
	s.logger.WithError(err).WithFields(logrus.Fields{
		"recipient":  logger.TruncateID(to),
		"error_type": info.Type,
	}).Warn("Message not sent")
	return SendResult{
		Recipient: to,
		Timestamp: s.clock(),
		Error:     &info,
	}
}
