package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/morinonusi421/nexustrade-line/internal/linebot"
	"github.com/morinonusi421/nexustrade-line/internal/metrics"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/retry"
	"github.com/morinonusi421/nexustrade-line/internal/validation"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

const (
	// DefaultSendDeadline は1回の論理送信（リトライ含む）にかけてよい時間
	DefaultSendDeadline = 60 * time.Second

	// MaxReplyMessages は1回の返信で送れるメッセージ数の上限
	MaxReplyMessages = 5

	logPreviewRunes = 40
)

// SendOptions は1件の送信のオプション
type SendOptions struct {
	NotificationDisabled bool
	// MaxAttempts が0ならリトライ設定の既定値
	MaxAttempts int
	// Deadline が0なら MessagingConfig.Deadline
	Deadline time.Duration
}

// BatchOptions は一斉送信のオプション
type BatchOptions struct {
	SendOptions
	// BatchSize は同時に送る宛先数（1..500）。0なら既定値
	BatchSize int
	// BatchDelay はチャンク間の待機時間。0なら既定値
	BatchDelay time.Duration
}

// SendResult は1件の送信結果
type SendResult struct {
	Success   bool            `json:"success"`
	MessageID string          `json:"messageId,omitempty"`
	Recipient string          `json:"recipient,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	Error     *apperrors.Info `json:"error,omitempty"`
}

// BatchError は一斉送信で失敗した宛先
type BatchError struct {
	Index     int            `json:"index"`
	Recipient string         `json:"recipient"`
	Error     apperrors.Info `json:"error"`
}

// BatchResult は一斉送信の集計結果
// Results[i] は常に入力の i 番目の宛先に対応する
type BatchResult struct {
	TotalUsers int          `json:"totalUsers"`
	Successful int          `json:"successful"`
	Failed     int          `json:"failed"`
	Results    []SendResult `json:"results"`
	Errors     []BatchError `json:"errors"`
}

// MessagingService はLINEへのメッセージ送信を担当するサービス
type MessagingService interface {
	// SendText はテキストメッセージをPush送信する
	SendText(ctx context.Context, to, text string, opts SendOptions) SendResult

	// SendStructured はFlexメッセージをPush送信する
	SendStructured(ctx context.Context, to, altText string, contents messaging_api.FlexContainerInterface, opts SendOptions) SendResult

	// Send は検証済みでないメッセージを検証してPush送信する
	Send(ctx context.Context, to string, msg model.Message, opts SendOptions) SendResult

	// SendBatch は同じメッセージを複数の宛先に送る
	SendBatch(ctx context.Context, recipients []string, msg model.Message, opts BatchOptions) BatchResult

	// Reply はリプライトークンで返信する。リトライはしない
	Reply(ctx context.Context, replyToken string, msgs ...model.Message) SendResult
}

// MessagingConfig は送信の既定値
type MessagingConfig struct {
	Deadline   time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

type messagingService struct {
	client   linebot.Client
	retrier  *retry.Retrier
	cfg      MessagingConfig
	metrics  *metrics.Metrics
	logger   *logrus.Entry
	clock    func() time.Time
	retryKey func() string
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewMessagingService は MessagingService の新しいインスタンスを作成する
// client が nil の場合、すべての送信は設定エラーになる
func NewMessagingService(client linebot.Client, retrier *retry.Retrier, cfg MessagingConfig, m *metrics.Metrics, log *logrus.Entry) MessagingService {
	if retrier == nil {
		retrier = retry.New()
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = DefaultSendDeadline
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > validation.MaxBatchSize {
		cfg.BatchSize = validation.MaxBatchSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &messagingService{
		client:   client,
		retrier:  retrier,
		cfg:      cfg,
		metrics:  m,
		logger:   log,
		clock:    time.Now,
		retryKey: uuid.NewString,
		sleep:    sleepContext,
	}
}

func (s *messagingService) SendText(ctx context.Context, to, text string, opts SendOptions) SendResult {
	return s.Send(ctx, to, model.NewTextMessage(text), opts)
}

func (s *messagingService) SendStructured(ctx context.Context, to, altText string, contents messaging_api.FlexContainerInterface, opts SendOptions) SendResult {
	return s.Send(ctx, to, model.NewStructuredMessage(altText, contents), opts)
}

// Send はメッセージをPush送信する
//
// 【重要】Push APIはLINE Messaging APIの有償カウント対象
// 同じ論理送信の全試行で同じ X-Line-Retry-Key を使い、LINE側で重複排除させる
func (s *messagingService) Send(ctx context.Context, to string, msg model.Message, opts SendOptions) SendResult {
	result := SendResult{Recipient: to, Timestamp: s.clock()}

	if err := validation.ValidateRecipient(to); err != nil {
		return s.fail(result, "push", err)
	}
	if err := validation.ValidateMessage(msg); err != nil {
		return s.fail(result, "push", err)
	}
	if s.client == nil {
		return s.fail(result, "push", notConfigured())
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = s.cfg.Deadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	request := &messaging_api.PushMessageRequest{
		To:                   to,
		Messages:             []messaging_api.MessageInterface{msg.ToLINE()},
		NotificationDisabled: opts.NotificationDisabled,
	}
	retryKey := s.retryKey()
	log := s.logger.WithFields(logrus.Fields{
		"recipient": logger.TruncateID(to),
		"kind":      msg.Kind,
		"preview":   msg.Preview(logPreviewRunes),
		"retry_key": retryKey,
	})

	began := time.Now()
	var response *messaging_api.PushMessageResponse
	attempts, err := s.retrier.DoN(ctx, opts.MaxAttempts, func(ctx context.Context, attempt int) error {
		res, err := s.client.PushMessage(ctx, request, retryKey)
		if err != nil {
			return err
		}
		response = res
		return nil
	}, func(attempt int, delay time.Duration, info apperrors.Info) {
		s.metrics.IncRetry(string(info.Type))
		log.WithFields(logrus.Fields{
			"attempt":    attempt,
			"delay_ms":   delay.Milliseconds(),
			"error_type": info.Type,
			"error_code": info.Code,
		}).Warn("Push failed, retrying")
	})
	s.metrics.ObserveSend("push", err == nil, time.Since(began))

	result.Attempts = attempts
	if err != nil {
		return s.fail(result, "push", err)
	}

	result.Success = true
	if response != nil && len(response.SentMessages) > 0 {
		result.MessageID = response.SentMessages[0].Id
	}
	log.WithFields(logrus.Fields{
		"attempts":   attempts,
		"message_id": result.MessageID,
	}).Info("Push message sent")
	return result
}

// SendBatch は recipients を BatchSize ごとのチャンクに分けて送信する
// 宛先ごとに失敗を分離し、不正な宛先や重複はAPIを呼ばずに失敗として数える
func (s *messagingService) SendBatch(ctx context.Context, recipients []string, msg model.Message, opts BatchOptions) BatchResult {
	size := opts.BatchSize
	if size <= 0 || size > validation.MaxBatchSize {
		size = s.cfg.BatchSize
	}
	delay := opts.BatchDelay
	if delay <= 0 {
		delay = s.cfg.BatchDelay
	}
	s.metrics.ObserveBatch(len(recipients))

	results := make([]SendResult, len(recipients))
	seen := make(map[string]struct{}, len(recipients))

	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))

		if start > 0 && delay > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				for i := start; i < len(recipients); i++ {
					results[i] = s.fail(SendResult{Recipient: recipients[i], Timestamp: s.clock()}, "push", err)
				}
				break
			}
		}

		var g errgroup.Group
		g.SetLimit(size)
		for i := start; i < end; i++ {
			to := recipients[i]
			if _, dup := seen[to]; dup {
				results[i] = s.fail(SendResult{Recipient: to, Timestamp: s.clock()}, "push",
					apperrors.NewValidationError(fmt.Sprintf("to[%d]", i), "is a duplicate recipient"))
				continue
			}
			seen[to] = struct{}{}

			g.Go(func() error {
				results[i] = s.Send(ctx, to, msg, opts.SendOptions)
				return nil
			})
		}
		_ = g.Wait()
	}

	out := BatchResult{
		TotalUsers: len(recipients),
		Results:    results,
		Errors:     []BatchError{},
	}
	for i, r := range results {
		if r.Success {
			out.Successful++
			continue
		}
		out.Failed++
		be := BatchError{Index: i, Recipient: r.Recipient}
		if r.Error != nil {
			be.Error = *r.Error
		}
		out.Errors = append(out.Errors, be)
	}

	s.logger.WithFields(logrus.Fields{
		"total":      out.TotalUsers,
		"successful": out.Successful,
		"failed":     out.Failed,
		"batch_size": size,
	}).Info("Batch send finished")
	return out
}

// Reply はリプライトークンで返信する
// リプライトークンは一度しか使えないためリトライしない
func (s *messagingService) Reply(ctx context.Context, replyToken string, msgs ...model.Message) SendResult {
	result := SendResult{Timestamp: s.clock()}

	if replyToken == "" {
		return s.fail(result, "reply", apperrors.NewValidationError("replyToken", "is required"))
	}
	if len(msgs) == 0 || len(msgs) > MaxReplyMessages {
		return s.fail(result, "reply", apperrors.NewValidationError("messages", fmt.Sprintf("must contain 1 to %d messages", MaxReplyMessages)))
	}
	messages := make([]messaging_api.MessageInterface, 0, len(msgs))
	for _, m := range msgs {
		if err := validation.ValidateMessage(m); err != nil {
			return s.fail(result, "reply", err)
		}
		messages = append(messages, m.ToLINE())
	}
	if s.client == nil {
		return s.fail(result, "reply", notConfigured())
	}

	began := time.Now()
	res, err := s.client.ReplyMessage(ctx, &messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	s.metrics.ObserveSend("reply", err == nil, time.Since(began))
	result.Attempts = 1
	if err != nil {
		return s.fail(result, "reply", err)
	}

	result.Success = true
	if res != nil && len(res.SentMessages) > 0 {
		result.MessageID = res.SentMessages[0].Id
	}
	return result
}

// fail は分類済みのエラー情報を result に載せてログを出す
// 詳細はサーバー側のログにだけ残す
func (s *messagingService) fail(result SendResult, op string, err error) SendResult {
	info := apperrors.Classify(err)
	result.Success = false
	result.Error = &info

	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"op":         op,
		"recipient":  logger.TruncateID(result.Recipient),
		"attempts":   result.Attempts,
		"error_type": info.Type,
		"error_code": info.Code,
	})
	if info.Type == apperrors.TypeValidation {
		entry.Warn("Message rejected")
	} else {
		entry.Error("Failed to send message")
	}
	return result
}

func notConfigured() error {
	return &apperrors.ConfigurationError{Missing: []string{"LINE_CHANNEL_ACCESS_TOKEN"}}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
