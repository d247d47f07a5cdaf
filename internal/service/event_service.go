package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	sdk "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/message"
	"github.com/morinonusi421/nexustrade-line/internal/metrics"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/repository"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/internal/webhook"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// ProfileFetcher はユーザーのプロフィールを取得する
type ProfileFetcher interface {
	GetProfile(ctx context.Context, userID string) (*messaging_api.UserProfileResponse, error)
}

// EventService はWebhookイベントを種別ごとに処理する
type EventService interface {
	// Handle は1件のイベントを処理する
	// エラーはそのイベントだけのもので、他のイベントの処理には影響しない
	Handle(ctx context.Context, ev webhook.Event) error
}

type eventService struct {
	messaging MessagingService
	messages  MessageService
	renderer  *template.Renderer
	followers repository.FollowerRepository
	profiles  ProfileFetcher
	metrics   *metrics.Metrics
	logger    *logrus.Entry
}

// NewEventService は EventService の新しいインスタンスを作成する
// followers と profiles は nil でもよい
func NewEventService(
	messaging MessagingService,
	messages MessageService,
	renderer *template.Renderer,
	followers repository.FollowerRepository,
	profiles ProfileFetcher,
	m *metrics.Metrics,
	log *logrus.Entry,
) EventService {
	if log == nil {
		log = logger.Discard()
	}
	return &eventService{
		messaging: messaging,
		messages:  messages,
		renderer:  renderer,
		followers: followers,
		profiles:  profiles,
		metrics:   m,
		logger:    log,
	}
}

func (s *eventService) Handle(ctx context.Context, ev webhook.Event) error {
	log := s.logger.WithFields(logrus.Fields{
		"event_type": ev.Type,
		"timestamp":  ev.Timestamp,
		"user_id":    logger.TruncateID(ev.Source.UserID),
		"redelivery": ev.Redelivery,
	})

	var err error
	switch ev.Type {
	case webhook.EventMessage:
		err = s.handleMessage(ctx, ev, log)
	case webhook.EventFollow:
		err = s.handleFollow(ctx, ev, log)
	case webhook.EventUnfollow:
		err = s.handleUnfollow(ctx, ev)
	case webhook.EventPostback:
		err = s.handlePostback(ctx, ev)
	case webhook.EventJoin:
		err = s.reply(ctx, ev, model.NewTextMessage(message.JoinGroupGreeting))
	case webhook.EventMemberJoined:
		err = s.reply(ctx, ev, model.NewTextMessage(message.MemberJoinedGreeting))
	case webhook.EventLeave, webhook.EventMemberLeft:
		log.WithField("chat_id", logger.TruncateID(ev.Source.ChatID())).Info("Left chat")
	default:
		log.Warn("Unhandled event type")
		s.metrics.IncWebhookEvent(ev.Type, metrics.OutcomeSkipped)
		return nil
	}

	if err != nil {
		s.metrics.IncWebhookEvent(ev.Type, metrics.OutcomeFailure)
		log.WithError(err).Error("Failed to handle event")
		return err
	}
	s.metrics.IncWebhookEvent(ev.Type, metrics.OutcomeSuccess)
	log.Debug("Event handled")
	return nil
}

// handleMessage はテキストメッセージにだけ応答する
func (s *eventService) handleMessage(ctx context.Context, ev webhook.Event, log *logrus.Entry) error {
	e, ok := ev.Payload.(sdk.MessageEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for message event", ev.Payload)
	}
	text, ok := e.Message.(sdk.TextMessageContent)
	if !ok {
		log.WithField("message_type", fmt.Sprintf("%T", e.Message)).Debug("Ignoring non-text message")
		return nil
	}

	msgs, err := s.messages.ProcessTextMessage(ctx, ev.Source.UserID, text.Text)
	if err != nil {
		return fmt.Errorf("failed to process text message: %w", err)
	}
	return s.reply(ctx, ev, msgs...)
}

// handleFollow は友だち登録を記録して挨拶を返す
// 記録に失敗しても挨拶は送る
func (s *eventService) handleFollow(ctx context.Context, ev webhook.Event, log *logrus.Entry) error {
	userID := ev.Source.UserID
	displayName := ""
	if s.profiles != nil && userID != "" {
		profile, err := s.profiles.GetProfile(ctx, userID)
		if err != nil {
			log.WithError(err).Warn("Failed to get profile")
		} else if profile != nil {
			displayName = profile.DisplayName
		}
	}

	var saveErr error
	if s.followers != nil && userID != "" {
		if err := s.followers.Upsert(ctx, model.NewFollower(userID, displayName, ev.Time())); err != nil {
			saveErr = fmt.Errorf("failed to save follower: %w", err)
		}
	}

	data := template.Data{}
	if displayName != "" {
		data["displayName"] = displayName
	}
	welcome, err := s.renderer.Render(template.Welcome, data)
	if err != nil {
		return errors.Join(saveErr, err)
	}
	return errors.Join(saveErr, s.reply(ctx, ev, welcome))
}

func (s *eventService) handleUnfollow(ctx context.Context, ev webhook.Event) error {
	if s.followers == nil || ev.Source.UserID == "" {
		return nil
	}
	if err := s.followers.MarkUnfollowed(ctx, ev.Source.UserID, ev.Time()); err != nil {
		return fmt.Errorf("failed to mark unfollowed: %w", err)
	}
	return nil
}

// handlePostback は action=quote&symbol=BTC のようなデータを処理する
func (s *eventService) handlePostback(ctx context.Context, ev webhook.Event) error {
	e, ok := ev.Payload.(sdk.PostbackEvent)
	if !ok {
		return fmt.Errorf("unexpected payload %T for postback event", ev.Payload)
	}
	data := ""
	if e.Postback != nil {
		data = e.Postback.Data
	}

	values, err := url.ParseQuery(data)
	action := strings.TrimSpace(values.Get("action"))
	if err != nil || action == "" {
		return s.reply(ctx, ev, model.NewTextMessage(message.PostbackUnknown))
	}

	msgs, err := s.messages.ProcessCommand(ctx, action, values.Get("symbol"))
	if err != nil {
		return fmt.Errorf("failed to process postback %q: %w", action, err)
	}
	return s.reply(ctx, ev, msgs...)
}

func (s *eventService) reply(ctx context.Context, ev webhook.Event, msgs ...model.Message) error {
	if ev.ReplyToken == "" || len(msgs) == 0 {
		return nil
	}
	if len(msgs) > MaxReplyMessages {
		msgs = msgs[:MaxReplyMessages]
	}
	result := s.messaging.Reply(ctx, ev.ReplyToken, msgs...)
	if result.Success {
		return nil
	}
	if result.Error != nil {
		return fmt.Errorf("failed to reply: %s (%s)", result.Error.Code, result.Error.Message)
	}
	return errors.New("failed to reply")
}
