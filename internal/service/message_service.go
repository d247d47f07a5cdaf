package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/market"
	"github.com/morinonusi421/nexustrade-line/internal/message"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

// symbolPattern は通貨シンボルらしい語を拾う（例: BTC, ETHUSDT）
var symbolPattern = regexp.MustCompile(`\b([A-Z]{2,10})(USDT|BUSD|BTC|ETH)?\b`)

// StatusReporter はステータスコマンド用にサービスの状態を返す
type StatusReporter interface {
	GetStatus(ctx context.Context) Status
}

// MessageService はテキストメッセージへの応答を決めるビジネスロジック層のインターフェース
type MessageService interface {
	ProcessTextMessage(ctx context.Context, userID, text string) ([]model.Message, error)
	// ProcessCommand は postback などで指定されたコマンドを処理する
	ProcessCommand(ctx context.Context, command, arg string) ([]model.Message, error)
}

type messageService struct {
	renderer *template.Renderer
	market   market.Client
	status   StatusReporter
	logger   *logrus.Entry
}

// NewMessageService は MessageService の新しいインスタンスを作成する
// market と status は nil でもよい
func NewMessageService(renderer *template.Renderer, marketClient market.Client, status StatusReporter, log *logrus.Entry) MessageService {
	if log == nil {
		log = logger.Discard()
	}
	return &messageService{
		renderer: renderer,
		market:   marketClient,
		status:   status,
		logger:   log,
	}
}

// ProcessTextMessage はキーワードで応答を振り分ける
// 状態は持たず、同じ入力には同じ種類の応答を返す
func (s *messageService) ProcessTextMessage(ctx context.Context, userID, text string) ([]model.Message, error) {
	trimmed := strings.TrimSpace(text)
	fields := strings.Fields(trimmed)
	lower := strings.ToLower(trimmed)

	switch {
	case lower == "help" || trimmed == "ヘルプ":
		return s.ProcessCommand(ctx, "help", "")
	case len(fields) == 2 && (strings.EqualFold(fields[0], "price") || fields[0] == "価格"):
		return s.ProcessCommand(ctx, "price", fields[1])
	case lower == "status" || trimmed == "ステータス":
		return s.ProcessCommand(ctx, "status", "")
	case lower == "alert" || trimmed == "アラート":
		return s.ProcessCommand(ctx, "alert", "")
	}

	if m := symbolPattern.FindString(trimmed); m != "" {
		return s.ProcessCommand(ctx, "price", m)
	}

	s.logger.WithField("user_id", logger.TruncateID(userID)).Debug("No command matched")
	return []model.Message{model.NewTextMessage(message.UnknownCommand)}, nil
}

// ProcessCommand はコマンド名と引数から応答を作る
func (s *messageService) ProcessCommand(ctx context.Context, command, arg string) ([]model.Message, error) {
	switch strings.ToLower(command) {
	case "help":
		return s.render(template.Help, nil)
	case "alert":
		return s.render(template.AlertInfo, nil)
	case "status":
		return s.statusNotice(ctx)
	case "price", "quote":
		if strings.TrimSpace(arg) == "" {
			return []model.Message{model.NewTextMessage(message.UnknownCommand)}, nil
		}
		return s.quote(ctx, arg)
	default:
		return []model.Message{model.NewTextMessage(message.PostbackUnknown)}, nil
	}
}

// quote は価格情報カードを作る
// 価格を取得できなかった場合もカードは返し、値はプレースホルダになる
func (s *messageService) quote(ctx context.Context, symbol string) ([]model.Message, error) {
	symbol = market.NormalizeSymbol(symbol)
	data := template.Data{"symbol": symbol}

	if s.market != nil {
		ticker, err := s.market.Ticker(ctx, symbol)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", symbol).Warn("Failed to fetch ticker")
		} else {
			data["price"] = ticker.LastPrice
			data["changePercent"] = ticker.PriceChangePercent
			data["highPrice"] = ticker.HighPrice
			data["lowPrice"] = ticker.LowPrice
			data["volume"] = ticker.Volume
		}
	}
	return s.render(template.PriceQuote, data)
}

func (s *messageService) statusNotice(ctx context.Context) ([]model.Message, error) {
	var st Status
	if s.status != nil {
		st = s.status.GetStatus(ctx)
	}
	return s.render(template.SystemNotice, template.Data{
		"title":   "ステータス",
		"message": message.ServiceStatus(st.Configured, st.Followers, st.TemplateCount),
		"level":   "info",
	})
}

func (s *messageService) render(name template.Name, data template.Data) ([]model.Message, error) {
	msg, err := s.renderer.Render(name, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", name, err)
	}
	return []model.Message{msg}, nil
}
