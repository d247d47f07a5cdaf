// Package template は通知テンプレートから送信メッセージを組み立てる
// 時刻は注入された clock からだけ読むので、同じ入力には同じ出力を返す
package template

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
	"github.com/morinonusi421/nexustrade-line/internal/message"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/validation"
)

// Name はテンプレート名
type Name string

const (
	PriceAlert    Name = "priceAlert"
	PriceQuote    Name = "priceQuote"
	MarketSummary Name = "marketSummary"
	Welcome       Name = "welcome"
	Help          Name = "help"
	AlertInfo     Name = "alertInfo"
	SystemNotice  Name = "systemNotice"
)

// MaxSummaryItems はマーケットサマリーに載せる銘柄数の上限
const MaxSummaryItems = 10

const timestampLayout = "2006-01-02 15:04 UTC"

type renderFunc func(r *Renderer, data Data) (model.Message, error)

type entry struct {
	kind   model.MessageKind
	render renderFunc
}

var registry = map[Name]entry{
	PriceAlert:    {model.MessageKindStructured, (*Renderer).priceAlert},
	PriceQuote:    {model.MessageKindStructured, (*Renderer).priceQuote},
	MarketSummary: {model.MessageKindStructured, (*Renderer).marketSummary},
	Welcome:       {model.MessageKindText, (*Renderer).welcome},
	Help:          {model.MessageKindText, (*Renderer).help},
	AlertInfo:     {model.MessageKindText, (*Renderer).alertInfo},
	SystemNotice:  {model.MessageKindText, (*Renderer).systemNotice},
}

// KindOf はテンプレートが作るメッセージの種別を返す
func KindOf(name Name) (model.MessageKind, bool) {
	e, ok := registry[name]
	return e.kind, ok
}

// Names は登録済みテンプレート名を名前順で返す
func Names() []Name {
	names := make([]Name, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ParseName は外部から受け取った文字列をテンプレート名に変換する
func ParseName(s string) (Name, error) {
	if err := validation.ValidateTemplateName(s); err != nil {
		return "", err
	}
	n := Name(s)
	if _, ok := registry[n]; !ok {
		return "", apperrors.NewValidationError("templateName", fmt.Sprintf("unknown template %q", s))
	}
	return n, nil
}

// Renderer はテンプレートを描画する
type Renderer struct {
	clock func() time.Time
}

// New は Renderer を作成する。clock が nil なら time.Now を使う
func New(clock func() time.Time) *Renderer {
	if clock == nil {
		clock = time.Now
	}
	return &Renderer{clock: clock}
}

// Render は name のテンプレートを data で描画する
func (r *Renderer) Render(name Name, data Data) (model.Message, error) {
	e, ok := registry[name]
	if !ok {
		return model.Message{}, apperrors.NewValidationError("templateName", fmt.Sprintf("unknown template %q", string(name)))
	}
	if data == nil {
		data = Data{}
	}
	if err := validation.ValidateTemplateData(map[string]any(data)); err != nil {
		return model.Message{}, err
	}

	msg, err := e.render(r, data)
	if err != nil {
		return model.Message{}, err
	}
	if err := validation.ValidateMessage(msg); err != nil {
		return model.Message{}, fmt.Errorf("template %s produced an invalid message: %w", name, err)
	}
	return msg, nil
}

func (r *Renderer) timestamp() string {
	return r.clock().UTC().Format(timestampLayout)
}

func requireString(data Data, key string) (string, error) {
	s, ok := data.String(key)
	if !ok {
		return "", apperrors.NewValidationError(key, "is required")
	}
	return s, nil
}

func (r *Renderer) priceAlert(data Data) (model.Message, error) {
	symbol, err := requireString(data, "symbol")
	if err != nil {
		return model.Message{}, err
	}
	symbol = strings.ToUpper(symbol)

	current := data.priceOr("currentPrice", message.Placeholder)
	target := data.priceOr("targetPrice", message.Placeholder)
	change, dir := data.changeOr("changePercent", message.Placeholder)

	condition := message.ConditionReached
	if t, _ := data.String("alertType"); t != "" {
		switch strings.ToLower(t) {
		case "above":
			condition = message.ConditionAbove
		case "below":
			condition = message.ConditionBelow
		}
	}

	contents := bubble(
		header(message.PriceAlertTitle, symbol, dir.Color()),
		body(
			row(message.LabelCurrentPrice, current, ""),
			row(message.LabelTargetPrice, target, ""),
			row(message.LabelCondition, condition, ""),
			separator(),
			row(message.LabelChange24h, dir.Marker()+" "+change, dir.Color()),
		),
		footer(r.timestamp()),
	)
	alt := truncateRunes(message.PriceAlertAltText(symbol, current, change), validation.MaxAltTextLength)
	return model.NewStructuredMessage(alt, contents), nil
}

func (r *Renderer) priceQuote(data Data) (model.Message, error) {
	symbol, err := requireString(data, "symbol")
	if err != nil {
		return model.Message{}, err
	}
	symbol = strings.ToUpper(symbol)

	price := data.priceOr("price", message.Placeholder)
	change, dir := data.changeOr("changePercent", message.Placeholder)
	volume := message.Placeholder
	if v, ok := data.Decimal("volume"); ok {
		volume = FormatVolume(v)
	}

	contents := bubble(
		header(message.PriceQuoteTitle, symbol, dir.Color()),
		body(
			row(message.LabelCurrentPrice, price, ""),
			row(message.LabelChange24h, dir.Marker()+" "+change, dir.Color()),
			separator(),
			row(message.LabelHigh24h, data.priceOr("highPrice", message.Placeholder), ""),
			row(message.LabelLow24h, data.priceOr("lowPrice", message.Placeholder), ""),
			row(message.LabelVolume24h, volume, ""),
		),
		footer(r.timestamp()),
	)
	alt := truncateRunes(message.PriceQuoteAltText(symbol, price, change), validation.MaxAltTextLength)
	return model.NewStructuredMessage(alt, contents), nil
}

func (r *Renderer) marketSummary(data Data) (model.Message, error) {
	items := data.List("items")
	if len(items) > MaxSummaryItems {
		items = items[:MaxSummaryItems]
	}

	rows := make([]messaging_api.FlexComponentInterface, 0, len(items))
	parts := make([]string, 0, len(items))
	for _, item := range items {
		symbol, ok := item.String("symbol")
		if !ok {
			continue
		}
		symbol = strings.ToUpper(symbol)
		price := item.priceOr("price", message.Placeholder)
		change, dir := item.changeOr("changePercent", message.Placeholder)
		rows = append(rows, tickerRow(symbol, price, change, dir))
		parts = append(parts, fmt.Sprintf("%s %s", symbol, change))
	}
	if len(rows) == 0 {
		rows = append(rows, &messaging_api.FlexText{
			Text:  message.NoMarketData,
			Size:  "sm",
			Color: colorMuted,
		})
	}

	contents := bubble(
		header(message.MarketSummaryTitle, "", ""),
		body(rows...),
		footer(r.timestamp()),
	)
	alt := message.MarketSummaryTitle
	if len(parts) > 0 {
		alt += ": " + strings.Join(parts, " / ")
	}
	return model.NewStructuredMessage(truncateRunes(alt, validation.MaxAltTextLength), contents), nil
}

func (r *Renderer) welcome(data Data) (model.Message, error) {
	name, ok := data.String("displayName")
	if !ok {
		name = message.DefaultDisplayName
	}
	return model.NewTextMessage(message.Welcome(name)), nil
}

func (r *Renderer) help(Data) (model.Message, error) {
	return model.NewTextMessage(message.Help), nil
}

func (r *Renderer) alertInfo(Data) (model.Message, error) {
	return model.NewTextMessage(message.AlertInfo), nil
}

func (r *Renderer) systemNotice(data Data) (model.Message, error) {
	notice, err := requireString(data, "message")
	if err != nil {
		return model.Message{}, err
	}
	title, ok := data.String("title")
	if !ok {
		title = message.DefaultNoticeTitle
	}
	level, _ := data.String("level")

	text := fmt.Sprintf("%s %s\n\n%s\n\n%s", levelIcon(level), title, notice, r.timestamp())
	return model.NewTextMessage(truncateRunes(text, validation.MaxTextLength)), nil
}

func levelIcon(level string) string {
	switch strings.ToLower(level) {
	case "critical":
		return "🚨"
	case "warning":
		return "⚠️"
	default:
		return "ℹ️"
	}
}
