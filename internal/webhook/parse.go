package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdk "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
)

// DefaultMaxEvents は1リクエストに含められるイベント数の上限
const DefaultMaxEvents = 100

// ErrMalformed はWebhookの本文が仕様を満たさないことを表す
var ErrMalformed = errors.New("malformed webhook payload")

// FormatError は本文の構造エラー
// Index はエラーのあったイベントの位置。本文全体の問題なら -1
type FormatError struct {
	Index  int
	Reason string
}

func (e *FormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("malformed webhook payload: %s", e.Reason)
	}
	return fmt.Sprintf("malformed webhook payload: events[%d]: %s", e.Index, e.Reason)
}

// Is implements error comparison for errors.Is()
func (e *FormatError) Is(target error) bool {
	return target == ErrMalformed
}

// イベント種別
const (
	EventMessage      = "message"
	EventFollow       = "follow"
	EventUnfollow     = "unfollow"
	EventPostback     = "postback"
	EventJoin         = "join"
	EventLeave        = "leave"
	EventMemberJoined = "memberJoined"
	EventMemberLeft   = "memberLeft"
)

// 送信元種別
const (
	SourceUser  = "user"
	SourceGroup = "group"
	SourceRoom  = "room"
)

// Source はイベントの送信元
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// ChatID は返信先のトークIDを返す（グループ > ルーム > ユーザー）
func (s Source) ChatID() string {
	switch {
	case s.GroupID != "":
		return s.GroupID
	case s.RoomID != "":
		return s.RoomID
	default:
		return s.UserID
	}
}

// Event は構造検証済みのWebhookイベント
// Payload はSDKの型付きイベント（webhook.MessageEvent など）
type Event struct {
	Type           string
	Source         Source
	Timestamp      int64
	ReplyToken     string
	WebhookEventID string
	Redelivery     bool
	Payload        sdk.EventInterface
}

// Time はイベント発生時刻を返す
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Batch は1リクエスト分のイベント
type Batch struct {
	Destination string
	Events      []Event
}

type rawEvent struct {
	Type            *string         `json:"type"`
	Timestamp       json.RawMessage `json:"timestamp"`
	Source          *Source         `json:"source"`
	ReplyToken      string          `json:"replyToken"`
	WebhookEventID  string          `json:"webhookEventId"`
	DeliveryContext *struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext"`
}

// Parse は署名検証済みの本文をイベントに変換する
//
// events が無い・配列でない・maxEvents を超える、またはいずれかのイベントに
// type / timestamp / source が欠けている場合はバッチ全体を拒否する
func Parse(body []byte, maxEvents int) (*Batch, error) {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}

	var envelope struct {
		Destination string          `json:"destination"`
		Events      json.RawMessage `json:"events"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FormatError{Index: -1, Reason: "body must be a JSON object"}
	}

	raw := bytes.TrimSpace(envelope.Events)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, &FormatError{Index: -1, Reason: "events is required"}
	}
	if raw[0] != '[' {
		return nil, &FormatError{Index: -1, Reason: "events must be an array"}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &FormatError{Index: -1, Reason: "events must be an array"}
	}
	if len(items) > maxEvents {
		return nil, &FormatError{Index: -1, Reason: fmt.Sprintf("too many events: %d (max %d)", len(items), maxEvents)}
	}

	events := make([]Event, len(items))
	for i, item := range items {
		ev, err := parseEvent(i, item)
		if err != nil {
			return nil, err
		}
		events[i] = ev
	}

	if len(events) > 0 {
		var cb sdk.CallbackRequest
		if err := json.Unmarshal(body, &cb); err != nil {
			return nil, &FormatError{Index: -1, Reason: "invalid event payload: " + err.Error()}
		}
		if len(cb.Events) != len(events) {
			return nil, &FormatError{Index: -1, Reason: "invalid event payload"}
		}
		for i := range events {
			events[i].Payload = cb.Events[i]
		}
	}

	return &Batch{Destination: envelope.Destination, Events: events}, nil
}

func parseEvent(i int, item json.RawMessage) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(item, &re); err != nil {
		return Event{}, &FormatError{Index: i, Reason: "event must be an object"}
	}
	if re.Type == nil || *re.Type == "" {
		return Event{}, &FormatError{Index: i, Reason: "type is required"}
	}
	if len(re.Timestamp) == 0 || string(re.Timestamp) == "null" {
		return Event{}, &FormatError{Index: i, Reason: "timestamp is required"}
	}
	var ts int64
	if err := json.Unmarshal(re.Timestamp, &ts); err != nil {
		return Event{}, &FormatError{Index: i, Reason: "timestamp must be an integer"}
	}
	if re.Source == nil {
		return Event{}, &FormatError{Index: i, Reason: "source is required"}
	}

	ev := Event{
		Type:           *re.Type,
		Source:         *re.Source,
		Timestamp:      ts,
		ReplyToken:     re.ReplyToken,
		WebhookEventID: re.WebhookEventID,
	}
	if re.DeliveryContext != nil {
		ev.Redelivery = re.DeliveryContext.IsRedelivery
	}
	return ev, nil
}
