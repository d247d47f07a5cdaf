package model

import (
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

// MessageKind は送信メッセージの種別
type MessageKind string

const (
	MessageKindText       MessageKind = "text"
	MessageKindStructured MessageKind = "structured"
)

// Message は送信メッセージのドメインモデル
// Kind が text のときは Text、structured のときは AltText と Contents を使う
type Message struct {
	Kind     MessageKind
	Text     string
	AltText  string
	Contents messaging_api.FlexContainerInterface
}

// NewTextMessage はテキストメッセージを作成する
func NewTextMessage(text string) Message {
	return Message{Kind: MessageKindText, Text: text}
}

// NewStructuredMessage はFlexメッセージを作成する
func NewStructuredMessage(altText string, contents messaging_api.FlexContainerInterface) Message {
	return Message{Kind: MessageKindStructured, AltText: altText, Contents: contents}
}

// Preview はログ用に本文（またはaltText）を先頭 n 文字に切り詰めて返す
func (m Message) Preview(n int) string {
	s := m.Text
	if m.Kind == MessageKindStructured {
		s = m.AltText
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// ToLINE はSDKの送信メッセージ型に変換する
func (m Message) ToLINE() messaging_api.MessageInterface {
	if m.Kind == MessageKindStructured {
		return &messaging_api.FlexMessage{
			AltText:  m.AltText,
			Contents: m.Contents,
		}
	}
	return &messaging_api.TextMessage{Text: m.Text}
}
