package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/morinonusi421/nexustrade-line/internal/market"
	"github.com/morinonusi421/nexustrade-line/internal/message"
	"github.com/morinonusi421/nexustrade-line/internal/model"
	"github.com/morinonusi421/nexustrade-line/internal/template"
)

func newTestRenderer() *template.Renderer {
	return template.New(func() time.Time { return testTime })
}

func TestMessageService_ProcessTextMessage_Routing(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		wantKind model.MessageKind
		wantText string
	}{
		{name: "help", text: "help", wantKind: model.MessageKindText, wantText: message.Help},
		{name: "ヘルプ", text: " ヘルプ ", wantKind: model.MessageKindText, wantText: message.Help},
		{name: "HELPも大文字小文字を区別しない", text: "HELP", wantKind: model.MessageKindText, wantText: message.Help},
		{name: "アラート", text: "アラート", wantKind: model.MessageKindText, wantText: message.AlertInfo},
		{name: "alert", text: "alert", wantKind: model.MessageKindText, wantText: message.AlertInfo},
		{name: "該当なしはヘルプへの案内", text: "こんにちは", wantKind: model.MessageKindText, wantText: message.UnknownCommand},
		{name: "小文字のシンボルは拾わない", text: "btc", wantKind: model.MessageKindText, wantText: message.UnknownCommand},
		{name: "シンボルは価格情報", text: "BTC", wantKind: model.MessageKindStructured},
		{name: "文中のシンボル", text: "今の ETHUSDT は？", wantKind: model.MessageKindStructured},
		{name: "価格コマンド", text: "価格 sol", wantKind: model.MessageKindStructured},
		{name: "price コマンド", text: "price btc", wantKind: model.MessageKindStructured},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMessageService(newTestRenderer(), nil, nil, nil)

			msgs, err := svc.ProcessTextMessage(context.Background(), userA, tt.text)

			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantKind, msgs[0].Kind)
			if tt.wantText != "" {
				assert.Equal(t, tt.wantText, msgs[0].Text)
			}
		})
	}
}

func TestMessageService_Quote_UsesTicker(t *testing.T) {
	mc := new(MockMarketClient)
	mc.On("Ticker", mock.Anything, "BTCUSDT").Return(&market.Ticker{
		Symbol:             "BTCUSDT",
		LastPrice:          decimal.RequireFromString("65000"),
		PriceChangePercent: decimal.RequireFromString("2.5"),
		HighPrice:          decimal.RequireFromString("66000"),
		LowPrice:           decimal.RequireFromString("63000"),
		Volume:             decimal.RequireFromString("12345.678"),
	}, nil).Once()
	svc := NewMessageService(newTestRenderer(), mc, nil, nil)

	msgs, err := svc.ProcessTextMessage(context.Background(), userA, "価格 btc")

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageKindStructured, msgs[0].Kind)
	assert.Contains(t, msgs[0].AltText, "BTCUSDT")
	assert.Contains(t, msgs[0].AltText, "$65,000.00")
	assert.Contains(t, msgs[0].AltText, "+2.50%")
	mc.AssertExpectations(t)
}

func TestMessageService_Quote_TickerFailureUsesPlaceholder(t *testing.T) {
	mc := new(MockMarketClient)
	mc.On("Ticker", mock.Anything, "ETHUSDT").Return(nil, errors.New("binance: status 400")).Once()
	svc := NewMessageService(newTestRenderer(), mc, nil, nil)

	msgs, err := svc.ProcessTextMessage(context.Background(), userA, "ETH")

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageKindStructured, msgs[0].Kind)
	assert.Contains(t, msgs[0].AltText, "ETHUSDT")
	assert.Contains(t, msgs[0].AltText, message.Placeholder)
	mc.AssertExpectations(t)
}

func TestMessageService_Status(t *testing.T) {
	status := stubStatus{Configured: true, Followers: 42, TemplateCount: 7}
	svc := NewMessageService(newTestRenderer(), nil, status, nil)

	msgs, err := svc.ProcessTextMessage(context.Background(), userA, "ステータス")

	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageKindText, msgs[0].Kind)
	assert.Contains(t, msgs[0].Text, message.ServiceStatus(true, 42, 7))
	assert.Contains(t, msgs[0].Text, "2026-03-14 00:00 UTC")
}

func TestMessageService_ProcessCommand(t *testing.T) {
	tests := []struct {
		name     string
		command  string
		arg      string
		wantText string
	}{
		{name: "help", command: "help", wantText: message.Help},
		{name: "alert", command: "ALERT", wantText: message.AlertInfo},
		{name: "引数なしの quote", command: "quote", arg: " ", wantText: message.UnknownCommand},
		{name: "未対応のコマンド", command: "delete", wantText: message.PostbackUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewMessageService(newTestRenderer(), nil, nil, nil)

			msgs, err := svc.ProcessCommand(context.Background(), tt.command, tt.arg)

			require.NoError(t, err)
			require.Len(t, msgs, 1)
			assert.Equal(t, tt.wantText, msgs[0].Text)
		})
	}
}
