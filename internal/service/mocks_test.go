package service

import (
	"context"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/stretchr/testify/mock"

	"github.com/morinonusi421/nexustrade-line/internal/market"
	"github.com/morinonusi421/nexustrade-line/internal/model"
)

// MockLineClient は linebot.Client の mock
type MockLineClient struct {
	mock.Mock
}

func (m *MockLineClient) PushMessage(ctx context.Context, request *messaging_api.PushMessageRequest, retryKey string) (*messaging_api.PushMessageResponse, error) {
	args := m.Called(ctx, request, retryKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging_api.PushMessageResponse), args.Error(1)
}

func (m *MockLineClient) ReplyMessage(ctx context.Context, request *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging_api.ReplyMessageResponse), args.Error(1)
}

func (m *MockLineClient) GetProfile(ctx context.Context, userID string) (*messaging_api.UserProfileResponse, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*messaging_api.UserProfileResponse), args.Error(1)
}

func sentResponse(id string) *messaging_api.PushMessageResponse {
	return &messaging_api.PushMessageResponse{
		SentMessages: []messaging_api.SentMessage{{Id: id, QuoteToken: "quote"}},
	}
}

// MockMessagingService は MessagingService の mock
type MockMessagingService struct {
	mock.Mock
}

func (m *MockMessagingService) SendText(ctx context.Context, to, text string, opts SendOptions) SendResult {
	args := m.Called(ctx, to, text, opts)
	return args.Get(0).(SendResult)
}

func (m *MockMessagingService) SendStructured(ctx context.Context, to, altText string, contents messaging_api.FlexContainerInterface, opts SendOptions) SendResult {
	args := m.Called(ctx, to, altText, contents, opts)
	return args.Get(0).(SendResult)
}

func (m *MockMessagingService) Send(ctx context.Context, to string, msg model.Message, opts SendOptions) SendResult {
	args := m.Called(ctx, to, msg, opts)
	return args.Get(0).(SendResult)
}

func (m *MockMessagingService) SendBatch(ctx context.Context, recipients []string, msg model.Message, opts BatchOptions) BatchResult {
	args := m.Called(ctx, recipients, msg, opts)
	return args.Get(0).(BatchResult)
}

func (m *MockMessagingService) Reply(ctx context.Context, replyToken string, msgs ...model.Message) SendResult {
	args := m.Called(ctx, replyToken, msgs)
	return args.Get(0).(SendResult)
}

// MockFollowerRepository は repository.FollowerRepository の mock
type MockFollowerRepository struct {
	mock.Mock
}

func (m *MockFollowerRepository) Upsert(ctx context.Context, follower *model.Follower) error {
	args := m.Called(ctx, follower)
	return args.Error(0)
}

func (m *MockFollowerRepository) MarkUnfollowed(ctx context.Context, userID string, at time.Time) error {
	args := m.Called(ctx, userID, at)
	return args.Error(0)
}

func (m *MockFollowerRepository) FindByUserID(ctx context.Context, userID string) (*model.Follower, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Follower), args.Error(1)
}

func (m *MockFollowerRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockFollowerRepository) CountActive(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

// MockMarketClient は market.Client の mock
type MockMarketClient struct {
	mock.Mock
}

func (m *MockMarketClient) Ticker(ctx context.Context, symbol string) (*market.Ticker, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*market.Ticker), args.Error(1)
}

// MockMessageService は MessageService の mock
type MockMessageService struct {
	mock.Mock
}

func (m *MockMessageService) ProcessTextMessage(ctx context.Context, userID, text string) ([]model.Message, error) {
	args := m.Called(ctx, userID, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *MockMessageService) ProcessCommand(ctx context.Context, command, arg string) ([]model.Message, error) {
	args := m.Called(ctx, command, arg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

// stubStatus は固定の Status を返す
type stubStatus Status

func (s stubStatus) GetStatus(context.Context) Status { return Status(s) }
