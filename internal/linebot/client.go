package linebot

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/morinonusi421/nexustrade-line/internal/apperrors"
)

const (
	// DefaultEndpoint はLINE Messaging APIのエンドポイント
	DefaultEndpoint = "https://api.line.me"

	requestIDHeader = "X-Line-Request-Id"
	maxErrorBody    = 1000
)

// Client はLINE Messaging APIクライアントのインターフェース
// 失敗は apperrors.APIError / apperrors.NetworkError に変換して返す
type Client interface {
	PushMessage(ctx context.Context, request *messaging_api.PushMessageRequest, retryKey string) (*messaging_api.PushMessageResponse, error)
	ReplyMessage(ctx context.Context, request *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error)
	GetProfile(ctx context.Context, userID string) (*messaging_api.UserProfileResponse, error)
}

// client はLINE SDKをラップする実装
type client struct {
	api *messaging_api.MessagingApiAPI
}

// NewClient はLINE Bot Clientの新しいインスタンスを作成する
func NewClient(api *messaging_api.MessagingApiAPI) Client {
	return &client{api: api}
}

// New はチャネルアクセストークンからクライアントを作成する
// endpoint が空なら DefaultEndpoint を使う
func New(channelToken, endpoint string, httpClient *http.Client) (Client, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	opts := []messaging_api.MessagingApiAPIOption{messaging_api.WithEndpoint(endpoint)}
	if httpClient != nil {
		opts = append(opts, messaging_api.WithHTTPClient(httpClient))
	}
	api, err := messaging_api.NewMessagingApiAPI(channelToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging api client: %w", err)
	}
	return NewClient(api), nil
}

// withContext はリクエストごとにコンテキストを差し替えたコピーを返す
// SDKの WithContext はレシーバを書き換えるため、共有インスタンスには使わない
func (c *client) withContext(ctx context.Context) *messaging_api.MessagingApiAPI {
	api := *c.api
	return api.WithContext(ctx)
}

// PushMessage はメッセージをプッシュ送信する
// retryKey が同じリクエストはLINE側で重複排除される
func (c *client) PushMessage(ctx context.Context, request *messaging_api.PushMessageRequest, retryKey string) (*messaging_api.PushMessageResponse, error) {
	res, out, err := c.withContext(ctx).PushMessageWithHttpInfo(request, retryKey)
	if err != nil {
		// 409 は同じリトライキーのリクエストが受理済み
		if res != nil && res.StatusCode == http.StatusConflict && retryKey != "" {
			drain(res)
			return &messaging_api.PushMessageResponse{}, nil
		}
		return nil, toError("push", res, err)
	}
	drain(res)
	return out, nil
}

// ReplyMessage はメッセージを返信する
func (c *client) ReplyMessage(ctx context.Context, request *messaging_api.ReplyMessageRequest) (*messaging_api.ReplyMessageResponse, error) {
	res, out, err := c.withContext(ctx).ReplyMessageWithHttpInfo(request)
	if err != nil {
		return nil, toError("reply", res, err)
	}
	drain(res)
	return out, nil
}

// GetProfile はユーザーのプロフィールを取得する
func (c *client) GetProfile(ctx context.Context, userID string) (*messaging_api.UserProfileResponse, error) {
	res, out, err := c.withContext(ctx).GetProfileWithHttpInfo(userID)
	if err != nil {
		return nil, toError("profile", res, err)
	}
	drain(res)
	return out, nil
}

// toError はSDKの失敗をタグ付きエラーに変換する
// レスポンスがあればAPIエラー、なければ通信エラー
func toError(op string, res *http.Response, err error) error {
	if res == nil {
		return &apperrors.NetworkError{Op: op, Err: err}
	}
	defer res.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
	if readErr != nil {
		body = []byte(err.Error())
	}
	return &apperrors.APIError{
		Op:         op,
		StatusCode: res.StatusCode,
		Body:       string(body),
		RequestID:  res.Header.Get(requestIDHeader),
	}
}

func drain(res *http.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	res.Body.Close()
}
