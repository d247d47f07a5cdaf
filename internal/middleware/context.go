package middleware

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

type contextKey string

const (
	ctxRequestID contextKey = "request_id"
	ctxLogger    contextKey = "logger"
)

// RequestIDFromContext は context からリクエストIDを取得する
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// Logger は context に載ったリクエスト用のロガーを返す
// 無ければ fallback、fallback も nil なら何も出力しないロガー
func Logger(ctx context.Context, fallback *logrus.Entry) *logrus.Entry {
	if ctx != nil {
		if v, ok := ctx.Value(ctxLogger).(*logrus.Entry); ok {
			return v
		}
	}
	if fallback != nil {
		return fallback
	}
	return logger.Discard()
}

// WithLogger は context にロガーを載せる
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxLogger, entry)
}
