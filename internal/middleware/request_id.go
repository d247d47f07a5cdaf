package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const requestIDHeader = "X-Request-Id"

// RequestID はリクエストIDを採番し、ヘッダーと context に載せる
// log が nil でない場合は request_id 付きのロガーも載せる
func RequestID(log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get(requestIDHeader)
			if reqID == "" || len(reqID) > 128 {
				reqID = uuid.NewString()
			}

			w.Header().Set(requestIDHeader, reqID)

			ctx := context.WithValue(r.Context(), ctxRequestID, reqID)
			if log != nil {
				ctx = WithLogger(ctx, log.WithField("request_id", reqID))
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
