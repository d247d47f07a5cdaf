package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"
)

// MaxRequestBody はJSONリクエスト本文の上限
const MaxRequestBody = 1 << 20

// WriteJSONError は JSON エラーレスポンスを書き込むヘルパー関数
func WriteJSONError(w http.ResponseWriter, statusCode int, errorData any) {
	WriteJSONResponse(w, statusCode, errorData)
}

// WriteJSONResponse は JSON レスポンスを書き込むヘルパー関数
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("Failed to encode JSON response")
	}
}

// DecodeJSON はリクエスト本文を v に読み込む
// 未知のフィールドと2つ目のJSON値は拒否する
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	if dec.More() {
		return errors.New("request body must contain a single JSON object")
	}
	return nil
}
