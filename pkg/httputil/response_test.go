package httputil

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONResponse(t *testing.T) {
	rr := httptest.NewRecorder()

	WriteJSONResponse(rr, http.StatusCreated, map[string]any{"success": true})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true}`, rr.Body.String())
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		To string `json:"to"`
	}

	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{name: "正常系", body: `{"to":"U123"}`, want: "U123"},
		{name: "空の本文", body: ``, wantErr: true},
		{name: "未知のフィールド", body: `{"to":"U123","extra":1}`, wantErr: true},
		{name: "JSONでない", body: `to=U123`, wantErr: true},
		{name: "2つのオブジェクト", body: `{"to":"a"}{"to":"b"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var p payload

			err := DecodeJSON(httptest.NewRecorder(), req, &p)

			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.To)
		})
	}
}
