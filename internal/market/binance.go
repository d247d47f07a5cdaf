// Package market はBinanceの24時間ティッカーを取得する
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL はBinance公開APIのベースURL
const DefaultBaseURL = "https://api.binance.com"

// quoteAssets はシンボル末尾として認識する決済通貨
var quoteAssets = []string{"USDT", "BUSD", "BTC", "ETH"}

// Ticker は24時間ティッカー
type Ticker struct {
	Symbol             string          `json:"symbol"`
	LastPrice          decimal.Decimal `json:"lastPrice"`
	PriceChangePercent decimal.Decimal `json:"priceChangePercent"`
	HighPrice          decimal.Decimal `json:"highPrice"`
	LowPrice           decimal.Decimal `json:"lowPrice"`
	Volume             decimal.Decimal `json:"volume"`
}

// Client は価格取得のインターフェース
type Client interface {
	Ticker(ctx context.Context, symbol string) (*Ticker, error)
}

type binanceClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient はBinanceクライアントを作成する
func NewClient(baseURL string, httpClient *http.Client) Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &binanceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// Ticker は symbol の24時間ティッカーを取得する
func (c *binanceClient) Ticker(ctx context.Context, symbol string) (*Ticker, error) {
	symbol = NormalizeSymbol(symbol)
	endpoint := c.baseURL + "/api/v3/ticker/24hr?symbol=" + url.QueryEscape(symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ticker request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("ticker %s: status %d: %s", symbol, resp.StatusCode, string(body))
	}

	var ticker Ticker
	if err := json.NewDecoder(resp.Body).Decode(&ticker); err != nil {
		return nil, fmt.Errorf("failed to decode ticker: %w", err)
	}
	return &ticker, nil
}

// NormalizeSymbol は "btc" のような入力を "BTCUSDT" に揃える
// 決済通貨付きのシンボルはそのまま返す
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	for _, q := range quoteAssets {
		if strings.HasSuffix(s, q) && len(s)-len(q) >= 2 {
			return s
		}
	}
	return s + "USDT"
}
