// Package config は環境変数（と .env）から設定を読み込む
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定
type Config struct {
	Port     string
	Log      LogConfig
	LINE     LINEConfig
	Retry    RetryConfig
	Batch    BatchConfig
	Webhook  WebhookConfig
	Database DatabaseConfig
	Redis    RedisConfig
	API      APIConfig
	Market   MarketConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type LINEConfig struct {
	ChannelAccessToken string
	ChannelSecret      string
	WebhookBaseURL     string
	APIEndpoint        string
	HTTPTimeout        time.Duration
}

// Configured はトークンとシークレットがそろっているか
func (c LINEConfig) Configured() bool {
	return c.ChannelAccessToken != "" && c.ChannelSecret != ""
}

type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Deadline    time.Duration
}

type BatchConfig struct {
	Size  int
	Delay time.Duration
}

type WebhookConfig struct {
	MaxEvents      int
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	DedupeTTL      time.Duration
}

type DatabaseConfig struct {
	Path string
}

type RedisConfig struct {
	// URL が空ならWebhookの再送判定は行わない
	URL string
}

type APIConfig struct {
	// Token が空なら /api/line は無効
	Token string
}

type MarketConfig struct {
	BaseURL string
}

var defaults = map[string]any{
	"PORT":                    "8080",
	"LOG_LEVEL":               "info",
	"LOG_FORMAT":              "json",
	"LINE_API_ENDPOINT":       "https://api.line.me",
	"LINE_HTTP_TIMEOUT":       "10s",
	"RETRY_MAX_ATTEMPTS":      3,
	"RETRY_BASE_DELAY":        "1s",
	"RETRY_MAX_DELAY":         "30s",
	"RETRY_DEADLINE":          "60s",
	"BATCH_SIZE":              500,
	"BATCH_DELAY":             "100ms",
	"WEBHOOK_MAX_EVENTS":      100,
	"WEBHOOK_WORKERS":         4,
	"WEBHOOK_QUEUE_SIZE":      256,
	"WEBHOOK_HANDLER_TIMEOUT": "30s",
	"WEBHOOK_DEDUPE_TTL":      "24h",
	"DATABASE_PATH":           "nexustrade-line.db",
	"BINANCE_BASE_URL":        "https://api.binance.com",
}

// Load は .env を読み込んだうえで環境変数から設定を作る
// .env が無くてもエラーにはしない
func Load() (*Config, error) {
	// .envファイルを読み込む（既存の環境変数は上書きしない）
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	// LINE_CHANNEL_TOKEN は旧名
	_ = v.BindEnv("LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_ACCESS_TOKEN", "LINE_CHANNEL_TOKEN")
	return v
}

// FromViper は v の値から設定を作って検証する
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port: v.GetString("PORT"),
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("LOG_LEVEL")),
			Format: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		LINE: LINEConfig{
			ChannelAccessToken: strings.TrimSpace(v.GetString("LINE_CHANNEL_ACCESS_TOKEN")),
			ChannelSecret:      strings.TrimSpace(v.GetString("LINE_CHANNEL_SECRET")),
			WebhookBaseURL:     v.GetString("LINE_WEBHOOK_BASE_URL"),
			APIEndpoint:        v.GetString("LINE_API_ENDPOINT"),
			HTTPTimeout:        v.GetDuration("LINE_HTTP_TIMEOUT"),
		},
		Retry: RetryConfig{
			MaxAttempts: v.GetInt("RETRY_MAX_ATTEMPTS"),
			BaseDelay:   v.GetDuration("RETRY_BASE_DELAY"),
			MaxDelay:    v.GetDuration("RETRY_MAX_DELAY"),
			Deadline:    v.GetDuration("RETRY_DEADLINE"),
		},
		Batch: BatchConfig{
			Size:  v.GetInt("BATCH_SIZE"),
			Delay: v.GetDuration("BATCH_DELAY"),
		},
		Webhook: WebhookConfig{
			MaxEvents:      v.GetInt("WEBHOOK_MAX_EVENTS"),
			Workers:        v.GetInt("WEBHOOK_WORKERS"),
			QueueSize:      v.GetInt("WEBHOOK_QUEUE_SIZE"),
			HandlerTimeout: v.GetDuration("WEBHOOK_HANDLER_TIMEOUT"),
			DedupeTTL:      v.GetDuration("WEBHOOK_DEDUPE_TTL"),
		},
		Database: DatabaseConfig{Path: v.GetString("DATABASE_PATH")},
		Redis:    RedisConfig{URL: v.GetString("REDIS_URL")},
		API:      APIConfig{Token: v.GetString("API_TOKEN")},
		Market:   MarketConfig{BaseURL: v.GetString("BINANCE_BASE_URL")},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate は値の範囲を検証する
// LINEの認証情報が無いのはエラーにしない（未設定モードで起動する）
func (c *Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT must not be empty"))
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.Log.Format))
	}
	if c.LINE.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("LINE_HTTP_TIMEOUT must be positive"))
	}
	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		errs = append(errs, fmt.Errorf("RETRY_MAX_ATTEMPTS must be between 1 and 10, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		errs = append(errs, errors.New("RETRY_BASE_DELAY must be positive and not exceed RETRY_MAX_DELAY"))
	}
	if c.Retry.Deadline <= 0 {
		errs = append(errs, errors.New("RETRY_DEADLINE must be positive"))
	}
	if c.Batch.Size < 1 || c.Batch.Size > 500 {
		errs = append(errs, fmt.Errorf("BATCH_SIZE must be between 1 and 500, got %d", c.Batch.Size))
	}
	if c.Batch.Delay < 0 {
		errs = append(errs, errors.New("BATCH_DELAY must not be negative"))
	}
	if c.Webhook.MaxEvents < 1 {
		errs = append(errs, errors.New("WEBHOOK_MAX_EVENTS must be positive"))
	}
	if c.Webhook.Workers < 1 || c.Webhook.QueueSize < 1 {
		errs = append(errs, errors.New("WEBHOOK_WORKERS and WEBHOOK_QUEUE_SIZE must be positive"))
	}
	if c.Webhook.HandlerTimeout <= 0 {
		errs = append(errs, errors.New("WEBHOOK_HANDLER_TIMEOUT must be positive"))
	}
	if c.Database.Path == "" {
		errs = append(errs, errors.New("DATABASE_PATH must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr は待ち受けアドレスを返す
func (c *Config) Addr() string {
	return ":" + c.Port
}
