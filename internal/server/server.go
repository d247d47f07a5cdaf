// Package server は設定から各層を組み立て、HTTPルーティングを提供する
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/morinonusi421/nexustrade-line/internal/config"
	"github.com/morinonusi421/nexustrade-line/internal/dedupe"
	"github.com/morinonusi421/nexustrade-line/internal/handler"
	"github.com/morinonusi421/nexustrade-line/internal/linebot"
	"github.com/morinonusi421/nexustrade-line/internal/market"
	"github.com/morinonusi421/nexustrade-line/internal/metrics"
	"github.com/morinonusi421/nexustrade-line/internal/middleware"
	"github.com/morinonusi421/nexustrade-line/internal/repository"
	"github.com/morinonusi421/nexustrade-line/internal/retry"
	"github.com/morinonusi421/nexustrade-line/internal/service"
	"github.com/morinonusi421/nexustrade-line/internal/template"
	"github.com/morinonusi421/nexustrade-line/internal/webhook"
	"github.com/morinonusi421/nexustrade-line/pkg/database"
	"github.com/morinonusi421/nexustrade-line/pkg/httputil"
	"github.com/morinonusi421/nexustrade-line/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Options は外部リソースの差し替え用
type Options struct {
	// HTTPClient はLINE APIとBinanceへのリクエストに使う。nil なら設定のタイムアウトで作る
	HTTPClient *http.Client
	// Registry は nil なら新しく作る
	Registry *prometheus.Registry
}

// Server は組み立て済みのアプリケーション
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger

	db         *sql.DB
	redis      *redis.Client
	guard      *dedupe.Guard
	dispatcher *webhook.Dispatcher
	registry   *prometheus.Registry

	notifications service.NotificationService
	router        http.Handler
}

// New は設定から各層を組み立てる
// LINEの認証情報が無い場合も起動し、送信は設定エラーとして返す
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*Server, error) {
	if log == nil {
		log = logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.LINE.HTTPTimeout}
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	s := &Server{cfg: cfg, logger: log, registry: registry}

	// === 外部リソースの初期化 ===
	db, applied, err := database.InitDB(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}
	s.db = db
	log.WithFields(logrus.Fields{"path": cfg.Database.Path, "migrations": applied}).Info("Database ready")

	var lineClient linebot.Client
	if cfg.LINE.ChannelAccessToken != "" {
		lineClient, err = linebot.New(cfg.LINE.ChannelAccessToken, cfg.LINE.APIEndpoint, httpClient)
		if err != nil {
			s.Close()
			return nil, err
		}
	}
	if !cfg.LINE.Configured() {
		log.Warn("LINE credentials are not configured; notifications are disabled")
	}

	var deduper handler.Deduper
	if cfg.Redis.URL != "" {
		guard, client, err := dedupe.Connect(ctx, cfg.Redis.URL, cfg.Webhook.DedupeTTL)
		if err != nil {
			// 再送判定が無くても処理は続けられる
			log.WithError(err).Warn("Redis unavailable; webhook redelivery guard disabled")
		} else {
			s.redis = client
			s.guard = guard
			deduper = guard
		}
	}

	m := metrics.New(registry)

	// === Repository層 ===
	followerRepo := repository.NewFollowerRepository(db)

	// === Service層 ===
	retrier := retry.New(
		retry.WithMaxAttempts(cfg.Retry.MaxAttempts),
		retry.WithBaseDelay(cfg.Retry.BaseDelay),
		retry.WithMaxDelay(cfg.Retry.MaxDelay),
	)
	renderer := template.New(nil)
	messagingService := service.NewMessagingService(lineClient, retrier, service.MessagingConfig{
		Deadline:   cfg.Retry.Deadline,
		BatchSize:  cfg.Batch.Size,
		BatchDelay: cfg.Batch.Delay,
	}, m, logger.Component(log, "messaging"))
	s.notifications = service.NewNotificationService(messagingService, renderer, followerRepo, service.NotificationConfig{
		AccessTokenSet:   cfg.LINE.ChannelAccessToken != "",
		ChannelSecret:    cfg.LINE.ChannelSecret,
		WebhookBaseURL:   cfg.LINE.WebhookBaseURL,
		RetryMaxAttempts: cfg.Retry.MaxAttempts,
		RetryBaseDelay:   cfg.Retry.BaseDelay,
		RetryMaxDelay:    cfg.Retry.MaxDelay,
		Deadline:         cfg.Retry.Deadline,
		BatchSize:        cfg.Batch.Size,
		BatchDelay:       cfg.Batch.Delay,
	}, logger.Component(log, "notification"))
	messageService := service.NewMessageService(renderer, market.NewClient(cfg.Market.BaseURL, httpClient), s.notifications, logger.Component(log, "message"))

	var profiles service.ProfileFetcher
	if lineClient != nil {
		profiles = lineClient
	}
	eventService := service.NewEventService(messagingService, messageService, renderer, followerRepo, profiles, m, logger.Component(log, "event"))

	s.dispatcher = webhook.NewDispatcher(cfg.Webhook.Workers, cfg.Webhook.QueueSize, cfg.Webhook.HandlerTimeout, logger.Component(log, "dispatcher"))

	// === Handler層 ===
	webhookHandler := handler.NewWebhookHandler(s.notifications, eventService, s.dispatcher, deduper, m, handler.WebhookOptions{
		MaxEvents: cfg.Webhook.MaxEvents,
	}, logger.Component(log, "webhook"))
	apiHandler := handler.NewNotificationAPIHandler(s.notifications, logger.Component(log, "api"))
	auth := middleware.NewAuthMiddleware(cfg.API.Token)

	// === ルーティング設定 ===
	httpLog := logger.Component(log, "http")
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestID(httpLog))
	r.Use(middleware.Logging(httpLog))

	// ヘルスチェック
	r.Get("/", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// LINE Webhook
	r.Post("/webhook", webhookHandler.Handle)

	// 内部向け通知API
	r.Route("/api/line", func(r chi.Router) {
		r.Use(auth.Authenticate)
		apiHandler.Routes(r)
	})

	s.router = r
	return s, nil
}

// Handler はルーティング済みの http.Handler を返す
func (s *Server) Handler() http.Handler {
	return s.router
}

// Notifications は組み立て済みの通知サービスを返す
func (s *Server) Notifications() service.NotificationService {
	return s.notifications
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONResponse(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"service":    "nexustrade-line",
		"configured": s.notifications.Configured(),
	})
}

// ready はデータベースとRedisに届くかを返す
// Redisを使っていない場合は disabled として扱う
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	log := middleware.Logger(r.Context(), logger.Component(s.logger, "http"))

	checks := map[string]string{"database": "ok", "redis": "disabled"}
	status := http.StatusOK

	if s.db == nil {
		checks["database"] = "closed"
		status = http.StatusServiceUnavailable
	} else if err := s.db.PingContext(ctx); err != nil {
		log.WithError(err).Warn("Database not ready")
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.guard != nil {
		checks["redis"] = "ok"
		if err := s.guard.Ping(ctx); err != nil {
			log.WithError(err).Warn("Redis not ready")
			checks["redis"] = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not_ready"
	}
	httputil.WriteJSONResponse(w, status, map[string]any{
		"status": state,
		"checks": checks,
	})
}

// Shutdown は受付済みのWebhookイベントを処理しきってから接続を閉じる
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.dispatcher != nil {
		if err := s.dispatcher.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("dispatcher shutdown: %w", err))
		}
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close はRedisとデータベースの接続を閉じる
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		s.redis = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
		s.db = nil
	}
	return errors.Join(errs...)
}
