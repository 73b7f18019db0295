package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/deskbridge/deskbridge/internal/assistant"
	"github.com/deskbridge/deskbridge/internal/config"
	"github.com/deskbridge/deskbridge/internal/conversation"
	"github.com/deskbridge/deskbridge/internal/db"
	"github.com/deskbridge/deskbridge/internal/handlers"
	"github.com/deskbridge/deskbridge/internal/jira"
	"github.com/deskbridge/deskbridge/internal/logger"
	"github.com/deskbridge/deskbridge/internal/server"
	"github.com/deskbridge/deskbridge/internal/tenants"
	"github.com/deskbridge/deskbridge/internal/trust"
	"github.com/deskbridge/deskbridge/internal/webhook"
	"github.com/deskbridge/deskbridge/internal/whatsapp"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideTenantManager,
			provideTracker,
			provideTrustCache,
			provideWebhookEngine,
			provideAssistantClient,
			provideJiraClient,
			provideWhatsAppSender,
			provideWhatsAppProcessor,
			provideJiraProcessor,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideWhatsAppHandler),
			provideServerHandler(provideJiraHandler),
			provideServerHandler(provideChatHandler),
			provideServerHandler(provideTrustHandler),
			provideServerHandler(provideWebhookHandler),
			provideServer,
		),
		fx.Invoke(
			startTrustRefresh,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideTenantManager(log *slog.Logger, conn *pgxpool.Pool) *tenants.Manager {
	return tenants.NewManager(log, tenants.NewPGStore(conn))
}

func provideTracker(log *slog.Logger, conn *pgxpool.Pool) *conversation.Tracker {
	return conversation.NewTracker(log, conversation.NewPGStore(conn))
}

func provideTrustCache(log *slog.Logger, cfg config.Config, manager *tenants.Manager) *trust.Cache {
	return trust.New(log, manager, trust.Options{
		TTL:            time.Duration(cfg.Trust.TTLSeconds) * time.Second,
		RefreshTimeout: time.Duration(cfg.Trust.RefreshTimeoutSeconds) * time.Second,
		BaseOrigins:    cfg.Trust.BaseOrigins,
	})
}

func provideWebhookEngine(log *slog.Logger, cfg config.Config, conn *pgxpool.Pool) *webhook.Engine {
	return webhook.NewEngine(log, webhook.NewPGStore(conn), time.Duration(cfg.Webhook.TimeoutSeconds)*time.Second)
}

func provideAssistantClient(cfg config.Config) assistant.Client {
	return assistant.NewHTTPClient(cfg.Assistant.BaseURL, cfg.Assistant.APIKey,
		time.Duration(cfg.Assistant.TimeoutSeconds)*time.Second)
}

func provideJiraClient(cfg config.Config) jira.Client {
	return jira.NewHTTPClient(cfg.Jira.BaseURL, cfg.Jira.Email, cfg.Jira.APIToken)
}

func provideWhatsAppSender(cfg config.Config) whatsapp.Sender {
	return whatsapp.NewCloudSender(cfg.WhatsApp.APIBaseURL, cfg.WhatsApp.AccessToken, cfg.WhatsApp.PhoneID)
}

func provideWhatsAppProcessor(log *slog.Logger, cfg config.Config, tracker *conversation.Tracker, manager *tenants.Manager, assistants assistant.Client, tickets jira.Client, sender whatsapp.Sender, engine *webhook.Engine) *whatsapp.Processor {
	return whatsapp.NewProcessor(log, tracker, manager, assistants, tickets, sender, engine, cfg.Assistant.GenericAssistantID)
}

func provideJiraProcessor(log *slog.Logger, cfg config.Config, manager *tenants.Manager, assistants assistant.Client, tickets jira.Client, tracker *conversation.Tracker, sender whatsapp.Sender, engine *webhook.Engine) *jira.Processor {
	return jira.NewProcessor(log, manager, assistants, tickets, tracker, sender, engine, cfg.Jira.BotAccount)
}

func provideWhatsAppHandler(log *slog.Logger, cfg config.Config, processor *whatsapp.Processor) *handlers.WhatsAppHandler {
	return handlers.NewWhatsAppHandler(log, processor, cfg.WhatsApp.VerifyToken)
}

func provideJiraHandler(log *slog.Logger, processor *jira.Processor) *handlers.JiraHandler {
	return handlers.NewJiraHandler(log, processor)
}

func provideChatHandler(log *slog.Logger, manager *tenants.Manager, assistants assistant.Client, engine *webhook.Engine) *handlers.ChatHandler {
	return handlers.NewChatHandler(log, manager, assistants, engine)
}

func provideTrustHandler(log *slog.Logger, cache *trust.Cache, manager *tenants.Manager) *handlers.TrustHandler {
	return handlers.NewTrustHandler(log, cache, manager)
}

func provideWebhookHandler(log *slog.Logger, engine *webhook.Engine) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, engine)
}

type serverParams struct {
	fx.In
	Config         config.Config
	Cache          *trust.Cache
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Config.Server.Addr, params.Config.Auth.JWTSecret, params.Cache, params.ServerHandlers)
}

// startTrustRefresh warms the origin cache once at boot and keeps it warm on
// a schedule, so most requests never pay the synchronous refresh inside
// IsAllowed.
func startTrustRefresh(lc fx.Lifecycle, logger *slog.Logger, cfg config.Config, cache *trust.Cache) {
	c := cron.New()
	spec := cfg.Trust.RefreshSpec
	if spec == "" {
		spec = config.DefaultTrustRefreshSpec
	}
	if _, err := c.AddFunc(spec, func() {
		if err := cache.Refresh(context.Background()); err != nil {
			logger.Warn("scheduled trust refresh failed", slog.Any("error", err))
		}
	}); err != nil {
		logger.Error("invalid trust refresh spec", slog.String("spec", spec), slog.Any("error", err))
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := cache.Refresh(ctx); err != nil {
				logger.Warn("initial trust refresh failed", slog.Any("error", err))
			}
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopped := c.Stop()
			select {
			case <-stopped.Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Shutdown(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
