package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/ledgerchat/internal/config"
	"github.com/memohai/ledgerchat/internal/db"
	"github.com/memohai/ledgerchat/internal/dispatch"
	"github.com/memohai/ledgerchat/internal/handlers"
	"github.com/memohai/ledgerchat/internal/healthcheck"
	"github.com/memohai/ledgerchat/internal/intent"
	"github.com/memohai/ledgerchat/internal/latency"
	"github.com/memohai/ledgerchat/internal/logger"
	"github.com/memohai/ledgerchat/internal/media"
	"github.com/memohai/ledgerchat/internal/ratelimit"
	"github.com/memohai/ledgerchat/internal/reply"
	"github.com/memohai/ledgerchat/internal/server"
	"github.com/memohai/ledgerchat/internal/transactions"
	"github.com/memohai/ledgerchat/internal/users"
	"github.com/memohai/ledgerchat/internal/whatsapp"
)

func runServe(cfg config.Config) error {
	app := fx.New(
		fx.Supply(cfg),
		fx.Provide(
			provideLogger,
			provideDBConn,
			provideUserResolver,
			provideLatencyRecorder,
			provideLimiter,
			provideWhatsAppClient,
			provideMediaFetcher,
			provideIntentClient,
			provideTransactionStore,
			reply.New,
			provideOrchestrator,
			providePool,
			provideServerHandler(providePingHandler),
			provideServerHandler(provideWebhookHandler),
			provideServerHandler(provideHealthHandler),
			provideServer,
		),
		fx.Invoke(
			startLimiterSweeper,
			startPool,
			startServer,
		),
		fx.StopTimeout(cfg.Dispatch.ShutdownTimeout()+10*time.Second),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	)
	if err := app.Err(); err != nil {
		return err
	}
	app.Run()
	return nil
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(log, cfg.Postgres.DSN()); err != nil {
		return nil, fmt.Errorf("db migrate: %w", err)
	}
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideUserResolver(log *slog.Logger, conn *pgxpool.Pool) *users.Resolver {
	return users.NewResolver(log, users.NewPostgresStore(conn))
}

func provideLatencyRecorder(log *slog.Logger, conn *pgxpool.Pool) *latency.Recorder {
	return latency.NewRecorder(log, latency.NewPostgresStore(conn))
}

func provideTransactionStore(conn *pgxpool.Pool) transactions.Store {
	return transactions.NewPostgresStore(conn)
}

func provideLimiter(log *slog.Logger, cfg config.Config) *ratelimit.Limiter {
	return ratelimit.NewLimiter(log, cfg.RateLimit.MaxRequests, cfg.RateLimit.Window())
}

func provideWhatsAppClient(log *slog.Logger, cfg config.Config) *whatsapp.Client {
	return whatsapp.NewClient(log, whatsapp.Config{
		BaseURL:       cfg.WhatsApp.BaseURL,
		APIVersion:    cfg.WhatsApp.APIVersion,
		AccessToken:   cfg.WhatsApp.AccessToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
	}, &http.Client{Timeout: cfg.Dispatch.SendTimeout()})
}

func provideMediaFetcher(log *slog.Logger, cfg config.Config, client *whatsapp.Client) (*media.Downloader, error) {
	scratch, err := media.NewScratch(cfg.Media.ScratchDir)
	if err != nil {
		return nil, fmt.Errorf("media scratch: %w", err)
	}
	httpClient := &http.Client{Timeout: cfg.Media.Timeout()}
	return media.NewDownloader(log, client, httpClient, cfg.WhatsApp.AccessToken, scratch), nil
}

func provideIntentClient(log *slog.Logger, cfg config.Config) *intent.OpenAIClient {
	return intent.NewOpenAIClient(log, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.TranscriptionModel)
}

type orchestratorParams struct {
	fx.In
	Logger       *slog.Logger
	Config       config.Config
	Limiter      *ratelimit.Limiter
	Sessions     *users.Resolver
	Latency      *latency.Recorder
	Media        *media.Downloader
	Intent       *intent.OpenAIClient
	Transactions transactions.Store
	Sender       *whatsapp.Client
	Composer     *reply.Composer
}

func provideOrchestrator(params orchestratorParams) *dispatch.Orchestrator {
	cfg := params.Config
	return dispatch.NewOrchestrator(params.Logger, dispatch.Deps{
		Limiter:      params.Limiter,
		Sessions:     params.Sessions,
		Latency:      params.Latency,
		Media:        params.Media,
		Intent:       params.Intent,
		Transcriber:  params.Intent,
		Transactions: params.Transactions,
		Sender:       params.Sender,
		Composer:     params.Composer,
	}, dispatch.Options{
		IdentityMaxAttempts: cfg.RateLimit.IdentityMaxAttempts,
		IdentityWindow:      cfg.RateLimit.IdentityWindow(),
		IntentTimeout:       cfg.Dispatch.IntentTimeout(),
		MediaTimeout:        cfg.Media.Timeout(),
		SendTimeout:         cfg.Dispatch.SendTimeout(),
	})
}

func providePool(log *slog.Logger, cfg config.Config, orchestrator *dispatch.Orchestrator) *dispatch.Pool {
	return dispatch.NewPool(log, orchestrator, cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
}

func providePingHandler(log *slog.Logger, pool *dispatch.Pool) *handlers.PingHandler {
	return handlers.NewPingHandler(log, pool)
}

func provideWebhookHandler(log *slog.Logger, cfg config.Config, pool *dispatch.Pool) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, cfg.WhatsApp, pool)
}

func provideHealthHandler(log *slog.Logger, conn *pgxpool.Pool, pool *dispatch.Pool) *handlers.HealthHandler {
	return handlers.NewHealthHandler(
		healthcheck.NewDatabaseChecker(log, conn, 2*time.Second),
		healthcheck.NewQueueChecker(pool, 0.8),
	)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.Config.Server.Addr, params.ServerHandlers...)
}

func startLimiterSweeper(lc fx.Lifecycle, cfg config.Config, limiter *ratelimit.Limiter) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return limiter.StartSweeper(cfg.RateLimit.SweepSchedule)
		},
		OnStop: func(ctx context.Context) error {
			limiter.StopSweeper()
			return nil
		},
	})
}

func startPool(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, pool *dispatch.Pool) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			pool.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, cfg.Dispatch.ShutdownTimeout())
			defer cancel()
			if err := pool.Shutdown(stopCtx); err != nil {
				log.Warn("dispatch pool did not drain", slog.Any("error", err))
				return err
			}
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	log.Info("starting ledgerchat", slog.String("version", version))
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
