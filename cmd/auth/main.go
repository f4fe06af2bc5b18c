package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/OneCard-OSS/OneCard/internal/challenge"
	"github.com/OneCard-OSS/OneCard/internal/config"
	"github.com/OneCard-OSS/OneCard/internal/directory"
	httptransport "github.com/OneCard-OSS/OneCard/internal/http"
	"github.com/OneCard-OSS/OneCard/internal/http/handler"
	httpmiddleware "github.com/OneCard-OSS/OneCard/internal/http/middleware"
	"github.com/OneCard-OSS/OneCard/internal/notify"
	"github.com/OneCard-OSS/OneCard/internal/server"
	"github.com/OneCard-OSS/OneCard/internal/service"
	"github.com/OneCard-OSS/OneCard/internal/store"
	"github.com/OneCard-OSS/OneCard/internal/telemetry"
	"github.com/OneCard-OSS/OneCard/internal/token"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newPGXPool,
			newRedisClient,
			newDirectory,
			newAttemptStore,
			newCodeStore,
			newSessionStore,
			newRefreshStore,
			newBlacklistStore,
			newChallengeEngine,
			newDispatcher,
			newSigner,
			newAttemptService,
			newAuthorizeService,
			newTokenService,
			newDiscoveryService,
			handler.NewAuthHandler,
			newAuthMiddleware,
			httptransport.NewRouter,
			server.NewHTTPServer,
		),
		fx.Invoke(useTelemetry, startHTTPServer),
	)

	app.Run()
}

func newConfig() (config.Config, error) {
	return config.Load()
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Environment == "development" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}

func newTelemetry(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*telemetry.Provider, error) {
	provider, err := telemetry.New(context.Background(), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("telemetry init: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return provider.Shutdown(stopCtx)
		},
	})

	return provider, nil
}

func newPGXPool(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			pool.Close()
			return nil
		},
	})

	return pool, nil
}

func newRedisClient(lc fx.Lifecycle, cfg config.Config) (redis.UniversalClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})

	return client, nil
}

func newDirectory(pool *pgxpool.Pool) *directory.PostgresDirectory {
	return directory.NewPostgresDirectory(pool)
}

func newAttemptStore(client redis.UniversalClient, cfg config.Config) *store.AttemptStore {
	return store.NewAttemptStore(client, cfg.StatusFloor)
}

func newCodeStore(client redis.UniversalClient) *store.CodeStore {
	return store.NewCodeStore(client)
}

func newSessionStore(client redis.UniversalClient) *store.SessionStore {
	return store.NewSessionStore(client)
}

func newRefreshStore(client redis.UniversalClient) *store.RefreshStore {
	return store.NewRefreshStore(client)
}

func newBlacklistStore(client redis.UniversalClient) *store.BlacklistStore {
	return store.NewBlacklistStore(client)
}

func newChallengeEngine() *challenge.Engine {
	return challenge.NewEngine()
}

func newDispatcher(cfg config.Config, logger *zap.Logger) *notify.Dispatcher {
	return notify.NewDispatcher(cfg.PushServerURL, cfg.PushTimeout, logger)
}

func newSigner(cfg config.Config) *token.Signer {
	return token.NewSigner(cfg.AccessSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
}

func newAttemptService(
	attempts *store.AttemptStore,
	sessions *store.SessionStore,
	dir *directory.PostgresDirectory,
	engine *challenge.Engine,
	dispatcher *notify.Dispatcher,
	cfg config.Config,
	logger *zap.Logger,
) *service.AttemptService {
	return service.NewAttemptService(attempts, sessions, dir, dir, engine, dispatcher,
		cfg.AttemptTTL, cfg.RefreshTokenTTL, logger)
}

func newAuthorizeService(
	attempts *store.AttemptStore,
	codes *store.CodeStore,
	dir *directory.PostgresDirectory,
	cfg config.Config,
	logger *zap.Logger,
) *service.AuthorizeService {
	return service.NewAuthorizeService(attempts, codes, dir, cfg.AuthCodeTTL, logger)
}

func newTokenService(
	codes *store.CodeStore,
	sessions *store.SessionStore,
	refresh *store.RefreshStore,
	blacklist *store.BlacklistStore,
	signer *token.Signer,
	dir *directory.PostgresDirectory,
	logger *zap.Logger,
) *service.TokenService {
	return service.NewTokenService(codes, sessions, refresh, blacklist, signer, dir, dir, logger)
}

func newDiscoveryService() *service.DiscoveryService {
	return &service.DiscoveryService{}
}

func newAuthMiddleware(tokens *service.TokenService) *httpmiddleware.Auth {
	return &httpmiddleware.Auth{Tokens: tokens}
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, cfg config.Config, logger *zap.Logger) {
	addr := ":" + cfg.HTTPPort
	var (
		cancel context.CancelFunc
		done   chan struct{}
	)

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			runCtx, stop := context.WithCancel(context.Background())
			cancel = stop
			done = make(chan struct{})

			go func() {
				if err := srv.Run(runCtx, addr); err != nil {
					logger.Error("http server stopped", zap.Error(err))
				}
				close(done)
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			if cancel != nil {
				cancel()
			}
			if done == nil {
				return nil
			}
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func useTelemetry(*telemetry.Provider) {}
