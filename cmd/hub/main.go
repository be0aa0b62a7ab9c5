package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	cacheadapter "github.com/smallbiznis/integration-hub/internal/adapter/cache"
	"github.com/smallbiznis/integration-hub/internal/adapter/provider"
	"github.com/smallbiznis/integration-hub/internal/config"
	httptransport "github.com/smallbiznis/integration-hub/internal/http"
	"github.com/smallbiznis/integration-hub/internal/http/handler"
	"github.com/smallbiznis/integration-hub/internal/middleware"
	"github.com/smallbiznis/integration-hub/internal/repository"
	"github.com/smallbiznis/integration-hub/internal/server"
	"github.com/smallbiznis/integration-hub/internal/service/broker"
	"github.com/smallbiznis/integration-hub/internal/telemetry"
)

func main() {
	app := fx.New(
		fx.Provide(
			newConfig,
			newLogger,
			newTelemetry,
			newRedisClient,
			newTransientStore,
			newProviderHTTPClient,
			newRegistry,
			newExchanger,
			newBroker,
			newRateLimiter,
			handler.NewIntegrationHandler,
			newLogsHandler,
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
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newTransientStore(client redis.UniversalClient) repository.TransientStore {
	return cacheadapter.NewRedisStore(client)
}

func newProviderHTTPClient(cfg config.Config) *http.Client {
	return &http.Client{Timeout: cfg.RequestTimeout}
}

func newRegistry(cfg config.Config, client *http.Client, logger *zap.Logger) *provider.Registry {
	return provider.NewRegistry(cfg, client, logger)
}

func newExchanger(client *http.Client) provider.Exchanger {
	return provider.NewHTTPExchanger(client)
}

func newBroker(registry *provider.Registry, exchanger provider.Exchanger, store repository.TransientStore, cfg config.Config, logger *zap.Logger) broker.Service {
	return broker.New(registry, exchanger, store, cfg.StateTTL, logger)
}

func newRateLimiter(cfg config.Config, logger *zap.Logger) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg, logger)
}

func newLogsHandler(logger *zap.Logger) *handler.LogsHandler {
	return handler.NewLogsHandler(logger)
}

func startHTTPServer(lc fx.Lifecycle, srv *server.HTTPServer, logger *zap.Logger) {
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
				if err := srv.Run(runCtx); err != nil {
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
