package main

import (
	"context"
	"fmt"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/redis/go-redis/v9"

	configpkg "github.com/georgex8001/voting-fun/config"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/router"
)

// gatewayHealth groups the monitor with its optional Redis coordination.
// redisClient, mirror and elector are nil unless Redis is configured and
// reachable; elector is also nil unless leader election is enabled.
type gatewayHealth struct {
	monitor     *health.Monitor
	redisClient *redis.Client
	mirror      *health.RedisMirror
	elector     *health.LeaderElector
}

// setupGatewayHealth creates the gateway health monitor. It does not start
// probing; watch starts the loop and one-shot commands run a single cycle.
//
// With leader election enabled the elector is started here, so one-shot
// commands also contend for the lease: they probe when no watcher holds it
// and follow the mirrored status when one does.
func setupGatewayHealth(ctx context.Context, logger polylog.Logger, config configpkg.ClientConfig) gatewayHealth {
	var h gatewayHealth
	var prober health.Prober = health.NewHTTPProber(config.Network.GatewayURL, config.Health.ProbeTimeout, nil)

	h.redisClient = setupRedisClient(ctx, logger, config.RedisConfig)
	if h.redisClient != nil {
		redisConfig := config.RedisConfig
		if redisConfig.LeaderElection {
			h.elector = health.NewLeaderElector(health.LeaderElectorConfig{
				Client:        h.redisClient,
				Key:           redisConfig.LeaderKey,
				LeaseDuration: redisConfig.LeaseDuration,
				RenewInterval: redisConfig.RenewInterval,
				Logger:        logger,
			})
		}
		h.mirror = health.NewRedisMirror(health.RedisMirrorConfig{
			Client:  h.redisClient,
			Key:     redisConfig.StatusKey,
			Channel: redisConfig.StatusChannel,
			Elector: h.elector,
			Logger:  logger,
		})
		if h.elector != nil {
			h.elector.Start(ctx)
			prober = health.NewLeaderProber(prober, h.elector, h.mirror)
		}
	}

	h.monitor = health.NewMonitor(health.MonitorConfig{
		Prober:   prober,
		Interval: config.Health.ProbeInterval,
		Logger:   logger,
	})
	return h
}

// setupRedisClient connects to Redis if it is configured.
// An unreachable Redis disables mirroring instead of failing startup.
func setupRedisClient(ctx context.Context, logger polylog.Logger, config *configpkg.RedisConfig) *redis.Client {
	if config == nil {
		return nil
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	// Validate Redis connection
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Failed to connect to Redis - gateway status will not be mirrored")
		redisClient.Close()
		return nil
	}

	logger.Info().
		Str("address", config.Address).
		Str("key", config.StatusKey).
		Str("channel", config.StatusChannel).
		Bool("leader_election", config.LeaderElection).
		Msg("Redis client initialized for gateway status mirroring")

	return redisClient
}

// Close stops the elector, releasing its lease, before closing Redis.
func (h gatewayHealth) Close(logger polylog.Logger) {
	if h.monitor != nil {
		h.monitor.Stop()
	}
	if h.elector != nil {
		h.elector.Stop()
	}
	if h.redisClient != nil {
		if err := h.redisClient.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
}

// setupOperationalServer serves /health, /ready, /healthz and /config until
// ctx is done. A disabled router config skips it.
func (a *app) setupOperationalServer(ctx context.Context) error {
	if !a.config.Router.Enabled() {
		return nil
	}

	cfg := router.Config{
		Server:         a.config.Router,
		Status:         a.monitor,
		Bindings:       a.router,
		ConfigReporter: a.config,
		Endpoints:      a.pool,
		Logger:         a.logger,
	}
	if a.elector != nil {
		cfg.Leader = a.elector
	}
	if _, err := router.NewRouter(cfg).Start(ctx); err != nil {
		return fmt.Errorf("failed to start operational server: %w", err)
	}
	return nil
}
