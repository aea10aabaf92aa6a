package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/redis/go-redis/v9"
)

const defaultMirrorWriteTimeout = 2 * time.Second

// RedisMirror copies every gateway status the Monitor reports into Redis:
// the latest value under Key and each change published on Channel.
// Other processes read the key or subscribe to the channel instead of
// probing the gateway themselves.
type RedisMirror struct {
	client       *redis.Client
	key          string
	channel      string
	writeTimeout time.Duration
	elector      *LeaderElector
	logger       polylog.Logger
}

// RedisMirrorConfig contains configuration for creating a RedisMirror.
type RedisMirrorConfig struct {
	Client  *redis.Client
	Key     string
	Channel string

	// WriteTimeout bounds each mirror write made from a subscriber callback.
	WriteTimeout time.Duration

	// Elector, if set, restricts Attach to publishing while this
	// instance holds the prober lease.
	Elector *LeaderElector
	Logger  polylog.Logger
}

// NewRedisMirror creates a RedisMirror.
// Returns nil if the Redis client is nil.
func NewRedisMirror(cfg RedisMirrorConfig) *RedisMirror {
	if cfg.Client == nil {
		return nil
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = defaultMirrorWriteTimeout
	}
	return &RedisMirror{
		client:       cfg.Client,
		key:          cfg.Key,
		channel:      cfg.Channel,
		writeTimeout: writeTimeout,
		elector:      cfg.Elector,
		logger:       cfg.Logger.With("component", "health_redis_mirror"),
	}
}

// Publish stores status under the mirror key and announces it on the channel.
// Both commands run in one MULTI/EXEC so readers never see a published
// status that is not yet stored.
func (r *RedisMirror) Publish(ctx context.Context, status Status) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, status.String(), 0)
		pipe.Publish(ctx, r.channel, status.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("mirroring gateway status to redis: %w", err)
	}
	return nil
}

// Fetch returns the last mirrored status, or StatusUnknown if nothing has
// been mirrored yet.
func (r *RedisMirror) Fetch(ctx context.Context) (Status, error) {
	value, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return StatusUnknown, nil
	}
	if err != nil {
		return StatusUnknown, fmt.Errorf("reading gateway status from redis: %w", err)
	}

	status := Status(value)
	if !status.IsValid() {
		return StatusUnknown, fmt.Errorf("unrecognized gateway status in redis: %q", value)
	}
	return status, nil
}

// Attach subscribes the mirror to m. Write failures are logged and dropped;
// the monitor keeps running without the mirror.
func (r *RedisMirror) Attach(m *Monitor) (detach func()) {
	return m.Subscribe(func(status Status) {
		if r.elector != nil && !r.elector.IsLeader() {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		defer cancel()

		if err := r.Publish(ctx, status); err != nil {
			r.logger.Warn().Err(err).Str("status", status.String()).Msg("Failed to mirror gateway status")
			return
		}
		r.logger.Debug().Str("status", status.String()).Msg("Mirrored gateway status")
	})
}
