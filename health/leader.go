package health

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/redis/go-redis/v9"
)

// Lease renewal and release are check-then-act: "if I still own the key,
// extend (or delete) it". Each runs as a Lua script so the key cannot change
// hands between the GET and the write.
var (
	renewLeaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("expire", KEYS[1], ARGV[2])
		end
		return 0
	`)
	releaseLeaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`)
)

// ErrNoLeaderStatus is returned by a follower's probe when the leader has
// not mirrored an up status.
var ErrNoLeaderStatus = errors.New("leader has not reported the gateway up")

const releaseTimeout = 5 * time.Second

// LeaderElector holds a Redis lease that marks one watcher as the gateway
// prober. Other watchers follow the status the leader mirrors, so the
// gateway sees one probe per interval however many clients run.
type LeaderElector struct {
	client        *redis.Client
	key           string
	leaseDuration time.Duration
	renewInterval time.Duration
	instanceID    string
	logger        polylog.Logger

	isLeader atomic.Bool

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// LeaderElectorConfig contains configuration for creating a LeaderElector.
type LeaderElectorConfig struct {
	Client        *redis.Client
	Key           string
	LeaseDuration time.Duration
	RenewInterval time.Duration
	Logger        polylog.Logger
}

// NewLeaderElector creates a LeaderElector.
// Returns nil if the Redis client is nil.
func NewLeaderElector(cfg LeaderElectorConfig) *LeaderElector {
	if cfg.Client == nil {
		return nil
	}
	instanceID := uuid.NewString()
	return &LeaderElector{
		client:        cfg.Client,
		key:           cfg.Key,
		leaseDuration: cfg.LeaseDuration,
		renewInterval: cfg.RenewInterval,
		instanceID:    instanceID,
		logger:        cfg.Logger.With("component", "health_leader").With("instance_id", instanceID),
	}
}

// Start tries to take the lease immediately, then keeps renewing or
// contending for it every RenewInterval until ctx ends or Stop is called.
func (l *LeaderElector) Start(ctx context.Context) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})

	l.tryAcquire(runCtx)
	go l.run(runCtx, l.done)
}

// Stop ends the renewal loop and gives up the lease if this instance holds it.
func (l *LeaderElector) Stop() {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	if l.cancel == nil {
		return
	}
	l.cancel()
	<-l.done
	l.cancel, l.done = nil, nil

	if l.isLeader.Load() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		l.release(ctx)
	}
}

// IsLeader reports whether this instance held the lease at its last check.
func (l *LeaderElector) IsLeader() bool {
	return l.isLeader.Load()
}

// InstanceID identifies this process in the lease key.
func (l *LeaderElector) InstanceID() string {
	return l.instanceID
}

// LeaderInstanceID returns the current lease holder, or "" if there is none.
func (l *LeaderElector) LeaderInstanceID(ctx context.Context) string {
	id, err := l.client.Get(ctx, l.key).Result()
	if err != nil {
		return ""
	}
	return id
}

func (l *LeaderElector) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tryAcquire(ctx)
		}
	}
}

// tryAcquire renews the lease if held, otherwise takes it with SET NX EX.
func (l *LeaderElector) tryAcquire(ctx context.Context) bool {
	if l.isLeader.Load() {
		return l.renew(ctx)
	}

	ok, err := l.client.SetNX(ctx, l.key, l.instanceID, l.leaseDuration).Result()
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to acquire prober lease")
		l.isLeader.Store(false)
		return false
	}
	if ok {
		l.logger.Info().
			Dur("lease_duration", l.leaseDuration).
			Msg("Acquired gateway prober lease")
	}
	l.isLeader.Store(ok)
	return ok
}

func (l *LeaderElector) renew(ctx context.Context) bool {
	seconds := int(l.leaseDuration.Seconds())
	result, err := renewLeaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID, seconds).Int()
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to renew prober lease")
		l.isLeader.Store(false)
		return false
	}
	if result != 1 {
		l.logger.Info().Msg("Lost gateway prober lease")
		l.isLeader.Store(false)
		return false
	}
	l.logger.Debug().Msg("Renewed gateway prober lease")
	return true
}

func (l *LeaderElector) release(ctx context.Context) {
	if _, err := releaseLeaseScript.Run(ctx, l.client, []string{l.key}, l.instanceID).Int(); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to release prober lease")
		return
	}
	l.logger.Info().Msg("Released gateway prober lease")
	l.isLeader.Store(false)
}

// LeaderProber runs the wrapped prober while its elector holds the lease.
// Otherwise it reads the leader's mirrored status and reports the gateway
// down unless that status is up.
type LeaderProber struct {
	prober  Prober
	elector *LeaderElector
	mirror  *RedisMirror
}

func NewLeaderProber(prober Prober, elector *LeaderElector, mirror *RedisMirror) *LeaderProber {
	return &LeaderProber{prober: prober, elector: elector, mirror: mirror}
}

func (p *LeaderProber) Probe(ctx context.Context) error {
	if p.elector.IsLeader() {
		return p.prober.Probe(ctx)
	}

	status, err := p.mirror.Fetch(ctx)
	if err != nil {
		return err
	}
	if status != StatusUp {
		return fmt.Errorf("%w: mirrored status is %s", ErrNoLeaderStatus, status)
	}
	return nil
}
