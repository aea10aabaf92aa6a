// Package health tracks whether the confidentiality gateway is reachable.
//
// A Monitor probes the gateway on a fixed interval and keeps a tri-state
// Status (unknown, up, down). Subscribers are told about every change and,
// on subscription, about the current value. Probe errors never reach
// subscribers; they only show up as StatusDown.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/metrics"
)

const defaultProbeInterval = 60 * time.Second

// MonitorConfig contains configuration for creating a Monitor.
type MonitorConfig struct {
	Prober   Prober
	Interval time.Duration
	Logger   polylog.Logger
}

// Monitor owns the gateway Status. It is the only writer of that value.
type Monitor struct {
	prober   Prober
	interval time.Duration
	logger   polylog.Logger

	// notifyMu serializes transitions with their notifications so that
	// subscribers observe changes in order and a new subscriber's replay
	// cannot interleave with a pending change.
	notifyMu sync.Mutex

	mu          sync.RWMutex
	status      Status
	subscribers map[uint64]func(Status)
	nextSubID   uint64

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a Monitor in StatusUnknown. It does not probe until
// Start or RunCycle is called.
func NewMonitor(cfg MonitorConfig) *Monitor {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultProbeInterval
	}
	return &Monitor{
		prober:      cfg.Prober,
		interval:    interval,
		logger:      cfg.Logger.With("component", "health_monitor"),
		status:      StatusUnknown,
		subscribers: make(map[uint64]func(Status)),
	}
}

// Probe runs a single gateway check without changing the status.
func (m *Monitor) Probe(ctx context.Context) error {
	return m.prober.Probe(ctx)
}

// Status returns the current gateway status.
func (m *Monitor) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Start begins the recurring probe cycle. The first cycle runs immediately
// in the background. Calling Start while already running is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if m.cancel != nil {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	m.logger.Info().
		Dur("interval", m.interval).
		Msg("Starting gateway health monitor")

	go m.run(runCtx, m.done)
}

// Stop cancels the recurring cycle and waits for the loop to exit.
// It is safe to call when the monitor is not running.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	m.logger.Info().Msg("Stopped gateway health monitor")
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	m.RunCycle(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle probes once and applies the resulting transition, if any.
// It returns the status after the cycle.
func (m *Monitor) RunCycle(ctx context.Context) Status {
	err := m.prober.Probe(ctx)
	metrics.RecordProbe(err == nil)

	observed := StatusUp
	if err != nil {
		// A cancelled monitor must not report the gateway as down.
		if ctx.Err() != nil {
			return m.Status()
		}
		observed = StatusDown
		m.logger.Debug().Err(err).Msg("Gateway probe failed")
	}

	m.transition(observed)
	return observed
}

func (m *Monitor) transition(next Status) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	prev := m.status
	if prev == next {
		m.mu.Unlock()
		return
	}
	m.status = next
	subscribers := make([]func(Status), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	metrics.RecordGatewayTransition(prev.String(), next.String(), next.gaugeValue())
	m.logger.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Msg("Gateway status changed")

	for _, fn := range subscribers {
		fn(next)
	}
}

// Subscribe registers fn and immediately calls it once with the current
// status. fn is then called on every change until the returned function is
// called. Unsubscribing more than once is harmless.
//
// fn runs on the goroutine that applied the change and must not call
// Subscribe or block for long.
func (m *Monitor) Subscribe(fn func(Status)) (unsubscribe func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	current := m.status
	m.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}
