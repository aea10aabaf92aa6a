package metrics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// LeaderboardPublishInterval is how often the endpoint leaderboard is published
	LeaderboardPublishInterval = 10 * time.Second

	LabelTier = "tier"

	TierReliable   = "reliable"
	TierUnreliable = "unreliable"
)

// =============================================================================
// Endpoint Leaderboard (Gauge)
// Labels: domain, tier
// Purpose: Number of read endpoints per domain above and below the
// reliability threshold, republished from the pool's scoreboard
// =============================================================================

var EndpointLeaderboard = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "endpoint_leaderboard",
		Help: "Read endpoints per domain by reliability tier.",
	},
	[]string{LabelDomain, LabelTier},
)

// EndpointMeanScore is the mean reliability score of the endpoints in a domain.
var EndpointMeanScore = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: MetricPrefix + "endpoint_mean_score",
		Help: "Mean reliability score (0-100) of read endpoints per domain.",
	},
	[]string{LabelDomain},
)

// EndpointScoreEntry is one endpoint's reliability score.
type EndpointScoreEntry struct {
	URL      string
	Score    float64
	Reliable bool
}

// LeaderboardDataProvider supplies the current endpoint scores.
type LeaderboardDataProvider interface {
	LeaderboardEntries() []EndpointScoreEntry
}

// LeaderboardPublisher publishes endpoint leaderboard metrics every 10 seconds
type LeaderboardPublisher struct {
	logger   polylog.Logger
	provider LeaderboardDataProvider
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// NewLeaderboardPublisher creates a new leaderboard publisher.
// A zero interval selects LeaderboardPublishInterval.
func NewLeaderboardPublisher(logger polylog.Logger, provider LeaderboardDataProvider, interval time.Duration) *LeaderboardPublisher {
	if interval <= 0 {
		interval = LeaderboardPublishInterval
	}
	return &LeaderboardPublisher{
		logger:   logger.With("component", "leaderboard_publisher"),
		provider: provider,
		interval: interval,
	}
}

// Start begins the periodic leaderboard publishing
func (lp *LeaderboardPublisher) Start(ctx context.Context) error {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.cancel != nil {
		return fmt.Errorf("leaderboard publisher already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	lp.cancel = cancel
	lp.stopped = make(chan struct{})

	go lp.run(runCtx, lp.stopped)
	lp.logger.Info().Msg("Leaderboard publisher started")
	return nil
}

// Stop stops the leaderboard publisher
func (lp *LeaderboardPublisher) Stop() {
	lp.mu.Lock()
	defer lp.mu.Unlock()

	if lp.cancel == nil {
		return
	}
	lp.cancel()
	<-lp.stopped
	lp.cancel, lp.stopped = nil, nil
	lp.logger.Info().Msg("Leaderboard publisher stopped")
}

func (lp *LeaderboardPublisher) run(ctx context.Context, stopped chan struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(lp.interval)
	defer ticker.Stop()

	// Publish immediately on the start
	lp.PublishOnce()

	for {
		select {
		case <-ticker.C:
			lp.PublishOnce()
		case <-ctx.Done():
			return
		}
	}
}

// PublishOnce replaces the leaderboard gauges with the provider's current scores.
func (lp *LeaderboardPublisher) PublishOnce() {
	if lp.provider == nil {
		lp.logger.Debug().Msg("No leaderboard data provider configured, skipping publish")
		return
	}

	type domainTotals struct {
		sum        float64
		reliable   int
		unreliable int
	}
	byDomain := make(map[string]*domainTotals)

	entries := lp.provider.LeaderboardEntries()
	for _, entry := range entries {
		domain := domainLabel(entry.URL)
		totals, ok := byDomain[domain]
		if !ok {
			totals = &domainTotals{}
			byDomain[domain] = totals
		}
		totals.sum += entry.Score
		if entry.Reliable {
			totals.reliable++
		} else {
			totals.unreliable++
		}
	}

	// Reset all previous values to avoid stale data
	EndpointLeaderboard.Reset()
	EndpointMeanScore.Reset()

	for domain, totals := range byDomain {
		EndpointLeaderboard.With(prometheus.Labels{LabelDomain: domain, LabelTier: TierReliable}).Set(float64(totals.reliable))
		EndpointLeaderboard.With(prometheus.Labels{LabelDomain: domain, LabelTier: TierUnreliable}).Set(float64(totals.unreliable))
		EndpointMeanScore.With(prometheus.Labels{LabelDomain: domain}).Set(totals.sum / float64(totals.reliable+totals.unreliable))
	}
	lp.logger.Debug().Int("entries", len(entries)).Msg("Published endpoint leaderboard")
}
