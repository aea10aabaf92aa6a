// Package endpoint provides resilient read access across an ordered list of
// interchangeable RPC endpoints.
//
// Every read tries the endpoints in configured order and returns the first
// success. The order never changes: the pool keeps a Scoreboard of each
// endpoint's reliability for reporting, but never routes by it, so the same
// failures always produce the same fallback.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/metrics"
)

const defaultRequestTimeout = 10 * time.Second

var (
	// ErrAllEndpointsFailed is matched by every *ExhaustedError.
	ErrAllEndpointsFailed = errors.New("all endpoints failed")
	ErrNoEndpoints        = errors.New("no endpoints configured")
)

// Client is the read subset of *ethclient.Client used through the pool.
type Client interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Dialer opens a Client for an endpoint URL.
type Dialer func(ctx context.Context, url string) (Client, error)

// DialEthClient dials an endpoint with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, url string) (Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// AttemptError is the failure of one endpoint during a read.
type AttemptError struct {
	URL string
	Err error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s: %v", e.URL, e.Err)
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every endpoint failed a read.
// It names the last endpoint tried and wraps every attempt's error.
type ExhaustedError struct {
	LastURL  string
	Attempts []AttemptError
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d endpoints failed, last endpoint %s", len(e.Attempts), e.LastURL)
	for _, attempt := range e.Attempts {
		b.WriteString("; ")
		b.WriteString(attempt.Error())
	}
	return b.String()
}

func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts)+1)
	errs = append(errs, ErrAllEndpointsFailed)
	for _, attempt := range e.Attempts {
		errs = append(errs, attempt)
	}
	return errs
}

// PoolConfig contains configuration for creating a Pool.
type PoolConfig struct {
	URLs []string

	// Dialer defaults to DialEthClient.
	Dialer Dialer

	// RequestTimeout bounds each single-endpoint attempt.
	RequestTimeout time.Duration

	// ScoreRecoveryTimeout is passed to the pool's Scoreboard.
	ScoreRecoveryTimeout time.Duration
	Logger               polylog.Logger
}

// Pool serves reads from an immutable ordered list of endpoints.
// Dialled clients are kept for the life of the pool.
type Pool struct {
	urls    []string
	dial    Dialer
	timeout time.Duration
	scores  *Scoreboard
	logger  polylog.Logger

	mu      sync.Mutex
	clients map[string]Client
}

// NewPool creates a Pool. The URL list is copied.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if len(cfg.URLs) == 0 {
		return nil, ErrNoEndpoints
	}
	dial := cfg.Dialer
	if dial == nil {
		dial = DialEthClient
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Pool{
		urls:    append([]string(nil), cfg.URLs...),
		dial:    dial,
		timeout: timeout,
		scores:  NewScoreboard(cfg.URLs, cfg.ScoreRecoveryTimeout),
		logger:  cfg.Logger.With("component", "endpoint_pool"),
		clients: make(map[string]Client, len(cfg.URLs)),
	}, nil
}

// URLs returns a copy of the endpoint list in retry order.
func (p *Pool) URLs() []string {
	return append([]string(nil), p.urls...)
}

// Scores returns the reliability score of every endpoint, highest first.
func (p *Pool) Scores() []Score {
	return p.scores.Scores()
}

// Read runs op against each endpoint in order until one succeeds.
// The first success is returned unchanged. If every endpoint fails, the
// error is an *ExhaustedError. Cancelling ctx stops the iteration at once
// and returns the context error.
func (p *Pool) Read(ctx context.Context, op func(ctx context.Context, client Client) error) error {
	exhausted := &ExhaustedError{}

	for _, url := range p.urls {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := p.attempt(ctx, url, op)
		if err == nil {
			metrics.RecordEndpointRead(url, true)
			p.scores.Record(url, SignalSuccess)
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		metrics.RecordEndpointRead(url, false)
		p.scores.Record(url, classify(err))
		p.logger.Debug().
			Err(err).
			Str("endpoint", url).
			Msg("Endpoint read failed, trying next endpoint")

		exhausted.LastURL = url
		exhausted.Attempts = append(exhausted.Attempts, AttemptError{URL: url, Err: err})
	}

	p.logger.Warn().
		Str("last_endpoint", exhausted.LastURL).
		Int("attempts", len(exhausted.Attempts)).
		Msg("All endpoints failed")

	return exhausted
}

func (p *Pool) attempt(ctx context.Context, url string, op func(ctx context.Context, client Client) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	client, err := p.client(ctx, url)
	if err != nil {
		return fmt.Errorf("dialing endpoint: %w", err)
	}
	return op(ctx, client)
}

func (p *Pool) client(ctx context.Context, url string) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if client, ok := p.clients[url]; ok {
		return client, nil
	}
	client, err := p.dial(ctx, url)
	if err != nil {
		return nil, err
	}
	p.clients[url] = client
	return client, nil
}

// Close releases every dialled client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for url, client := range p.clients {
		if closer, ok := client.(interface{ Close() }); ok {
			closer.Close()
		}
		delete(p.clients, url)
	}
}

// ReadValue is Read for operations that produce a value.
func ReadValue[T any](ctx context.Context, p *Pool, op func(ctx context.Context, client Client) (T, error)) (T, error) {
	var result T
	err := p.Read(ctx, func(ctx context.Context, client Client) error {
		value, err := op(ctx, client)
		if err != nil {
			return err
		}
		result = value
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// LeaderboardEntries reports the scores in the shape the metrics
// leaderboard publishes.
func (p *Pool) LeaderboardEntries() []metrics.EndpointScoreEntry {
	scores := p.Scores()
	entries := make([]metrics.EndpointScoreEntry, len(scores))
	for i, score := range scores {
		entries[i] = metrics.EndpointScoreEntry{URL: score.URL, Score: score.Value, Reliable: score.Reliable()}
	}
	return entries
}
