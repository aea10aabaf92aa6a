// Package relayer polls the decryption relayer for the outcome of a gateway
// decryption request.
//
// The relayer is advisory: the on-chain callback is the authoritative signal
// that a decryption finished. Callers use the relayer to learn early that the
// gateway has produced a result, never to decide that it failed.
package relayer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	json "github.com/goccy/go-json"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	publicDecryptPath = "/v1/public-decrypt"
	healthPath        = "/health"

	defaultTimeout      = 10 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultMaxAttempts  = 60

	// maxResponseBytes caps how much of a relayer response is read.
	maxResponseBytes = 1 << 20
)

var (
	// ErrPollExhausted means the relayer never reported a ready result within
	// the attempt budget. It is not a decryption failure.
	ErrPollExhausted = errors.New("relayer poll budget exhausted")
)

// StatusError is a relayer response that is neither ready nor not-ready.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relayer returned status %d: %s", e.StatusCode, e.Body)
}

// Decryption is a ready relayer response.
type Decryption struct {
	// Values holds the decrypted values if the payload carries them under
	// "response" or "decrypted_value". It may be empty.
	Values []string
	// Raw is the unmodified response body.
	Raw []byte
	// Attempts is how many requests it took to get the response.
	Attempts int
}

type publicDecryptRequest struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contractAddress"`
	ChainID         uint64 `json:"chainId"`
}

// ClientConfig contains configuration for creating a Client.
type ClientConfig struct {
	BaseURL string
	ChainID uint64

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Timeout bounds each request.
	Timeout time.Duration
	// RateLimit caps requests per second. Zero disables the limit.
	RateLimit float64
	Logger    polylog.Logger
}

// Client talks to one relayer.
type Client struct {
	baseURL    string
	chainID    uint64
	httpClient *http.Client
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     polylog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		chainID:    cfg.ChainID,
		httpClient: httpClient,
		timeout:    timeout,
		limiter:    limiter,
		logger:     cfg.Logger.With("component", "relayer_client"),
	}
}

// Handle formats a request id the way the relayer expects: 0x-prefixed
// lowercase hex without padding.
func Handle(requestID *big.Int) string {
	return "0x" + requestID.Text(16)
}

// PollOnce asks the relayer once whether requestID is decrypted.
// A nil Decryption with a nil error means "not ready yet".
func (c *Client) PollOnce(ctx context.Context, requestID *big.Int, contract common.Address) (*Decryption, error) {
	body, err := json.Marshal(publicDecryptRequest{
		Handle:          Handle(requestID),
		ContractAddress: contract.Hex(),
		ChainID:         c.chainID,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding relayer request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+publicDecryptPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building relayer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling relayer: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading relayer response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &Decryption{Values: extractValues(raw), Raw: raw}, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
}

// extractValues pulls decrypted values out of the known payload shapes.
// Unknown shapes yield nil; the raw body is still returned to the caller.
func extractValues(raw []byte) []string {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	for _, path := range []string{"response", "decrypted_value", "response.decrypted_value"} {
		result := gjson.GetBytes(raw, path)
		if !result.Exists() {
			continue
		}
		if result.IsArray() {
			var values []string
			for _, item := range result.Array() {
				values = append(values, item.String())
			}
			return values
		}
		if result.IsObject() {
			continue
		}
		return []string{result.String()}
	}
	return nil
}

// PollOptions bounds a Poll loop.
type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int

	// OnAttempt, if set, is called before each attempt with the 1-based
	// attempt number and the budget.
	OnAttempt func(attempt, maxAttempts int)
}

// Poll calls PollOnce every Interval until the relayer reports a ready
// result or MaxAttempts is reached. Network errors and unexpected statuses
// are logged and treated as transient. Exhaustion returns ErrPollExhausted.
func (c *Client) Poll(ctx context.Context, requestID *big.Int, contract common.Address, opts PollOptions) (*Decryption, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	logger := c.logger.With("request_id", requestID.String())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if opts.OnAttempt != nil {
			opts.OnAttempt(attempt, maxAttempts)
		}

		decryption, err := c.PollOnce(ctx, requestID, contract)
		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Relayer poll failed")
		case decryption != nil:
			decryption.Attempts = attempt
			logger.Info().Int("attempt", attempt).Msg("Relayer reports decryption ready")
			return decryption, nil
		default:
			logger.Debug().Int("attempt", attempt).Int("max_attempts", maxAttempts).Msg("Decryption not ready yet")
		}

		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrPollExhausted, maxAttempts)
}

// CheckHealth reports whether the relayer answers GET /health with a 2xx.
func (c *Client) CheckHealth(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+healthPath, nil)
	if err != nil {
		return fmt.Errorf("building relayer health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("checking relayer health: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
