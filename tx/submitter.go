// Package tx submits contract writes and confirms them through the endpoint
// pool rather than through the wallet's own connection.
package tx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/endpoint"
	"github.com/georgex8001/voting-fun/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultMaxAttempts  = 60

	outcomeConfirmed = "confirmed"
	outcomeReverted  = "reverted"
	outcomeTimeout   = "timeout"
)

var (
	// ErrConfirmationTimeout is matched by every *ConfirmationTimeoutError.
	ErrConfirmationTimeout = errors.New("transaction not confirmed within attempt budget")
	// ErrReverted is matched by every *RevertedError.
	ErrReverted = errors.New("transaction reverted")
)

// ConfirmationTimeoutError means no receipt appeared within the budget.
// The transaction may still be pending and must not be blindly resent.
type ConfirmationTimeoutError struct {
	Hash     common.Hash
	Attempts int
	Waited   time.Duration
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("transaction %s not confirmed after %d attempts (%s); it may still be pending", e.Hash.Hex(), e.Attempts, e.Waited)
}

func (e *ConfirmationTimeoutError) Unwrap() error {
	return ErrConfirmationTimeout
}

// RevertedError means the transaction was mined with a failed status.
type RevertedError struct {
	Hash    common.Hash
	Receipt *types.Receipt
}

func (e *RevertedError) Error() string {
	return fmt.Sprintf("transaction %s reverted in block %s", e.Hash.Hex(), e.Receipt.BlockNumber)
}

func (e *RevertedError) Unwrap() error {
	return ErrReverted
}

// Result is a confirmed transaction.
type Result struct {
	Hash    common.Hash
	Receipt *types.Receipt
}

// SubmitterConfig contains configuration for creating a Submitter.
type SubmitterConfig struct {
	Pool         *endpoint.Pool
	PollInterval time.Duration
	MaxAttempts  int
	Logger       polylog.Logger
}

// Submitter sends a write through a contract.WriteHandle and polls the
// endpoint pool for its receipt.
type Submitter struct {
	pool         *endpoint.Pool
	pollInterval time.Duration
	maxAttempts  int
	logger       polylog.Logger
}

func NewSubmitter(cfg SubmitterConfig) *Submitter {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Submitter{
		pool:         cfg.Pool,
		pollInterval: pollInterval,
		maxAttempts:  maxAttempts,
		logger:       cfg.Logger.With("component", "tx_submitter"),
	}
}

// Send submits exactly one transaction for call and returns its hash.
func (s *Submitter) Send(ctx context.Context, h *contract.WriteHandle, call contract.Call) (common.Hash, error) {
	hash, err := h.Transact(ctx, call)
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("method", call.Method).
			Str("binding", h.Binding().Kind().String()).
			Msg("Failed to send transaction")
		return common.Hash{}, fmt.Errorf("sending %s: %w", call.Method, err)
	}

	s.logger.Info().
		Str("method", call.Method).
		Str("binding", h.Binding().Kind().String()).
		Str("tx_hash", hash.Hex()).
		Msg("Transaction sent")

	return hash, nil
}

// Confirm polls for the receipt of hash every PollInterval, at most
// MaxAttempts times. A receipt that is not found yet is not an endpoint
// failure. When every endpoint fails a lookup the failure is logged and the
// loop goes on. An attempt in flight always finishes before the budget is
// checked again.
func (s *Submitter) Confirm(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	logger := s.logger.With("tx_hash", hash.Hex())
	start := time.Now()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var receipt *types.Receipt
		err := s.pool.Read(ctx, func(ctx context.Context, client endpoint.Client) error {
			r, err := client.TransactionReceipt(ctx, hash)
			if errors.Is(err, ethereum.NotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})

		switch {
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			logger.Warn().Err(err).Int("attempt", attempt).Msg("Receipt lookup failed on every endpoint")
		case receipt != nil && receipt.BlockNumber != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				metrics.RecordTxConfirmation(outcomeReverted, attempt)
				logger.Warn().Int("attempt", attempt).Msg("Transaction reverted")
				return receipt, &RevertedError{Hash: hash, Receipt: receipt}
			}
			metrics.RecordTxConfirmation(outcomeConfirmed, attempt)
			logger.Info().
				Int("attempt", attempt).
				Str("block", receipt.BlockNumber.String()).
				Msg("Transaction confirmed")
			return receipt, nil
		default:
			logger.Debug().Int("attempt", attempt).Msg("Receipt not available yet")
		}

		if attempt == s.maxAttempts {
			break
		}
		if err := sleep(ctx, s.pollInterval); err != nil {
			return nil, err
		}
	}

	metrics.RecordTxConfirmation(outcomeTimeout, s.maxAttempts)
	return nil, &ConfirmationTimeoutError{Hash: hash, Attempts: s.maxAttempts, Waited: time.Since(start)}
}

// Submit sends call and waits for its confirmation. It is not idempotent:
// on error the caller must check whether the transaction landed before
// submitting again.
func (s *Submitter) Submit(ctx context.Context, h *contract.WriteHandle, call contract.Call) (*Result, error) {
	hash, err := s.Send(ctx, h, call)
	if err != nil {
		return nil, err
	}

	// The hash is returned alongside a confirmation error so the caller can
	// look the transaction up later.
	receipt, err := s.Confirm(ctx, hash)
	return &Result{Hash: hash, Receipt: receipt}, err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
