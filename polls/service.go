// Package polls is the poll-level API of the voting client: listing and
// reading polls, casting votes and managing a poll's lifecycle. Every call
// goes through the contract router, so it targets whichever deployment the
// gateway status currently selects.
package polls

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pokt-network/poktroll/pkg/polylog"
	"github.com/viccon/sturdyc"

	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/tx"
)

const (
	defaultCacheTTL = 10 * time.Second
	defaultWorkers  = 8

	// defaultMaxListed bounds List against an endpoint reporting a bogus
	// poll count.
	defaultMaxListed = 500

	// Poll cache sizing.
	cacheCapacity           = 10_000
	cacheShards             = 10
	cacheEvictionPercentage = 10

	minOptions = 2
	maxOptions = 10
)

var (
	// ErrEncryptorUnavailable is returned for confidential writes when no
	// Encryptor is configured.
	ErrEncryptorUnavailable = errors.New("no encryptor configured for confidential contract")

	// ErrInvalidPoll is returned by Create for input the contract would reject.
	ErrInvalidPoll = errors.New("invalid poll")

	// ErrPollClosed is returned when voting on a poll that is no longer active.
	ErrPollClosed = errors.New("poll is closed")
)

// Encryptor produces encrypted inputs bound to a contract and the sending
// account. It is implemented on top of the gateway's encryption SDK.
type Encryptor interface {
	// EncryptZeros returns n encrypted zeros to seed a new poll's tallies.
	EncryptZeros(ctx context.Context, contractAddress, user common.Address, n int) ([]contract.EncryptedInput, error)
	// EncryptOption returns the encrypted option index for a vote.
	EncryptOption(ctx context.Context, contractAddress, user common.Address, option uint64) (*contract.EncryptedInput, error)
}

// ServiceConfig contains configuration for creating a Service.
type ServiceConfig struct {
	Router    *contract.Router
	Submitter *tx.Submitter

	// Encryptor may be nil; confidential creates and votes then fail with
	// ErrEncryptorUnavailable.
	Encryptor Encryptor

	CacheTTL time.Duration
	Workers  int

	// MaxListed caps how many polls List reads; the newest are kept.
	MaxListed int
	Logger    polylog.Logger
}

// Service reads and writes polls through the contract router.
// Poll metadata is cached briefly per deployment and id, and dropped after
// every write to that poll.
type Service struct {
	router    *contract.Router
	submitter *tx.Submitter
	encryptor Encryptor
	logger    polylog.Logger
	maxListed int

	cache *sturdyc.Client[*contract.Poll]
	pool  pond.Pool
}

func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	maxListed := cfg.MaxListed
	if maxListed <= 0 {
		maxListed = defaultMaxListed
	}
	return &Service{
		router:    cfg.Router,
		submitter: cfg.Submitter,
		encryptor: cfg.Encryptor,
		logger:    cfg.Logger.With("component", "poll_service"),
		maxListed: maxListed,
		cache:     sturdyc.New[*contract.Poll](cacheCapacity, cacheShards, ttl, cacheEvictionPercentage),
		pool:      pond.NewPool(workers),
	}
}

// Close stops the worker pool after in-flight reads finish.
func (s *Service) Close() {
	s.pool.StopAndWait()
}

// cacheKey scopes a poll id to the deployment it was read from.
//
// eg. "poll:0x1032d41F45c22b7dA427f234A0F418c02DA0f3A0:7"
func cacheKey(b contract.Binding, id *big.Int) string {
	return fmt.Sprintf("poll:%s:%s", b.Address().Hex(), id)
}

/* --------------------------------- Reads -------------------------------- */

// Count returns the number of polls on the current deployment.
func (s *Service) Count(ctx context.Context) (uint64, error) {
	count, err := s.router.ReadHandle().PollCount(ctx)
	if err != nil {
		return 0, err
	}
	if !count.IsUint64() {
		return 0, fmt.Errorf("poll count %s out of range", count)
	}
	return count.Uint64(), nil
}

// Get returns poll id from the current deployment.
func (s *Service) Get(ctx context.Context, id *big.Int) (*contract.Poll, error) {
	return s.get(ctx, s.router.ReadHandle(), id)
}

func (s *Service) get(ctx context.Context, reader *contract.ReadHandle, id *big.Int) (*contract.Poll, error) {
	key := cacheKey(reader.Binding(), id)
	poll, err := s.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*contract.Poll, error) {
		s.logger.Debug().Str("key", key).Msg("Poll cache miss, reading from chain")
		return reader.Poll(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	// Callers get their own copy so the cached value stays intact.
	clone := *poll
	clone.Options = append([]string(nil), poll.Options...)
	return &clone, nil
}

// List returns the polls on the current deployment in id order, at most
// MaxListed of them counting back from the newest. Polls are read
// concurrently. A poll that cannot be read is logged and left out; List
// fails only when no poll could be read at all.
func (s *Service) List(ctx context.Context) ([]*contract.Poll, error) {
	reader := s.router.ReadHandle()
	count, err := reader.PollCount(ctx)
	if err != nil {
		return nil, err
	}
	if count.Sign() == 0 {
		return nil, nil
	}
	if !count.IsInt64() {
		return nil, fmt.Errorf("poll count %s out of range", count)
	}

	total := count.Int64()
	first := int64(0)
	if total > int64(s.maxListed) {
		first = total - int64(s.maxListed)
		s.logger.Warn().
			Str("poll_count", count.String()).
			Int("max_listed", s.maxListed).
			Msg("Poll count exceeds the list limit, listing the newest polls only")
	}

	n := int(total - first)
	polls := make([]*contract.Poll, n)
	errs := make([]error, n)

	group := s.pool.NewGroup()
	for i := range n {
		group.Submit(func() {
			polls[i], errs[i] = s.get(ctx, reader, big.NewInt(first+int64(i)))
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	var (
		listed  []*contract.Poll
		lastErr error
	)
	for i, poll := range polls {
		if errs[i] != nil {
			lastErr = errs[i]
			s.logger.Warn().Err(errs[i]).Int64("poll_id", first+int64(i)).Msg("Failed to read poll, leaving it out of the list")
			continue
		}
		listed = append(listed, poll)
	}
	if len(listed) == 0 {
		return nil, fmt.Errorf("reading %d polls: %w", n, lastErr)
	}

	s.logger.Debug().
		Int("count", n).
		Int("listed", len(listed)).
		Str("binding", reader.Binding().Kind().String()).
		Msg("Listed polls")

	return listed, nil
}

// Results returns the tallies of poll id. A confidential poll that has not
// been decrypted yet reports zero for every option.
func (s *Service) Results(ctx context.Context, id *big.Int) ([]uint64, error) {
	reader := s.router.ReadHandle()
	poll, err := s.get(ctx, reader, id)
	if err != nil {
		return nil, err
	}
	if !poll.ResultsDecrypted {
		return make([]uint64, len(poll.Options)), nil
	}
	return reader.Results(ctx, id)
}

// HasVoted reports whether voter has voted in poll id.
func (s *Service) HasVoted(ctx context.Context, id *big.Int, voter common.Address) (bool, error) {
	return s.router.ReadHandle().HasVoted(ctx, id, voter)
}

/* --------------------------------- Writes -------------------------------- */

// Create submits a new poll and returns its decoded PollCreated event.
// Blank options are dropped before validation.
func (s *Service) Create(ctx context.Context, title string, options []string, duration time.Duration) (*contract.PollCreated, error) {
	title = strings.TrimSpace(title)
	var valid []string
	for _, option := range options {
		if option = strings.TrimSpace(option); option != "" {
			valid = append(valid, option)
		}
	}
	switch {
	case title == "":
		return nil, fmt.Errorf("%w: title is empty", ErrInvalidPoll)
	case len(valid) < minOptions || len(valid) > maxOptions:
		return nil, fmt.Errorf("%w: need %d to %d options, got %d", ErrInvalidPoll, minOptions, maxOptions, len(valid))
	case duration < time.Second:
		return nil, fmt.Errorf("%w: duration %s is too short", ErrInvalidPoll, duration)
	}

	writer, err := s.router.WriteHandle()
	if err != nil {
		return nil, err
	}

	var zeros []contract.EncryptedInput
	if _, ok := writer.Binding().(*contract.ConfidentialBinding); ok {
		if s.encryptor == nil {
			return nil, ErrEncryptorUnavailable
		}
		zeros, err = s.encryptor.EncryptZeros(ctx, writer.Binding().Address(), writer.From(), len(valid))
		if err != nil {
			return nil, fmt.Errorf("encrypting initial tallies: %w", err)
		}
	}

	call, err := writer.CreatePollCall(title, valid, duration, zeros)
	if err != nil {
		return nil, err
	}
	result, err := s.submitter.Submit(ctx, writer, call)
	if err != nil {
		return nil, err
	}
	created, err := contract.ParsePollCreated(writer.Binding(), result.Receipt)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("poll_id", created.PollID.String()).
		Str("binding", writer.Binding().Kind().String()).
		Int("options", len(valid)).
		Msg("Poll created")

	return created, nil
}

// Vote casts a vote for option in poll id. The option is checked against the
// poll's options before anything is sent.
func (s *Service) Vote(ctx context.Context, id *big.Int, option uint64) (*tx.Result, error) {
	writer, err := s.router.WriteHandle()
	if err != nil {
		return nil, err
	}

	poll, err := s.get(ctx, s.router.ReadHandleFor(writer.Binding()), id)
	if err != nil {
		return nil, err
	}
	if option >= uint64(len(poll.Options)) {
		return nil, fmt.Errorf("%w: poll %s has %d options, got %d", contract.ErrInvalidOption, id, len(poll.Options), option)
	}
	if !poll.IsActive || poll.Expired(time.Now()) {
		return nil, fmt.Errorf("%w: poll %s", ErrPollClosed, id)
	}

	var encrypted *contract.EncryptedInput
	if _, ok := writer.Binding().(*contract.ConfidentialBinding); ok {
		if s.encryptor == nil {
			return nil, ErrEncryptorUnavailable
		}
		encrypted, err = s.encryptor.EncryptOption(ctx, writer.Binding().Address(), writer.From(), option)
		if err != nil {
			return nil, fmt.Errorf("encrypting vote: %w", err)
		}
	}

	call, err := writer.VoteCall(id, option, encrypted)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, writer, call, id)
}

// End closes poll id before its end time.
func (s *Service) End(ctx context.Context, id *big.Int) (*tx.Result, error) {
	return s.lifecycle(ctx, id, (*contract.WriteHandle).EndPollCall)
}

// CancelExpired closes poll id after its end time passed without decryption.
func (s *Service) CancelExpired(ctx context.Context, id *big.Int) (*tx.Result, error) {
	return s.lifecycle(ctx, id, (*contract.WriteHandle).CancelExpiredPollCall)
}

// RetryDecryption asks the gateway to decrypt poll id again after a failed
// callback.
func (s *Service) RetryDecryption(ctx context.Context, id *big.Int) (*tx.Result, error) {
	return s.lifecycle(ctx, id, (*contract.WriteHandle).RetryDecryptionCall)
}

func (s *Service) lifecycle(
	ctx context.Context,
	id *big.Int,
	build func(*contract.WriteHandle, *big.Int) (contract.Call, error),
) (*tx.Result, error) {
	writer, err := s.router.WriteHandle()
	if err != nil {
		return nil, err
	}
	call, err := build(writer, id)
	if err != nil {
		return nil, err
	}
	return s.submit(ctx, writer, call, id)
}

// submit sends call and drops the cached poll once the transaction is out,
// whether or not it confirmed.
func (s *Service) submit(ctx context.Context, writer *contract.WriteHandle, call contract.Call, id *big.Int) (*tx.Result, error) {
	result, err := s.submitter.Submit(ctx, writer, call)
	if result != nil {
		s.cache.Delete(cacheKey(writer.Binding(), id))
	}
	if err != nil {
		return result, err
	}

	s.logger.Info().
		Str("method", call.Method).
		Str("poll_id", id.String()).
		Str("tx_hash", result.Hash.Hex()).
		Msg("Poll updated")

	return result, nil
}
