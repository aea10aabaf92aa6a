// Package decryption drives a finished poll through gateway decryption and
// exposes the progress of that process to observers.
//
// A confidential poll is decrypted in four stages: the decryption request is
// sent and confirmed (requesting), the relayer is asked whether the gateway
// has produced a result (polling), the contract is watched until the gateway
// callback marks the poll decrypted (waiting_callback) and finally the
// tallies are read (success). The relayer is advisory. Only the on-chain
// flag decides whether a decryption finished.
//
// Plain polls have nothing to decrypt: their tallies are read directly.
package decryption

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pokt-network/poktroll/pkg/polylog"

	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/metrics"
	"github.com/georgex8001/voting-fun/relayer"
	"github.com/georgex8001/voting-fun/tx"
)

const (
	defaultRelayerInterval  = 5 * time.Second
	defaultRelayerAttempts  = 60
	defaultCallbackInterval = time.Second
	defaultCallbackAttempts = 120
)

// Progress checkpoints.
const (
	progressHandles   = 10
	progressSent      = 20
	progressConfirmed = 25
	progressRequested = 30
	progressPolled    = 80
	progressCallback  = 15
	progressDone      = 100
)

const (
	outcomeSuccess    = "success"
	outcomeFailed     = "failed"
	outcomeSuperseded = "superseded"
)

// WorkflowConfig contains configuration for creating a Workflow.
type WorkflowConfig struct {
	Router    *contract.Router
	Submitter *tx.Submitter

	// Relayer may be nil, in which case the polling stage is skipped and the
	// workflow goes straight to waiting for the callback.
	Relayer         *relayer.Client
	RelayerInterval time.Duration
	RelayerAttempts int

	CallbackInterval time.Duration
	CallbackAttempts int

	Logger polylog.Logger
}

// Workflow runs decryption requests and holds the state of the latest one.
//
// Workflow does not deduplicate concurrent calls. The newest call to
// RequestDecryption owns the observable state; an older call still returns
// its outcome to its own caller but no longer updates the state. Reset
// abandons the current call the same way.
type Workflow struct {
	router           *contract.Router
	submitter        *tx.Submitter
	relayer          *relayer.Client
	relayerInterval  time.Duration
	relayerAttempts  int
	callbackInterval time.Duration
	callbackAttempts int
	logger           polylog.Logger

	// notifyMu serializes state changes with their notifications.
	notifyMu sync.Mutex

	mu          sync.Mutex
	generation  uint64
	state       Request
	subscribers map[uint64]func(Request)
	nextSubID   uint64

	// history is the last successful result per deployment and poll.
	history map[string][]uint64
}

func NewWorkflow(cfg WorkflowConfig) *Workflow {
	w := &Workflow{
		router:           cfg.Router,
		submitter:        cfg.Submitter,
		relayer:          cfg.Relayer,
		relayerInterval:  cfg.RelayerInterval,
		relayerAttempts:  cfg.RelayerAttempts,
		callbackInterval: cfg.CallbackInterval,
		callbackAttempts: cfg.CallbackAttempts,
		logger:           cfg.Logger.With("component", "decryption_workflow"),
		state:            Request{Status: StatusIdle},
		subscribers:      make(map[uint64]func(Request)),
		history:          make(map[string][]uint64),
	}
	if w.relayerInterval <= 0 {
		w.relayerInterval = defaultRelayerInterval
	}
	if w.relayerAttempts <= 0 {
		w.relayerAttempts = defaultRelayerAttempts
	}
	if w.callbackInterval <= 0 {
		w.callbackInterval = defaultCallbackInterval
	}
	if w.callbackAttempts <= 0 {
		w.callbackAttempts = defaultCallbackAttempts
	}
	return w
}

// Snapshot returns a copy of the current state.
func (w *Workflow) Snapshot() Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state.clone()
}

// Subscribe registers fn and immediately calls it with the current state.
// fn is then called on every state change until the returned function is
// called. fn must not call back into the Workflow.
func (w *Workflow) Subscribe(fn func(Request)) (unsubscribe func()) {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	id := w.nextSubID
	w.nextSubID++
	w.subscribers[id] = fn
	current := w.state.clone()
	w.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.subscribers, id)
			w.mu.Unlock()
		})
	}
}

// Reset returns the workflow to idle. A call in flight is not cancelled, but
// nothing it does afterwards reaches the state.
func (w *Workflow) Reset() {
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	w.generation++
	w.state = Request{Status: StatusIdle}
	snapshot := w.state.clone()
	subscribers := w.subscribersLocked()
	w.mu.Unlock()

	w.logger.Debug().Msg("Decryption workflow reset")
	notify(subscribers, snapshot)
}

// RequestDecryption decrypts poll pollID and returns its tallies, one per
// option. Every failure leaves the state in StatusFailed with the progress
// reached so far. Calling it again after a failure starts over.
func (w *Workflow) RequestDecryption(ctx context.Context, pollID *big.Int) ([]uint64, error) {
	a := w.begin(pollID)
	a.logger.Info().Msg("Starting decryption request")

	results, err := a.execute(ctx)
	a.endStage()
	if err != nil {
		a.fail(err)
		return nil, err
	}
	a.succeed(results)
	return results, nil
}

func (w *Workflow) subscribersLocked() []func(Request) {
	subscribers := make([]func(Request), 0, len(w.subscribers))
	for _, fn := range w.subscribers {
		subscribers = append(subscribers, fn)
	}
	return subscribers
}

func notify(subscribers []func(Request), r Request) {
	for _, fn := range subscribers {
		fn(r.clone())
	}
}

// recordResult compares results with the previous success for the same poll
// and remembers them. Tallies never go down on chain, so a decrease means a
// stale or wrong read.
func (w *Workflow) recordResult(binding contract.Binding, pollID *big.Int, results []uint64) error {
	key := binding.Address().Hex() + "/" + pollID.String()

	w.mu.Lock()
	defer w.mu.Unlock()

	prev := w.history[key]
	for i := 0; i < len(prev) && i < len(results); i++ {
		if results[i] < prev[i] {
			return fmt.Errorf("%w: poll %s option %d went from %d to %d",
				ErrResultRegression, pollID, i, prev[i], results[i])
		}
	}
	w.history[key] = append([]uint64(nil), results...)
	return nil
}

/* --------------------------------- One Invocation -------------------------------- */

// attempt is one RequestDecryption call. It may only touch the shared state
// while its generation is current.
type attempt struct {
	w          *Workflow
	generation uint64
	pollID     *big.Int
	kind       contract.Kind
	logger     polylog.Logger

	stage      Status
	stageStart time.Time
}

func (w *Workflow) begin(pollID *big.Int) *attempt {
	attemptID := uuid.NewString()

	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	w.generation++
	w.state = Request{
		PollID:    new(big.Int).Set(pollID),
		Status:    StatusRequesting,
		AttemptID: attemptID,
	}
	a := &attempt{
		w:          w,
		generation: w.generation,
		pollID:     new(big.Int).Set(pollID),
		logger:     w.logger.With("attempt_id", attemptID).With("poll_id", pollID.String()),
		stage:      StatusRequesting,
		stageStart: time.Now(),
	}
	snapshot := w.state.clone()
	subscribers := w.subscribersLocked()
	w.mu.Unlock()

	notify(subscribers, snapshot)
	return a
}

// update applies fn to the shared state if a still owns it, and notifies
// subscribers when fn reports a change. It reports whether a owns the state.
func (a *attempt) update(fn func(r *Request) bool) bool {
	w := a.w
	w.notifyMu.Lock()
	defer w.notifyMu.Unlock()

	w.mu.Lock()
	if w.generation != a.generation {
		w.mu.Unlock()
		return false
	}
	if !fn(&w.state) {
		w.mu.Unlock()
		return true
	}
	snapshot := w.state.clone()
	subscribers := w.subscribersLocked()
	w.mu.Unlock()

	notify(subscribers, snapshot)
	return true
}

// setProgress raises the progress to p. It never lowers it.
func (a *attempt) setProgress(p int) {
	a.update(func(r *Request) bool {
		if p <= r.Progress {
			return false
		}
		r.Progress = p
		return true
	})
}

func (a *attempt) enterStage(stage Status, progress int) {
	a.endStage()
	a.stage = stage
	a.stageStart = time.Now()
	a.update(func(r *Request) bool {
		r.Status = stage
		if progress > r.Progress {
			r.Progress = progress
		}
		return true
	})
	a.logger.Debug().Str("stage", stage.String()).Msg("Entered decryption stage")
}

func (a *attempt) endStage() {
	if a.stage == "" {
		return
	}
	metrics.RecordDecryptionStage(a.stage.String(), time.Since(a.stageStart).Seconds())
	a.stage = ""
}

func (a *attempt) succeed(results []uint64) {
	owned := a.update(func(r *Request) bool {
		r.Status = StatusSuccess
		r.Progress = progressDone
		r.Result = append([]uint64(nil), results...)
		r.Err = nil
		return true
	})
	if !owned {
		metrics.RecordDecryptionOutcome(a.kind.String(), outcomeSuperseded)
		a.logger.Debug().Msg("Decryption finished after the workflow moved on; state left untouched")
		return
	}
	metrics.RecordDecryptionOutcome(a.kind.String(), outcomeSuccess)
	a.logger.Info().Int("options", len(results)).Msg("Decryption succeeded")
}

func (a *attempt) fail(err error) {
	owned := a.update(func(r *Request) bool {
		r.Status = StatusFailed
		r.Err = err
		return true
	})
	if !owned {
		metrics.RecordDecryptionOutcome(a.kind.String(), outcomeSuperseded)
		a.logger.Debug().Err(err).Msg("Decryption failed after the workflow moved on; state left untouched")
		return
	}
	metrics.RecordDecryptionOutcome(a.kind.String(), outcomeFailed)
	a.logger.Error().Err(err).Msg("Decryption failed")
}

// execute runs the stages in order. The binding is resolved once; a gateway
// status change while it runs does not affect this invocation.
func (a *attempt) execute(ctx context.Context) ([]uint64, error) {
	w := a.w
	binding := w.router.ResolveBinding()
	reader := w.router.ReadHandleFor(binding)

	a.kind = binding.Kind()
	a.logger = a.logger.With("binding", a.kind.String())
	a.update(func(r *Request) bool {
		r.Binding = a.kind
		return true
	})

	switch binding.(type) {
	case *contract.PlainBinding:
		poll, err := reader.Poll(ctx, a.pollID)
		if err != nil {
			return nil, fmt.Errorf("reading poll %s: %w", a.pollID, err)
		}
		a.setProgress(progressHandles)
		a.logger.Info().Msg("Plain poll has public results, skipping decryption")
		return a.fetchResults(ctx, reader, poll)
	case *contract.ConfidentialBinding:
	default:
		panic(fmt.Sprintf("unknown binding type %T", binding))
	}

	// A missing signer fails before the first network call.
	writer, err := w.router.WriteHandleFor(binding)
	if err != nil {
		return nil, err
	}

	poll, err := reader.Poll(ctx, a.pollID)
	if err != nil {
		return nil, fmt.Errorf("reading poll %s: %w", a.pollID, err)
	}
	if poll.ResultsDecrypted {
		a.setProgress(progressHandles)
		a.logger.Info().Msg("Poll already decrypted, skipping decryption request")
		return a.fetchResults(ctx, reader, poll)
	}

	call, err := writer.RequestDecryptionCall(a.pollID)
	if err != nil {
		return nil, err
	}
	a.setProgress(progressHandles)

	hash, err := w.submitter.Send(ctx, writer, call)
	if err != nil {
		return nil, err
	}
	a.setProgress(progressSent)

	receipt, err := w.submitter.Confirm(ctx, hash)
	if err != nil {
		return nil, err
	}
	a.setProgress(progressConfirmed)

	event, err := contract.ParseDecryptionRequested(binding, receipt, a.pollID)
	if err != nil {
		return nil, fmt.Errorf("decryption request %s: %w", hash.Hex(), err)
	}
	a.logger = a.logger.With("request_id", event.RequestID.String())
	a.update(func(r *Request) bool {
		r.RequestID = new(big.Int).Set(event.RequestID)
		if progressRequested > r.Progress {
			r.Progress = progressRequested
		}
		return true
	})
	a.logger.Info().Str("tx_hash", hash.Hex()).Msg("Decryption requested")

	if err := a.pollRelayer(ctx, binding.Address(), event.RequestID); err != nil {
		return nil, err
	}
	if err := a.waitForCallback(ctx, reader, event.RequestID); err != nil {
		return nil, err
	}
	return a.fetchResults(ctx, reader, poll)
}

// pollRelayer asks the relayer for the result. Nothing the relayer does can
// fail the workflow; only cancellation stops it.
func (a *attempt) pollRelayer(ctx context.Context, contractAddress common.Address, requestID *big.Int) error {
	w := a.w
	a.enterStage(StatusPolling, progressRequested)

	if w.relayer == nil {
		a.logger.Debug().Msg("No relayer configured, waiting for the callback directly")
		a.setProgress(progressPolled)
		return nil
	}

	span := progressPolled - progressRequested
	ready, err := w.relayer.Poll(ctx, requestID, contractAddress, relayer.PollOptions{
		Interval:    w.relayerInterval,
		MaxAttempts: w.relayerAttempts,
		OnAttempt: func(attempt, maxAttempts int) {
			a.setProgress(progressRequested + span*(attempt-1)/maxAttempts)
		},
	})
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case err != nil:
		a.logger.Warn().Err(err).Msg("Relayer did not report a result; waiting for the on-chain callback anyway")
	default:
		a.logger.Info().Int("attempts", ready.Attempts).Msg("Relayer reports the decryption is ready")
	}

	a.setProgress(progressPolled)
	return nil
}

// waitForCallback reads the poll until the gateway callback has marked it
// decrypted. Read errors count as a failed check.
func (a *attempt) waitForCallback(ctx context.Context, reader *contract.ReadHandle, requestID *big.Int) error {
	w := a.w
	a.enterStage(StatusWaitingCallback, progressPolled)
	start := time.Now()

	for i := 0; i < w.callbackAttempts; i++ {
		a.setProgress(progressPolled + progressCallback*i/w.callbackAttempts)

		poll, err := reader.Poll(ctx, a.pollID)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			a.logger.Warn().Err(err).Int("check", i+1).Msg("Failed to read decryption flag")
		case poll.ResultsDecrypted:
			a.logger.Info().Int("check", i+1).Msg("Gateway callback completed on chain")
			return nil
		}

		if i == w.callbackAttempts-1 {
			break
		}
		if err := sleep(ctx, w.callbackInterval); err != nil {
			return err
		}
	}

	return &CallbackTimeoutError{
		PollID:    new(big.Int).Set(a.pollID),
		RequestID: new(big.Int).Set(requestID),
		Attempts:  w.callbackAttempts,
		Waited:    time.Since(start),
	}
}

// fetchResults reads the tallies and checks them against the poll's options
// and any earlier success for the same poll.
func (a *attempt) fetchResults(ctx context.Context, reader *contract.ReadHandle, poll *contract.Poll) ([]uint64, error) {
	results, err := reader.Results(ctx, a.pollID)
	if err != nil {
		return nil, fmt.Errorf("reading results of poll %s: %w", a.pollID, err)
	}
	if len(results) != len(poll.Options) {
		return nil, &ResultShapeError{
			PollID:  new(big.Int).Set(a.pollID),
			Options: len(poll.Options),
			Results: len(results),
		}
	}
	if err := a.w.recordResult(reader.Binding(), a.pollID, results); err != nil {
		return nil, err
	}
	return results, nil
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
