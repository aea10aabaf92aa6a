package decryption

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/georgex8001/voting-fun/contract"
)

// Status is the stage a decryption request is in.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRequesting      Status = "requesting"
	StatusPolling         Status = "polling"
	StatusWaitingCallback Status = "waiting_callback"
	StatusSuccess         Status = "success"
	StatusFailed          Status = "failed"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether s ends an invocation.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// Request is the observable state of the current decryption attempt.
type Request struct {
	PollID *big.Int
	// RequestID is nil until the DecryptionRequested event has been parsed.
	RequestID *big.Int
	Status    Status
	// Progress is an advisory 0-100 value. It only reaches 100 on success.
	Progress int
	// Err is set only when Status is StatusFailed.
	Err error
	// Result is set only when Status is StatusSuccess.
	Result []uint64
	// AttemptID correlates the log lines of one invocation.
	AttemptID string
	Binding   contract.Kind
}

// clone returns a copy that shares nothing mutable with r.
func (r Request) clone() Request {
	if r.PollID != nil {
		r.PollID = new(big.Int).Set(r.PollID)
	}
	if r.RequestID != nil {
		r.RequestID = new(big.Int).Set(r.RequestID)
	}
	if r.Result != nil {
		r.Result = append([]uint64(nil), r.Result...)
	}
	return r
}

// ErrResultRegression means a poll's decrypted tallies went down compared to
// an earlier successful decryption in this process.
var ErrResultRegression = errors.New("decrypted results decreased since the previous decryption")

// CallbackTimeoutError means the gateway callback never marked the poll as
// decrypted within the attempt budget. Only a new decryption request can
// recover from it.
type CallbackTimeoutError struct {
	PollID    *big.Int
	RequestID *big.Int
	Attempts  int
	Waited    time.Duration
}

func (e *CallbackTimeoutError) Error() string {
	return fmt.Sprintf("poll %s was not decrypted after %d checks (%s); request decryption again to retry",
		e.PollID, e.Attempts, e.Waited.Round(time.Millisecond))
}

// ResultShapeError means the results vector does not line up with the
// poll's options.
type ResultShapeError struct {
	PollID  *big.Int
	Options int
	Results int
}

func (e *ResultShapeError) Error() string {
	return fmt.Sprintf("poll %s has %d options but %d results", e.PollID, e.Options, e.Results)
}
