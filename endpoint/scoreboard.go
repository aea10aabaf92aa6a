package endpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// Score bounds and the starting value for an endpoint that has not been used.
const (
	MinScore     float64 = 0
	MaxScore     float64 = 100
	InitialScore float64 = 80

	// LowScoreThreshold marks an endpoint as unreliable in reports.
	LowScoreThreshold float64 = 30

	// defaultRecoveryTimeout resets a low score that has seen no signal for
	// this long, so an endpoint that was briefly down is not reported as
	// unreliable forever.
	defaultRecoveryTimeout = 5 * time.Minute
)

// SignalType categorizes the outcome of one read attempt.
type SignalType string

const (
	SignalSuccess SignalType = "success"
	// SignalTimeout is an attempt that ran out of time.
	SignalTimeout SignalType = "timeout"
	// SignalError is any other failed attempt: dial, transport or RPC error.
	SignalError SignalType = "error"
)

// scoreImpact is the score change for each signal type.
var scoreImpact = map[SignalType]float64{
	SignalSuccess: +1,
	SignalTimeout: -10,
	SignalError:   -25,
}

// Score is the reliability record of one endpoint.
type Score struct {
	URL          string
	Value        float64
	LastUpdated  time.Time
	SuccessCount int64
	ErrorCount   int64
}

// Reliable reports whether the score is at or above LowScoreThreshold.
func (s Score) Reliable() bool {
	return s.Value >= LowScoreThreshold
}

// Scoreboard keeps a reliability score per endpoint URL.
// Scores are reported only; the pool never reorders endpoints by them.
type Scoreboard struct {
	recoveryTimeout time.Duration
	now             func() time.Time

	mu     sync.Mutex
	scores map[string]*Score
}

// NewScoreboard creates a Scoreboard for urls, each at InitialScore.
// A zero recoveryTimeout selects the default.
func NewScoreboard(urls []string, recoveryTimeout time.Duration) *Scoreboard {
	if recoveryTimeout <= 0 {
		recoveryTimeout = defaultRecoveryTimeout
	}
	s := &Scoreboard{
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
		scores:          make(map[string]*Score, len(urls)),
	}
	for _, url := range urls {
		s.scores[url] = &Score{URL: url, Value: InitialScore}
	}
	return s
}

// Record applies the outcome of one attempt against url.
func (s *Scoreboard) Record(url string, signal SignalType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	score, ok := s.scores[url]
	if !ok {
		score = &Score{URL: url, Value: InitialScore}
		s.scores[url] = score
	}

	score.Value = min(MaxScore, max(MinScore, score.Value+scoreImpact[signal]))
	score.LastUpdated = s.now()
	if signal == SignalSuccess {
		score.SuccessCount++
	} else {
		score.ErrorCount++
	}
}

// Scores returns every endpoint's score, highest first, ties by URL.
func (s *Scoreboard) Scores() []Score {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	scores := make([]Score, 0, len(s.scores))
	for _, score := range s.scores {
		if !score.Reliable() && !score.LastUpdated.IsZero() && now.Sub(score.LastUpdated) >= s.recoveryTimeout {
			score.Value = InitialScore
		}
		scores = append(scores, *score)
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Value != scores[j].Value {
			return scores[i].Value > scores[j].Value
		}
		return scores[i].URL < scores[j].URL
	})
	return scores
}

// classify maps a failed attempt's error onto a signal.
func classify(err error) SignalType {
	if errors.Is(err, context.DeadlineExceeded) {
		return SignalTimeout
	}
	return SignalError
}
