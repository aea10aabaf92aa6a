package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/georgex8001/voting-fun/endpoint"
)

// Poll is the on-chain metadata of one poll.
type Poll struct {
	ID       *big.Int
	Title    string
	Options  []string
	Creator  common.Address
	EndTime  time.Time
	IsActive bool

	// ResultsDecrypted is always true on the plain deployment, where results
	// are never encrypted.
	ResultsDecrypted bool
}

// Expired reports whether the poll's end time has passed at now.
func (p *Poll) Expired(now time.Time) bool {
	return !now.Before(p.EndTime)
}

// plainPollInfo mirrors the six getPollInfo outputs of the plain deployment.
type plainPollInfo struct {
	ID       *big.Int       `abi:"id"`
	Title    string         `abi:"title"`
	Options  []string       `abi:"options"`
	Creator  common.Address `abi:"creator"`
	EndTime  *big.Int       `abi:"endTime"`
	IsActive bool           `abi:"isActive"`
}

// confidentialPollInfo adds the decryption flag returned by the confidential
// deployment. The ABI decoder rejects tags without a matching output, so the
// two shapes cannot share one struct.
type confidentialPollInfo struct {
	ID               *big.Int       `abi:"id"`
	Title            string         `abi:"title"`
	Options          []string       `abi:"options"`
	Creator          common.Address `abi:"creator"`
	EndTime          *big.Int       `abi:"endTime"`
	IsActive         bool           `abi:"isActive"`
	ResultsDecrypted bool           `abi:"resultsDecrypted"`
}

func (i plainPollInfo) poll() *Poll {
	return &Poll{
		ID:       i.ID,
		Title:    i.Title,
		Options:  i.Options,
		Creator:  i.Creator,
		EndTime:  time.Unix(i.EndTime.Int64(), 0),
		IsActive: i.IsActive,
	}
}

// ReadHandle issues view calls against one binding through the endpoint pool.
// Every read falls back across endpoints, including reads whose response
// fails to decode.
type ReadHandle struct {
	binding Binding
	pool    *endpoint.Pool
}

func (h *ReadHandle) Binding() Binding {
	return h.binding
}

// call packs method, runs it on the first endpoint that answers, and decodes
// the response into out.
func (h *ReadHandle) call(ctx context.Context, out any, method string, args ...any) error {
	contractABI := h.binding.ABI()
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("packing %s: %w", method, err)
	}

	to := h.binding.Address()
	msg := ethereum.CallMsg{To: &to, Data: data}

	return h.pool.Read(ctx, func(ctx context.Context, client endpoint.Client) error {
		raw, err := client.CallContract(ctx, msg, nil)
		if err != nil {
			return fmt.Errorf("calling %s: %w", method, err)
		}
		if err := contractABI.UnpackIntoInterface(out, method, raw); err != nil {
			return fmt.Errorf("decoding %s: %w", method, err)
		}
		return nil
	})
}

// PollCount returns the number of polls created. Poll ids run from 0 to count-1.
func (h *ReadHandle) PollCount(ctx context.Context) (*big.Int, error) {
	var count *big.Int
	if err := h.call(ctx, &count, "pollCount"); err != nil {
		return nil, err
	}
	return count, nil
}

// Poll returns the metadata of poll id.
func (h *ReadHandle) Poll(ctx context.Context, id *big.Int) (*Poll, error) {
	switch h.binding.(type) {
	case *ConfidentialBinding:
		var info confidentialPollInfo
		if err := h.call(ctx, &info, "getPollInfo", id); err != nil {
			return nil, err
		}
		poll := plainPollInfo{
			ID:       info.ID,
			Title:    info.Title,
			Options:  info.Options,
			Creator:  info.Creator,
			EndTime:  info.EndTime,
			IsActive: info.IsActive,
		}.poll()
		poll.ResultsDecrypted = info.ResultsDecrypted
		return poll, nil
	case *PlainBinding:
		var info plainPollInfo
		if err := h.call(ctx, &info, "getPollInfo", id); err != nil {
			return nil, err
		}
		poll := info.poll()
		poll.ResultsDecrypted = true
		return poll, nil
	default:
		panic(fmt.Sprintf("unknown binding type %T", h.binding))
	}
}

// Results returns the vote count per option of poll id. On the confidential
// deployment the call only succeeds after decryption.
func (h *ReadHandle) Results(ctx context.Context, id *big.Int) ([]uint64, error) {
	var raw []*big.Int
	if err := h.call(ctx, &raw, "getResults", id); err != nil {
		return nil, err
	}

	results := make([]uint64, len(raw))
	for i, count := range raw {
		if count.Sign() < 0 || !count.IsUint64() {
			return nil, fmt.Errorf("%w: option %d has %s", ErrResultOverflow, i, count)
		}
		results[i] = count.Uint64()
	}
	return results, nil
}

// HasVoted reports whether voter has voted in poll id.
func (h *ReadHandle) HasVoted(ctx context.Context, id *big.Int, voter common.Address) (bool, error) {
	var voted bool
	if err := h.call(ctx, &voted, "hasVoted", id, voter); err != nil {
		return false, err
	}
	return voted, nil
}
