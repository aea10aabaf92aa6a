package contract

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// DecryptionRequested is a decoded DecryptionRequested event.
type DecryptionRequested struct {
	RequestID *big.Int
	PollID    *big.Int
	Timestamp time.Time
	TxHash    common.Hash
	LogIndex  uint
}

// PollCreated is a decoded PollCreated event.
type PollCreated struct {
	PollID  *big.Int
	Title   string
	Creator common.Address
	EndTime time.Time
}

// Field names follow the ABI argument names because abi.ParseTopics matches
// indexed arguments by name, not by tag.
type decryptionRequestedLog struct {
	RequestId *big.Int
	PollId    *big.Int
	Timestamp *big.Int
}

type pollCreatedLog struct {
	PollId  *big.Int
	Title   string
	Creator common.Address
	EndTime *big.Int
}

// ParseDecryptionRequested finds the DecryptionRequested event for pollID in
// receipt. Only logs emitted by the binding's own address are considered.
// A receipt without such an event yields ErrMissingRequestID.
func ParseDecryptionRequested(b Binding, receipt *types.Receipt, pollID *big.Int) (*DecryptionRequested, error) {
	if _, ok := b.(*ConfidentialBinding); !ok {
		return nil, fmt.Errorf("%w: DecryptionRequested on %s contract", ErrUnsupportedByBinding, b.Kind())
	}

	var found *DecryptionRequested
	err := forEachEvent(b, receipt, "DecryptionRequested", func() any { return new(decryptionRequestedLog) }, func(log *types.Log, decoded any) bool {
		ev := decoded.(*decryptionRequestedLog)
		if ev.PollId == nil || ev.PollId.Cmp(pollID) != 0 {
			return false
		}
		found = &DecryptionRequested{
			RequestID: ev.RequestId,
			PollID:    ev.PollId,
			Timestamp: time.Unix(ev.Timestamp.Int64(), 0),
			TxHash:    log.TxHash,
			LogIndex:  log.Index,
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w %s in tx %s", ErrMissingRequestID, pollID, receipt.TxHash.Hex())
	}
	return found, nil
}

// ParsePollCreated returns the first PollCreated event emitted by the binding
// in receipt.
func ParsePollCreated(b Binding, receipt *types.Receipt) (*PollCreated, error) {
	var found *PollCreated
	err := forEachEvent(b, receipt, "PollCreated", func() any { return new(pollCreatedLog) }, func(_ *types.Log, decoded any) bool {
		ev := decoded.(*pollCreatedLog)
		found = &PollCreated{
			PollID:  ev.PollId,
			Title:   ev.Title,
			Creator: ev.Creator,
			EndTime: time.Unix(ev.EndTime.Int64(), 0),
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: PollCreated in tx %s", ErrMissingEvent, receipt.TxHash.Hex())
	}
	return found, nil
}

// forEachEvent decodes every log of event name emitted by b into a fresh
// value from newOut and hands it to match until match returns true.
// Logs that fail to decode are skipped.
func forEachEvent(
	b Binding,
	receipt *types.Receipt,
	name string,
	newOut func() any,
	match func(log *types.Log, decoded any) bool,
) error {
	contractABI := b.ABI()
	event, ok := contractABI.Events[name]
	if !ok {
		return fmt.Errorf("%w: event %s on %s contract", ErrUnsupportedByBinding, name, b.Kind())
	}

	var indexed abi.Arguments
	for _, input := range event.Inputs {
		if input.Indexed {
			indexed = append(indexed, input)
		}
	}

	for _, log := range receipt.Logs {
		if log == nil || log.Address != b.Address() {
			continue
		}
		if len(log.Topics) != len(indexed)+1 || log.Topics[0] != event.ID {
			continue
		}

		out := newOut()
		if err := contractABI.UnpackIntoInterface(out, name, log.Data); err != nil {
			continue
		}
		if err := abi.ParseTopics(out, indexed, log.Topics[1:]); err != nil {
			continue
		}
		if match(log, out) {
			return nil
		}
	}
	return nil
}
