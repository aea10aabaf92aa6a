package contract

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/georgex8001/voting-fun/wallet"
)

// EncryptedInput is a ciphertext handle with its proof of correct encryption,
// as produced by the external encryption SDK.
type EncryptedInput struct {
	Handle [32]byte
	Proof  []byte
}

// Call is one contract method invocation ready to be packed.
type Call struct {
	Method string
	Args   []any
}

// WriteHandle sends transactions to one binding through the connected wallet.
type WriteHandle struct {
	binding Binding
	wallet  wallet.Wallet
	from    common.Address
}

func (h *WriteHandle) Binding() Binding {
	return h.binding
}

// From returns the signing account.
func (h *WriteHandle) From() common.Address {
	return h.from
}

// Pack encodes call against the binding's ABI.
func (h *WriteHandle) Pack(call Call) ([]byte, error) {
	data, err := h.binding.ABI().Pack(call.Method, call.Args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s: %w", call.Method, err)
	}
	return data, nil
}

// Transact packs call and sends it as exactly one transaction.
// It returns once the wallet has broadcast the transaction.
func (h *WriteHandle) Transact(ctx context.Context, call Call) (common.Hash, error) {
	data, err := h.Pack(call)
	if err != nil {
		return common.Hash{}, err
	}
	return h.wallet.SendTransaction(ctx, h.binding.Address(), data)
}

// CreatePollCall builds a createPoll call. The confidential deployment needs
// one encrypted zero per option to initialise its encrypted tallies.
func (h *WriteHandle) CreatePollCall(title string, options []string, duration time.Duration, encryptedZeros []EncryptedInput) (Call, error) {
	seconds := big.NewInt(int64(duration / time.Second))

	switch h.binding.(type) {
	case *ConfidentialBinding:
		if len(encryptedZeros) != len(options) {
			return Call{}, fmt.Errorf("%w: need %d encrypted zeros, got %d", ErrEncryptedInputRequired, len(options), len(encryptedZeros))
		}
		handles := make([][32]byte, len(encryptedZeros))
		proofs := make([][]byte, len(encryptedZeros))
		for i, input := range encryptedZeros {
			handles[i] = input.Handle
			proofs[i] = input.Proof
		}
		return Call{Method: "createPoll", Args: []any{title, options, seconds, handles, proofs}}, nil
	case *PlainBinding:
		return Call{Method: "createPoll", Args: []any{title, options, seconds}}, nil
	default:
		panic(fmt.Sprintf("unknown binding type %T", h.binding))
	}
}

// VoteCall builds a vote call. The confidential deployment takes the encrypted
// option index; the plain deployment takes option directly.
func (h *WriteHandle) VoteCall(pollID *big.Int, option uint64, encryptedOption *EncryptedInput) (Call, error) {
	switch h.binding.(type) {
	case *ConfidentialBinding:
		if encryptedOption == nil {
			return Call{}, ErrEncryptedInputRequired
		}
		return Call{Method: "vote", Args: []any{pollID, encryptedOption.Handle, encryptedOption.Proof}}, nil
	case *PlainBinding:
		return Call{Method: "vote", Args: []any{pollID, new(big.Int).SetUint64(option)}}, nil
	default:
		panic(fmt.Sprintf("unknown binding type %T", h.binding))
	}
}

func (h *WriteHandle) RequestDecryptionCall(pollID *big.Int) (Call, error) {
	return h.confidentialOnly("requestDecryption", pollID)
}

func (h *WriteHandle) RetryDecryptionCall(pollID *big.Int) (Call, error) {
	return h.confidentialOnly("retryDecryption", pollID)
}

// EndPollCall builds an endPoll call. Plain polls end on their own at endTime.
func (h *WriteHandle) EndPollCall(pollID *big.Int) (Call, error) {
	return h.confidentialOnly("endPoll", pollID)
}

func (h *WriteHandle) CancelExpiredPollCall(pollID *big.Int) (Call, error) {
	return h.confidentialOnly("cancelExpiredPoll", pollID)
}

func (h *WriteHandle) confidentialOnly(method string, pollID *big.Int) (Call, error) {
	switch h.binding.(type) {
	case *ConfidentialBinding:
		return Call{Method: method, Args: []any{pollID}}, nil
	case *PlainBinding:
		return Call{}, fmt.Errorf("%w: %s on %s contract", ErrUnsupportedByBinding, method, h.binding.Kind())
	default:
		panic(fmt.Sprintf("unknown binding type %T", h.binding))
	}
}
