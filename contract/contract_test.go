package contract

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/georgex8001/voting-fun/endpoint"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/internal/chaintest"
)

var (
	confidentialAddress = common.HexToAddress("0xC6bb1eb417b4C0AC5D7E411d6b801608b1064811")
	plainAddress        = common.HexToAddress("0x1032d41F45c22b7dA427f234A0F418c02DA0f3A0")
	testURLs            = []string{"http://rpc-1", "http://rpc-2", "http://rpc-3"}
)

// statusStub is a StatusSource the test can flip.
type statusStub struct {
	status health.Status
}

func (s *statusStub) Status() health.Status {
	return s.status
}

type testEnv struct {
	router *Router
	status *statusStub
	chain  *chaintest.Chain
}

func newTestEnv(t *testing.T, status health.Status, withWallet bool, down ...string) *testEnv {
	t.Helper()

	confidential, err := NewConfidentialBinding(confidentialAddress)
	require.NoError(t, err)
	plain, err := NewPlainBinding(plainAddress)
	require.NoError(t, err)

	chain := chaintest.New(11155111)
	chain.Deploy(confidentialAddress, confidential.ABI(), true)
	chain.Deploy(plainAddress, plain.ABI(), false)

	cfg := RouterConfig{
		Status:       &statusStub{status: status},
		Confidential: confidential,
		Plain:        plain,
		Pool:         chaintest.NewPool(t, chain, testURLs, down...),
		Logger:       polyzero.NewLogger(),
	}
	if withWallet {
		cfg.Wallet = chain.Wallet()
	}

	return &testEnv{
		router: NewRouter(cfg),
		status: cfg.Status.(*statusStub),
		chain:  chain,
	}
}

func TestRouter_ResolveBinding(t *testing.T) {
	tests := []struct {
		status health.Status
		want   Kind
	}{
		{status: health.StatusUnknown, want: KindPlain},
		{status: health.StatusDown, want: KindPlain},
		{status: health.StatusUp, want: KindConfidential},
	}

	for _, test := range tests {
		t.Run(test.status.String(), func(t *testing.T) {
			env := newTestEnv(t, test.status, true)

			binding := env.router.ResolveBinding()
			require.Equal(t, test.want, binding.Kind())
			require.Equal(t, test.want, env.router.ReadHandle().Binding().Kind())

			writer, err := env.router.WriteHandle()
			require.NoError(t, err)
			require.Equal(t, test.want, writer.Binding().Kind())
		})
	}
}

func TestRouter_FollowsStatusChanges(t *testing.T) {
	c := require.New(t)
	env := newTestEnv(t, health.StatusUnknown, false)

	held := env.router.ReadHandle()
	c.Equal(KindPlain, held.Binding().Kind())

	env.status.status = health.StatusUp
	c.Equal(KindConfidential, env.router.ReadHandle().Binding().Kind())

	env.status.status = health.StatusDown
	c.Equal(KindPlain, env.router.ReadHandle().Binding().Kind())

	// A handle acquired earlier keeps its binding.
	env.status.status = health.StatusUp
	c.Equal(KindPlain, held.Binding().Kind())
}

func TestRouter_WriteHandleWithoutWallet(t *testing.T) {
	c := require.New(t)
	env := newTestEnv(t, health.StatusUp, false)

	_, err := env.router.WriteHandle()
	c.ErrorIs(err, ErrNoSigner)

	env.router.SetWallet(env.chain.Wallet())
	_, err = env.router.WriteHandle()
	c.NoError(err)

	env.router.SetWallet(nil)
	_, err = env.router.WriteHandle()
	c.ErrorIs(err, ErrNoSigner)
}

func TestReadHandle_Poll(t *testing.T) {
	tests := []struct {
		name          string
		status        health.Status
		address       common.Address
		decrypted     bool
		wantDecrypted bool
	}{
		{
			name:          "plain polls always expose results",
			status:        health.StatusDown,
			address:       plainAddress,
			wantDecrypted: true,
		},
		{
			name:          "confidential poll before decryption",
			status:        health.StatusUp,
			address:       confidentialAddress,
			wantDecrypted: false,
		},
		{
			name:          "confidential poll after decryption",
			status:        health.StatusUp,
			address:       confidentialAddress,
			decrypted:     true,
			wantDecrypted: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)
			env := newTestEnv(t, test.status, false)

			endTime := time.Unix(1_900_000_000, 0)
			id := env.chain.AddPoll(test.address, chaintest.Poll{
				Title:     "Lunch",
				Options:   []string{"pizza", "sushi"},
				Creator:   chaintest.Account,
				EndTime:   endTime.Unix(),
				Active:    true,
				Decrypted: test.decrypted,
			})

			reader := env.router.ReadHandle()
			count, err := reader.PollCount(context.Background())
			c.NoError(err)
			c.Zero(count.Cmp(big.NewInt(1)))

			poll, err := reader.Poll(context.Background(), big.NewInt(id))
			c.NoError(err)
			c.Zero(poll.ID.Cmp(big.NewInt(id)))
			c.Equal("Lunch", poll.Title)
			c.Equal([]string{"pizza", "sushi"}, poll.Options)
			c.Equal(chaintest.Account, poll.Creator)
			c.True(poll.EndTime.Equal(endTime))
			c.True(poll.IsActive)
			c.Equal(test.wantDecrypted, poll.ResultsDecrypted)
			c.False(poll.Expired(endTime.Add(-time.Second)))
			c.True(poll.Expired(endTime))
		})
	}
}

// rawCallClient answers every eth_call with the same bytes.
type rawCallClient struct {
	chaintest.DownClient
	output []byte
}

func (c rawCallClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return c.output, nil
}

// The plain getPollInfo returns six values; decoding must not expect the
// confidential decryption flag.
func TestReadHandle_PollDecodesPlainOutputs(t *testing.T) {
	c := require.New(t)

	plain, err := NewPlainBinding(plainAddress)
	c.NoError(err)
	confidential, err := NewConfidentialBinding(confidentialAddress)
	c.NoError(err)

	outputs := plain.ABI().Methods["getPollInfo"].Outputs
	c.Len(outputs, 6)
	raw, err := outputs.Pack(
		big.NewInt(0),
		"Lunch",
		[]string{"pizza", "sushi"},
		chaintest.Account,
		big.NewInt(1_900_000_000),
		true,
	)
	c.NoError(err)

	pool, err := endpoint.NewPool(endpoint.PoolConfig{
		URLs: []string{"http://rpc-1"},
		Dialer: func(context.Context, string) (endpoint.Client, error) {
			return rawCallClient{output: raw}, nil
		},
		Logger: polyzero.NewLogger(),
	})
	c.NoError(err)

	router := NewRouter(RouterConfig{
		Status:       &statusStub{status: health.StatusDown},
		Confidential: confidential,
		Plain:        plain,
		Pool:         pool,
		Logger:       polyzero.NewLogger(),
	})

	reader := router.ReadHandle()
	c.Equal(KindPlain, reader.Binding().Kind())

	poll, err := reader.Poll(context.Background(), big.NewInt(0))
	c.NoError(err)
	c.Equal("Lunch", poll.Title)
	c.Equal([]string{"pizza", "sushi"}, poll.Options)
	c.Equal(chaintest.Account, poll.Creator)
	c.True(poll.IsActive)
	c.True(poll.ResultsDecrypted)
}

func TestReadHandle_ResultsAndHasVoted(t *testing.T) {
	c := require.New(t)
	env := newTestEnv(t, health.StatusDown, false)

	id := env.chain.AddPoll(plainAddress, chaintest.Poll{
		Options: []string{"a", "b", "c"},
		Results: []uint64{4, 0, 9},
		Voters:  map[common.Address]bool{chaintest.Account: true},
		Active:  true,
	})

	reader := env.router.ReadHandle()
	results, err := reader.Results(context.Background(), big.NewInt(id))
	c.NoError(err)
	c.Equal([]uint64{4, 0, 9}, results)

	voted, err := reader.HasVoted(context.Background(), big.NewInt(id), chaintest.Account)
	c.NoError(err)
	c.True(voted)

	voted, err = reader.HasVoted(context.Background(), big.NewInt(id), common.HexToAddress("0xbeef"))
	c.NoError(err)
	c.False(voted)
}

func TestReadHandle_FallsBackAcrossEndpoints(t *testing.T) {
	c := require.New(t)
	env := newTestEnv(t, health.StatusDown, false, "http://rpc-1", "http://rpc-2")
	env.chain.AddPoll(plainAddress, chaintest.Poll{Options: []string{"x"}})

	count, err := env.router.ReadHandle().PollCount(context.Background())
	c.NoError(err)
	c.Zero(count.Cmp(big.NewInt(1)))
}

func TestReadHandle_UndecodableResponseFails(t *testing.T) {
	c := require.New(t)

	env := newTestEnv(t, health.StatusDown, false)
	missing, err := NewPlainBinding(common.HexToAddress("0xdead"))
	c.NoError(err)

	_, err = env.router.ReadHandleFor(missing).PollCount(context.Background())
	c.Error(err)
}

func TestWriteHandle_CallBuilders(t *testing.T) {
	pollID := big.NewInt(3)
	encrypted := &EncryptedInput{Handle: chaintest.EncodeOption(1), Proof: []byte{0x01}}

	tests := []struct {
		name       string
		status     health.Status
		build      func(h *WriteHandle) (Call, error)
		wantMethod string
		wantErr    error
	}{
		{
			name:   "plain create poll",
			status: health.StatusDown,
			build: func(h *WriteHandle) (Call, error) {
				return h.CreatePollCall("t", []string{"a", "b"}, time.Hour, nil)
			},
			wantMethod: "createPoll",
		},
		{
			name:   "confidential create poll needs one encrypted zero per option",
			status: health.StatusUp,
			build: func(h *WriteHandle) (Call, error) {
				return h.CreatePollCall("t", []string{"a", "b"}, time.Hour, []EncryptedInput{{}})
			},
			wantErr: ErrEncryptedInputRequired,
		},
		{
			name:   "confidential create poll",
			status: health.StatusUp,
			build: func(h *WriteHandle) (Call, error) {
				return h.CreatePollCall("t", []string{"a", "b"}, time.Hour, []EncryptedInput{{}, {}})
			},
			wantMethod: "createPoll",
		},
		{
			name:   "plain vote",
			status: health.StatusDown,
			build: func(h *WriteHandle) (Call, error) {
				return h.VoteCall(pollID, 1, nil)
			},
			wantMethod: "vote",
		},
		{
			name:   "confidential vote without encrypted option",
			status: health.StatusUp,
			build: func(h *WriteHandle) (Call, error) {
				return h.VoteCall(pollID, 1, nil)
			},
			wantErr: ErrEncryptedInputRequired,
		},
		{
			name:   "confidential vote",
			status: health.StatusUp,
			build: func(h *WriteHandle) (Call, error) {
				return h.VoteCall(pollID, 1, encrypted)
			},
			wantMethod: "vote",
		},
		{
			name:       "confidential request decryption",
			status:     health.StatusUp,
			build:      func(h *WriteHandle) (Call, error) { return h.RequestDecryptionCall(pollID) },
			wantMethod: "requestDecryption",
		},
		{
			name:    "plain request decryption",
			status:  health.StatusDown,
			build:   func(h *WriteHandle) (Call, error) { return h.RequestDecryptionCall(pollID) },
			wantErr: ErrUnsupportedByBinding,
		},
		{
			name:    "plain retry decryption",
			status:  health.StatusDown,
			build:   func(h *WriteHandle) (Call, error) { return h.RetryDecryptionCall(pollID) },
			wantErr: ErrUnsupportedByBinding,
		},
		{
			name:    "plain end poll",
			status:  health.StatusDown,
			build:   func(h *WriteHandle) (Call, error) { return h.EndPollCall(pollID) },
			wantErr: ErrUnsupportedByBinding,
		},
		{
			name:    "plain cancel expired poll",
			status:  health.StatusDown,
			build:   func(h *WriteHandle) (Call, error) { return h.CancelExpiredPollCall(pollID) },
			wantErr: ErrUnsupportedByBinding,
		},
		{
			name:       "confidential cancel expired poll",
			status:     health.StatusUp,
			build:      func(h *WriteHandle) (Call, error) { return h.CancelExpiredPollCall(pollID) },
			wantMethod: "cancelExpiredPoll",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)
			env := newTestEnv(t, test.status, true)

			writer, err := env.router.WriteHandle()
			c.NoError(err)

			call, err := test.build(writer)
			if test.wantErr != nil {
				c.ErrorIs(err, test.wantErr)
				return
			}
			c.NoError(err)
			c.Equal(test.wantMethod, call.Method)

			// Every built call must pack against its own binding.
			_, err = writer.Pack(call)
			c.NoError(err)
		})
	}
}

func TestParseDecryptionRequested(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, health.StatusUp, true)

	env.chain.AddPoll(confidentialAddress, chaintest.Poll{Options: []string{"a"}})
	id := env.chain.AddPoll(confidentialAddress, chaintest.Poll{Options: []string{"a", "b"}})

	writer, err := env.router.WriteHandle()
	c.NoError(err)
	call, err := writer.RequestDecryptionCall(big.NewInt(id))
	c.NoError(err)
	hash, err := writer.Transact(ctx, call)
	c.NoError(err)

	receipt, err := env.chain.TransactionReceipt(ctx, hash)
	c.NoError(err)

	event, err := ParseDecryptionRequested(writer.Binding(), receipt, big.NewInt(id))
	c.NoError(err)
	c.Zero(event.RequestID.Cmp(big.NewInt(1)))
	c.Zero(event.PollID.Cmp(big.NewInt(id)))
	c.Equal(hash, event.TxHash)
	c.False(event.Timestamp.IsZero())

	// The same receipt carries no event for another poll.
	_, err = ParseDecryptionRequested(writer.Binding(), receipt, big.NewInt(0))
	c.ErrorIs(err, ErrMissingRequestID)

	// Logs from other addresses are ignored.
	foreign := *receipt
	foreign.Logs = nil
	for _, log := range receipt.Logs {
		moved := *log
		moved.Address = plainAddress
		foreign.Logs = append(foreign.Logs, &moved)
	}
	_, err = ParseDecryptionRequested(writer.Binding(), &foreign, big.NewInt(id))
	c.ErrorIs(err, ErrMissingRequestID)

	_, err = ParseDecryptionRequested(writer.Binding(), &types.Receipt{}, big.NewInt(id))
	c.ErrorIs(err, ErrMissingRequestID)

	_, plain := env.router.Bindings()
	_, err = ParseDecryptionRequested(plain, receipt, big.NewInt(id))
	c.ErrorIs(err, ErrUnsupportedByBinding)
}

func TestParsePollCreated(t *testing.T) {
	c := require.New(t)
	ctx := context.Background()
	env := newTestEnv(t, health.StatusDown, true)

	env.chain.AddPoll(plainAddress, chaintest.Poll{Options: []string{"a"}})

	writer, err := env.router.WriteHandle()
	c.NoError(err)
	call, err := writer.CreatePollCall("Best editor", []string{"vim", "emacs"}, time.Hour, nil)
	c.NoError(err)
	hash, err := writer.Transact(ctx, call)
	c.NoError(err)
	receipt, err := env.chain.TransactionReceipt(ctx, hash)
	c.NoError(err)

	created, err := ParsePollCreated(writer.Binding(), receipt)
	c.NoError(err)
	c.Zero(created.PollID.Cmp(big.NewInt(1)))
	c.Equal("Best editor", created.Title)
	c.Equal(chaintest.Account, created.Creator)
	c.True(created.EndTime.After(time.Now()))

	_, err = ParsePollCreated(writer.Binding(), &types.Receipt{})
	c.ErrorIs(err, ErrMissingEvent)
}
