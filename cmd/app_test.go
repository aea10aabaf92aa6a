package main

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	configpkg "github.com/georgex8001/voting-fun/config"
	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/decryption"
	"github.com/georgex8001/voting-fun/health"
	"github.com/georgex8001/voting-fun/internal/chaintest"
	"github.com/georgex8001/voting-fun/polls"
	"github.com/georgex8001/voting-fun/tx"
)

var (
	confidentialAddress = common.HexToAddress("0xC6bb1eb417b4C0AC5D7E411d6b801608b1064811")
	plainAddress        = common.HexToAddress("0x1032d41F45c22b7dA427f234A0F418c02DA0f3A0")
)

// newTestApp wires an app against a simulated chain. gatewayUp decides what
// the health probe reports.
func newTestApp(t *testing.T, gatewayUp bool, withWallet bool) (*app, *chaintest.Chain) {
	t.Helper()
	logger := polyzero.NewLogger()

	confidential, err := contract.NewConfidentialBinding(confidentialAddress)
	require.NoError(t, err)
	plain, err := contract.NewPlainBinding(plainAddress)
	require.NoError(t, err)

	chain := chaintest.New(11155111)
	chain.Deploy(confidentialAddress, confidential.ABI(), true)
	chain.Deploy(plainAddress, plain.ABI(), false)

	monitor := health.NewMonitor(health.MonitorConfig{
		Prober: health.ProberFunc(func(context.Context) error {
			if gatewayUp {
				return nil
			}
			return errors.New("gateway unreachable")
		}),
		Logger: logger,
	})

	pool := chaintest.NewPool(t, chain, []string{"http://rpc-1"})
	routerConfig := contract.RouterConfig{
		Status:       monitor,
		Confidential: confidential,
		Plain:        plain,
		Pool:         pool,
		Logger:       logger,
	}

	a := &app{
		config: configpkg.ClientConfig{
			Network: configpkg.NetworkConfig{GatewayURL: "http://gateway.test"},
		},
		logger:        logger,
		gatewayHealth: gatewayHealth{monitor: monitor},
		pool:          pool,
	}
	if withWallet {
		a.signer = chain.Wallet()
		routerConfig.Wallet = a.signer
	}
	a.router = contract.NewRouter(routerConfig)
	a.submitter = tx.NewSubmitter(tx.SubmitterConfig{
		Pool:         pool,
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
		Logger:       logger,
	})
	a.workflow = decryption.NewWorkflow(decryption.WorkflowConfig{
		Router:           a.router,
		Submitter:        a.submitter,
		CallbackInterval: time.Millisecond,
		CallbackAttempts: 5,
		Logger:           logger,
	})
	a.polls = polls.NewService(polls.ServiceConfig{
		Router:    a.router,
		Submitter: a.submitter,
		CacheTTL:  time.Minute,
		Workers:   2,
		Logger:    logger,
	})
	t.Cleanup(a.polls.Close)

	return a, chain
}

func TestApp_Run(t *testing.T) {
	tests := []struct {
		name       string
		gatewayUp  bool
		withWallet bool
		setup      func(chain *chaintest.Chain)
		args       []string
		wantErr    error
		wantOutput []string
	}{
		{
			name:      "status reports the plain contract while the gateway is down",
			gatewayUp: false,
			args:      []string{"status"},
			wantOutput: []string{
				"gateway:  down (http://gateway.test)",
				"contract: plain " + plainAddress.Hex(),
				"account:  none (read-only)",
			},
		},
		{
			name:       "status reports the confidential contract and account",
			gatewayUp:  true,
			withWallet: true,
			args:       []string{"status"},
			wantOutput: []string{
				"gateway:  up",
				"contract: confidential " + confidentialAddress.Hex(),
				"account:  " + chaintest.Account.Hex(),
			},
		},
		{
			name: "polls lists the deployment in use",
			setup: func(chain *chaintest.Chain) {
				chain.AddPoll(plainAddress, chaintest.Poll{
					Title:   "lunch",
					Options: []string{"pizza", "sushi"},
					EndTime: time.Now().Add(time.Hour).Unix(),
					Active:  true,
				})
				chain.AddPoll(confidentialAddress, chaintest.Poll{
					Title:   "secret ballot",
					Options: []string{"yes", "no"},
					EndTime: time.Now().Add(time.Hour).Unix(),
					Active:  true,
				})
			},
			args:       []string{"polls"},
			wantOutput: []string{"ID", "lunch", "open"},
		},
		{
			name:       "polls with no polls",
			args:       []string{"polls"},
			wantOutput: []string{"no polls"},
		},
		{
			name:       "poll shows tallies and voted flag",
			withWallet: true,
			setup: func(chain *chaintest.Chain) {
				chain.AddPoll(plainAddress, chaintest.Poll{
					Title:   "lunch",
					Options: []string{"pizza", "sushi"},
					EndTime: time.Now().Add(time.Hour).Unix(),
					Active:  true,
					Results: []uint64{3, 5},
				})
			},
			args:       []string{"poll", "0"},
			wantOutput: []string{"poll 0: lunch", "[0]", "pizza", "sushi", "voted:   false"},
		},
		{
			name:       "create on the plain contract",
			withWallet: true,
			args:       []string{"create", "1h", "lunch", "pizza", "sushi"},
			wantOutput: []string{`created poll 0 "lunch"`},
		},
		{
			name:       "vote on the plain contract",
			withWallet: true,
			setup: func(chain *chaintest.Chain) {
				chain.AddPoll(plainAddress, chaintest.Poll{
					Title:   "lunch",
					Options: []string{"pizza", "sushi"},
					EndTime: time.Now().Add(time.Hour).Unix(),
					Active:  true,
				})
			},
			args:       []string{"vote", "0", "1"},
			wantOutput: []string{"voted for option 1 in poll 0"},
		},
		{
			name:       "decrypt a finished confidential poll",
			gatewayUp:  true,
			withWallet: true,
			setup: func(chain *chaintest.Chain) {
				chain.AddPoll(confidentialAddress, chaintest.Poll{
					Title:   "secret ballot",
					Options: []string{"yes", "no"},
					EndTime: time.Now().Add(-time.Hour).Unix(),
					Results: []uint64{6, 2},
				})
				chain.OnDecryptionRequested = func(address common.Address, pollID, _ *big.Int) {
					chain.MarkDecrypted(address, pollID.Int64(), []uint64{6, 2})
				}
			},
			args:       []string{"decrypt", "0"},
			wantOutput: []string{"requesting", "waiting_callback", "100% success", "yes", "no"},
		},
		{
			name:       "writes without a wallet",
			args:       []string{"vote", "0", "1"},
			wantErr:    contract.ErrNoSigner,
			withWallet: false,
			setup: func(chain *chaintest.Chain) {
				chain.AddPoll(plainAddress, chaintest.Poll{
					Title:   "lunch",
					Options: []string{"pizza", "sushi"},
					EndTime: time.Now().Add(time.Hour).Unix(),
					Active:  true,
				})
			},
		},
		{
			name:    "unknown command",
			args:    []string{"tally"},
			wantErr: errUnknownCommand,
		},
		{
			name:    "missing arguments",
			args:    []string{"vote", "0"},
			wantErr: errUsage,
		},
		{
			name:    "create needs two options",
			args:    []string{"create", "1h", "lunch", "pizza"},
			wantErr: errUsage,
		},
		{
			name:    "bad poll id",
			args:    []string{"poll", "first"},
			wantErr: errInvalidPollID,
		},
		{
			name:    "negative poll id",
			args:    []string{"end", "-1"},
			wantErr: errInvalidPollID,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)

			a, chain := newTestApp(t, test.gatewayUp, test.withWallet)
			if test.setup != nil {
				test.setup(chain)
			}

			var out bytes.Buffer
			err := a.run(context.Background(), &out, test.args)
			if test.wantErr != nil {
				c.ErrorIs(err, test.wantErr)
				return
			}
			c.NoError(err)
			for _, want := range test.wantOutput {
				c.Contains(out.String(), want)
			}
		})
	}
}

func TestApp_WatchStopsOnCancel(t *testing.T) {
	c := require.New(t)

	a, _ := newTestApp(t, true, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- a.run(ctx, &bytes.Buffer{}, nil)
	}()

	c.Eventually(func() bool {
		return a.monitor.Status() == health.StatusUp
	}, time.Second, 5*time.Millisecond)
	c.Equal(contract.KindConfidential, a.router.ResolveBinding().Kind())

	cancel()
	select {
	case err := <-done:
		c.NoError(err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return after cancellation")
	}
}

func TestParsePollID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "0", want: 0},
		{raw: "42", want: 42},
		{raw: "-3", wantErr: true},
		{raw: "0x10", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.raw, func(t *testing.T) {
			c := require.New(t)
			id, err := parsePollID(test.raw)
			if test.wantErr {
				c.ErrorIs(err, errInvalidPollID)
				return
			}
			c.NoError(err)
			c.Equal(test.want, id.Int64())
		})
	}
}
