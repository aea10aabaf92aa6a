package main

import (
	"context"
	"fmt"

	"github.com/pokt-network/poktroll/pkg/polylog"

	configpkg "github.com/georgex8001/voting-fun/config"
	"github.com/georgex8001/voting-fun/contract"
	"github.com/georgex8001/voting-fun/decryption"
	"github.com/georgex8001/voting-fun/endpoint"
	"github.com/georgex8001/voting-fun/polls"
	"github.com/georgex8001/voting-fun/relayer"
	"github.com/georgex8001/voting-fun/tx"
	"github.com/georgex8001/voting-fun/wallet"
)

// app holds every component of the client. It is built once by newApp and
// shared by all commands.
type app struct {
	config configpkg.ClientConfig
	logger polylog.Logger

	gatewayHealth

	pool *endpoint.Pool
	// signer is nil when no private key is configured. localWallet is the
	// same wallet when newApp created it and needs closing.
	signer      wallet.Wallet
	localWallet *wallet.LocalWallet

	router    *contract.Router
	submitter *tx.Submitter
	relayer   *relayer.Client
	workflow  *decryption.Workflow
	polls     *polls.Service
}

func newApp(ctx context.Context, logger polylog.Logger, config configpkg.ClientConfig) (*app, error) {
	a := &app{config: config, logger: logger}

	a.gatewayHealth = setupGatewayHealth(ctx, logger, config)

	pool, err := endpoint.NewPool(endpoint.PoolConfig{
		URLs:           config.Network.RPCURLs,
		RequestTimeout: config.Network.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create endpoint pool: %w", err)
	}
	a.pool = pool

	confidential, err := contract.NewConfidentialBinding(config.Contracts.ConfidentialAddress())
	if err != nil {
		a.Close()
		return nil, err
	}
	plain, err := contract.NewPlainBinding(config.Contracts.PlainAddress())
	if err != nil {
		a.Close()
		return nil, err
	}

	routerConfig := contract.RouterConfig{
		Status:       a.monitor,
		Confidential: confidential,
		Plain:        plain,
		Pool:         pool,
		Logger:       logger,
	}
	if config.Wallet.Enabled() {
		w, err := wallet.NewLocalWallet(ctx, wallet.LocalWalletConfig{
			RPCURL:            config.Wallet.RPCURL,
			ChainID:           config.Network.ChainID,
			PrivateKeyHex:     config.Wallet.PrivateKeyHex,
			GasLimitBufferPct: config.Wallet.GasLimitBufferPct,
			Logger:            logger,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to set up wallet: %w", err)
		}
		a.signer, a.localWallet = w, w
		routerConfig.Wallet = w
	} else {
		logger.Info().Msg("No private key configured; running read-only")
	}
	a.router = contract.NewRouter(routerConfig)

	a.submitter = tx.NewSubmitter(tx.SubmitterConfig{
		Pool:         pool,
		PollInterval: config.Submitter.PollInterval,
		MaxAttempts:  config.Submitter.MaxAttempts,
		Logger:       logger,
	})

	a.relayer = relayer.NewClient(relayer.ClientConfig{
		BaseURL:   config.Network.RelayerURL,
		ChainID:   config.Network.ChainID,
		Timeout:   config.Network.RequestTimeout,
		RateLimit: config.Decryption.RelayerRateLimit,
		Logger:    logger,
	})

	a.workflow = decryption.NewWorkflow(decryption.WorkflowConfig{
		Router:           a.router,
		Submitter:        a.submitter,
		Relayer:          a.relayer,
		RelayerInterval:  config.Decryption.RelayerPollInterval,
		RelayerAttempts:  config.Decryption.RelayerMaxAttempts,
		CallbackInterval: config.Decryption.CallbackPollInterval,
		CallbackAttempts: config.Decryption.CallbackMaxAttempts,
		Logger:           logger,
	})

	// Encrypted inputs come from the gateway's client SDK, which this binary
	// does not embed. Confidential creates and votes report that clearly.
	a.polls = polls.NewService(polls.ServiceConfig{
		Router:    a.router,
		Submitter: a.submitter,
		CacheTTL:  config.Cache.PollTTL,
		Workers:   config.Cache.Workers,
		Logger:    logger,
	})

	return a, nil
}

// Close releases every component that was created. It is safe on a
// partially built app.
func (a *app) Close() {
	if a.polls != nil {
		a.polls.Close()
	}
	if a.localWallet != nil {
		a.localWallet.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.gatewayHealth.Close(a.logger)
}
