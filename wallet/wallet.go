// Package wallet supplies the signing identity used for contract writes.
//
// The rest of the client only sees the Wallet interface: an account, a chain
// id and the ability to send one transaction. LocalWallet implements it with
// a local private key and its own RPC connection, building EIP-1559
// transactions.
package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/pokt-network/poktroll/pkg/polylog"
)

const (
	fallbackGasLimit  = 1_500_000
	fallbackTipCapWei = 2_000_000_000
)

// Wallet is a connected signer.
type Wallet interface {
	// Account returns the signing address and whether a wallet is connected.
	Account() (common.Address, bool)
	ChainID() *big.Int
	// SendTransaction signs and broadcasts a call of data to the contract at to.
	// It returns as soon as the node accepts the transaction.
	SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error)
}

// ethClient is the subset of *ethclient.Client a LocalWallet needs.
type ethClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// LocalWalletConfig contains configuration for creating a LocalWallet.
type LocalWalletConfig struct {
	RPCURL        string
	ChainID       uint64
	PrivateKeyHex string

	// GasLimitBufferPct is added on top of the node's gas estimate.
	GasLimitBufferPct uint64
	Logger            polylog.Logger
}

// LocalWallet signs with a local key and broadcasts through its own RPC client.
// Sends are serialized so consecutive transactions get consecutive nonces.
type LocalWallet struct {
	client    ethClient
	signer    Signer
	chainID   *big.Int
	bufferPct uint64
	logger    polylog.Logger

	sendMu sync.Mutex
}

// NewLocalWallet dials cfg.RPCURL and prepares a LocalWallet.
// A configured chain id that differs from the node's is logged and kept.
func NewLocalWallet(ctx context.Context, cfg LocalWalletConfig) (*LocalWallet, error) {
	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC: %w", err)
	}
	client := ethclient.NewClient(rpcClient)

	rpcChainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to fetch chain id: %w", err)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = rpcChainID.Uint64()
	} else if chainID != rpcChainID.Uint64() {
		cfg.Logger.Warn().
			Uint64("config_chain_id", chainID).
			Str("rpc_chain_id", rpcChainID.String()).
			Msg("Configured chain ID differs from RPC endpoint; using configured value")
	}

	signer, err := NewLocalECDSASignerFromHex(new(big.Int).SetUint64(chainID), cfg.PrivateKeyHex)
	if err != nil {
		client.Close()
		return nil, err
	}

	return newLocalWallet(client, signer, cfg.GasLimitBufferPct, cfg.Logger), nil
}

func newLocalWallet(client ethClient, signer Signer, bufferPct uint64, logger polylog.Logger) *LocalWallet {
	chainID, _ := signer.ChainID(context.Background())
	return &LocalWallet{
		client:    client,
		signer:    signer,
		chainID:   chainID,
		bufferPct: bufferPct,
		logger:    logger.With("component", "local_wallet"),
	}
}

func (w *LocalWallet) Account() (common.Address, bool) {
	return w.signer.From(), true
}

func (w *LocalWallet) ChainID() *big.Int {
	if w.chainID == nil {
		return nil
	}
	return new(big.Int).Set(w.chainID)
}

func (w *LocalWallet) SendTransaction(ctx context.Context, to common.Address, data []byte) (common.Hash, error) {
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	from := w.signer.From()

	nonce, err := w.client.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("fetch nonce: %w", err)
	}

	gasLimit := w.estimateGasLimit(ctx, from, to, data)
	tipCap, feeCap := w.suggestFees(ctx)

	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID:   w.ChainID(),
		Nonce:     nonce,
		To:        &to,
		Value:     big.NewInt(0),
		Gas:       gasLimit,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Data:      data,
	})

	signed, err := w.signer.SignTx(ctx, unsigned)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := w.client.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	w.logger.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Uint64("nonce", nonce).
		Uint64("gas_limit", gasLimit).
		Str("gas_tip_cap", tipCap.String()).
		Str("gas_fee_cap", feeCap.String()).
		Msg("Submitted transaction")

	return signed.Hash(), nil
}

// estimateGasLimit estimates gas and applies the configured buffer.
func (w *LocalWallet) estimateGasLimit(ctx context.Context, from, to common.Address, data []byte) uint64 {
	msg := ethereum.CallMsg{From: from, To: &to, Value: big.NewInt(0), Data: data}
	if est, err := w.client.EstimateGas(ctx, msg); err == nil {
		return est + est*w.bufferPct/100
	}
	w.logger.Warn().Uint64("fallback_gas_limit", fallbackGasLimit).Msg("Gas estimation failed, using fallback")
	return fallbackGasLimit
}

// suggestFees returns EIP-1559 tip and fee caps: fee cap is twice the base fee plus the tip.
func (w *LocalWallet) suggestFees(ctx context.Context) (*big.Int, *big.Int) {
	tipCap, err := w.client.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = big.NewInt(fallbackTipCapWei)
	}

	head, _ := w.client.HeaderByNumber(ctx, nil)
	if head != nil && head.BaseFee != nil {
		return tipCap, new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tipCap)
	}
	if price, err := w.client.SuggestGasPrice(ctx); err == nil && price != nil {
		return tipCap, price
	}
	return tipCap, new(big.Int).Add(big.NewInt(fallbackTipCapWei), tipCap)
}

// Close releases the wallet's RPC connection.
func (w *LocalWallet) Close() {
	if closer, ok := w.client.(interface{ Close() }); ok {
		closer.Close()
	}
}
