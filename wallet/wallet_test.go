package wallet

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "40af4e7e1b311c76a573610fe115cd2adf1eeade709cd77ca31ad4472509d388"

type fakeEthClient struct {
	nonce       uint64
	gasEstimate uint64
	estimateErr error
	tipCap      *big.Int
	baseFee     *big.Int
	gasPrice    *big.Int
	sendErr     error
	sent        []*types.Transaction
}

func (f *fakeEthClient) ChainID(context.Context) (*big.Int, error) { return big.NewInt(11155111), nil }

func (f *fakeEthClient) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeEthClient) SuggestGasTipCap(context.Context) (*big.Int, error) {
	if f.tipCap == nil {
		return nil, errors.New("unsupported")
	}
	return f.tipCap, nil
}

func (f *fakeEthClient) SuggestGasPrice(context.Context) (*big.Int, error) {
	if f.gasPrice == nil {
		return nil, errors.New("unsupported")
	}
	return f.gasPrice, nil
}

func (f *fakeEthClient) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gasEstimate, f.estimateErr
}

func (f *fakeEthClient) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func (f *fakeEthClient) SendTransaction(_ context.Context, tx *types.Transaction) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	return nil
}

func newTestWallet(t *testing.T, client *fakeEthClient) *LocalWallet {
	signer, err := NewLocalECDSASignerFromHex(big.NewInt(11155111), "0x"+testKeyHex)
	require.NoError(t, err)
	return newLocalWallet(client, signer, 20, polyzero.NewLogger())
}

func TestLocalWallet_SendTransaction(t *testing.T) {
	tests := []struct {
		name       string
		client     *fakeEthClient
		wantGas    uint64
		wantTipCap *big.Int
		wantFeeCap *big.Int
	}{
		{
			name: "buffered estimate and base fee pricing",
			client: &fakeEthClient{
				nonce:       7,
				gasEstimate: 100_000,
				tipCap:      big.NewInt(1_000),
				baseFee:     big.NewInt(50_000),
			},
			wantGas:    120_000,
			wantTipCap: big.NewInt(1_000),
			wantFeeCap: big.NewInt(101_000),
		},
		{
			name: "fallbacks when the node cannot estimate or price",
			client: &fakeEthClient{
				nonce:       0,
				estimateErr: errors.New("execution reverted"),
			},
			wantGas:    fallbackGasLimit,
			wantTipCap: big.NewInt(fallbackTipCapWei),
			wantFeeCap: big.NewInt(2 * fallbackTipCapWei),
		},
		{
			name: "legacy gas price when there is no base fee",
			client: &fakeEthClient{
				gasEstimate: 50_000,
				tipCap:      big.NewInt(3),
				gasPrice:    big.NewInt(999),
			},
			wantGas:    60_000,
			wantTipCap: big.NewInt(3),
			wantFeeCap: big.NewInt(999),
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)

			w := newTestWallet(t, test.client)
			to := common.HexToAddress("0xC6bb1eb417b4C0AC5D7E411d6b801608b1064811")
			nonce := test.client.nonce

			hash, err := w.SendTransaction(context.Background(), to, []byte{0xde, 0xad})
			c.NoError(err)
			c.Len(test.client.sent, 1)

			tx := test.client.sent[0]
			c.Equal(hash, tx.Hash())
			c.Equal(nonce, tx.Nonce())
			c.Equal(to, *tx.To())
			c.Equal([]byte{0xde, 0xad}, tx.Data())
			c.Equal(test.wantGas, tx.Gas())
			c.Zero(test.wantTipCap.Cmp(tx.GasTipCap()))
			c.Zero(test.wantFeeCap.Cmp(tx.GasFeeCap()))
			c.Equal(uint8(types.DynamicFeeTxType), tx.Type())

			sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(11155111)), tx)
			c.NoError(err)
			account, connected := w.Account()
			c.True(connected)
			c.Equal(account, sender)
		})
	}
}

func TestLocalWallet_SendError(t *testing.T) {
	w := newTestWallet(t, &fakeEthClient{gasEstimate: 21_000, sendErr: errors.New("nonce too low")})

	_, err := w.SendTransaction(context.Background(), common.Address{}, nil)
	require.ErrorContains(t, err, "nonce too low")
}

func TestLocalECDSASigner(t *testing.T) {
	c := require.New(t)

	key, err := crypto.HexToECDSA(testKeyHex)
	c.NoError(err)

	signer := NewLocalECDSASigner(big.NewInt(5), key)
	c.Equal(crypto.PubkeyToAddress(key.PublicKey), signer.From())

	chainID, err := signer.ChainID(context.Background())
	c.NoError(err)
	c.Zero(chainID.Cmp(big.NewInt(5)))

	// The returned chain id is a copy.
	chainID.SetInt64(99)
	again, _ := signer.ChainID(context.Background())
	c.Zero(again.Cmp(big.NewInt(5)))

	unset := NewLocalECDSASigner(nil, key)
	_, err = unset.ChainID(context.Background())
	c.ErrorIs(err, ErrChainIDNotSet)

	_, err = NewLocalECDSASignerFromHex(big.NewInt(5), "not-a-key")
	c.Error(err)
}
