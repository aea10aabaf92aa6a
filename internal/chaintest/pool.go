package chaintest

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pokt-network/poktroll/pkg/polylog/polyzero"
	"github.com/stretchr/testify/require"

	"github.com/georgex8001/voting-fun/endpoint"
)

// DownClient fails every request.
type DownClient struct{}

func (DownClient) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, ErrUnavailable
}

func (DownClient) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ErrUnavailable
}

func (DownClient) ChainID(context.Context) (*big.Int, error) {
	return nil, ErrUnavailable
}

// NewPool returns an endpoint pool over urls where every URL listed in down
// fails and every other URL is served by c.
func NewPool(t testing.TB, c *Chain, urls []string, down ...string) *endpoint.Pool {
	t.Helper()

	isDown := make(map[string]bool, len(down))
	for _, url := range down {
		isDown[url] = true
	}

	pool, err := endpoint.NewPool(endpoint.PoolConfig{
		URLs: urls,
		Dialer: func(_ context.Context, url string) (endpoint.Client, error) {
			if isDown[url] {
				return DownClient{}, nil
			}
			return c, nil
		},
		Logger: polyzero.NewLogger(),
	})
	require.NoError(t, err)
	return pool
}
