package config

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

const defaultGasLimitBufferPct = 20

// WalletConfig configures the optional local signer used for write commands.
// Without a private key the client is read-only.
type WalletConfig struct {
	PrivateKeyHex string `yaml:"private_key_hex"`

	// RPCURL is used for nonce, gas and broadcast. Defaults to the first network RPC URL.
	RPCURL string `yaml:"rpc_url"`

	// GasLimitBufferPct is added on top of the estimated gas.
	GasLimitBufferPct uint64 `yaml:"gas_limit_buffer_pct"`
}

func (c *WalletConfig) hydrateWalletDefaults(network NetworkConfig) {
	c.PrivateKeyHex = strings.TrimPrefix(strings.TrimSpace(c.PrivateKeyHex), "0x")
	if c.RPCURL == "" && len(network.RPCURLs) > 0 {
		c.RPCURL = network.RPCURLs[0]
	}
	if c.GasLimitBufferPct == 0 {
		c.GasLimitBufferPct = defaultGasLimitBufferPct
	}
}

// Enabled reports whether a signing key is configured.
func (c WalletConfig) Enabled() bool {
	return c.PrivateKeyHex != ""
}

func (c *WalletConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, err := crypto.HexToECDSA(c.PrivateKeyHex); err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}
	if err := validateHTTPURL(c.RPCURL); err != nil {
		return fmt.Errorf("invalid wallet rpc url %q: %w", c.RPCURL, err)
	}
	return nil
}
