package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

/* --------------------------------- Network Config Defaults -------------------------------- */

const (
	// Sepolia
	defaultChainID        = 11155111
	defaultGatewayURL     = "https://gateway.sepolia.zama.ai"
	defaultRequestTimeout = 10 * time.Second
)

// defaultRPCURLs is the ordered fallback list of public Sepolia endpoints.
var defaultRPCURLs = []string{
	"https://ethereum-sepolia-rpc.publicnode.com",
	"https://sepolia.gateway.tenderly.co",
	"https://rpc.ankr.com/eth_sepolia",
}

/* --------------------------------- Network Config Struct -------------------------------- */

// NetworkConfig describes the chain and the off-chain services used by the client.
type NetworkConfig struct {
	ChainID uint64 `yaml:"chain_id"`

	// RPCURLs are tried in order by the endpoint pool. Order is significant.
	RPCURLs []string `yaml:"rpc_urls"`

	// GatewayURL is the confidentiality gateway probed by the health monitor.
	GatewayURL string `yaml:"gateway_url"`

	// RelayerURL serves public decryption requests.
	// Defaults to GatewayURL.
	RelayerURL string `yaml:"relayer_url"`

	// RequestTimeout bounds each individual RPC read attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

func (c *NetworkConfig) hydrateNetworkDefaults() {
	if c.ChainID == 0 {
		c.ChainID = defaultChainID
	}
	if len(c.RPCURLs) == 0 {
		c.RPCURLs = append([]string(nil), defaultRPCURLs...)
	}
	if c.GatewayURL == "" {
		c.GatewayURL = defaultGatewayURL
	}
	if c.RelayerURL == "" {
		c.RelayerURL = c.GatewayURL
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
}

// Validate checks that every configured URL is an absolute http(s) URL.
func (c *NetworkConfig) Validate() error {
	if len(c.RPCURLs) == 0 {
		return errors.New("at least one RPC URL is required")
	}
	for _, u := range c.RPCURLs {
		if err := validateHTTPURL(u); err != nil {
			return fmt.Errorf("invalid rpc url %q: %w", u, err)
		}
	}
	if err := validateHTTPURL(c.GatewayURL); err != nil {
		return fmt.Errorf("invalid gateway url %q: %w", c.GatewayURL, err)
	}
	if err := validateHTTPURL(c.RelayerURL); err != nil {
		return fmt.Errorf("invalid relayer url %q: %w", c.RelayerURL, err)
	}
	if c.RequestTimeout < 0 {
		return errors.New("request_timeout must not be negative")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
