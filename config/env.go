package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables understood by LoadClientConfigFromEnv.
const (
	EnvConfigBlob           = "VOTING_CONFIG"
	EnvChainID              = "CHAIN_ID"
	EnvGatewayURL           = "GATEWAY_URL"
	EnvRelayerURL           = "RELAYER_URL"
	EnvRPCURLs              = "RPC_URLS"
	EnvConfidentialContract = "CONFIDENTIAL_CONTRACT"
	EnvPlainContract        = "PLAIN_CONTRACT"
	EnvLogLevel             = "LOG_LEVEL"
	EnvPrivateKey           = "PRIVATE_KEY"
	EnvRedisAddr            = "REDIS_ADDR"
)

// LoadClientConfigFromEnv builds a ClientConfig from the environment.
// A .env file in the working directory is loaded first when present; variables
// already set in the process environment take precedence over it.
// If VOTING_CONFIG holds a YAML document it is used verbatim, otherwise the
// individual variables are read and missing ones fall back to defaults.
func LoadClientConfigFromEnv() (ClientConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return ClientConfig{}, EnvConfigError{Description: "Failed to read .env file: " + err.Error()}
	}

	if blob := os.Getenv(EnvConfigBlob); blob != "" {
		return parseClientConfig([]byte(blob))
	}

	var config ClientConfig
	if raw := os.Getenv(EnvChainID); raw != "" {
		chainID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return ClientConfig{}, EnvConfigError{Description: "Invalid " + EnvChainID + ": " + raw}
		}
		config.Network.ChainID = chainID
	}
	if raw := os.Getenv(EnvRPCURLs); raw != "" {
		config.Network.RPCURLs = splitList(raw)
	}
	config.Network.GatewayURL = os.Getenv(EnvGatewayURL)
	config.Network.RelayerURL = os.Getenv(EnvRelayerURL)
	config.Contracts.Confidential = os.Getenv(EnvConfidentialContract)
	config.Contracts.Plain = os.Getenv(EnvPlainContract)
	config.Logger.Level = strings.ToLower(os.Getenv(EnvLogLevel))
	config.Wallet.PrivateKeyHex = os.Getenv(EnvPrivateKey)
	if addr := os.Getenv(EnvRedisAddr); addr != "" {
		config.RedisConfig = &RedisConfig{Address: addr}
	}

	config.hydrateDefaults()

	return config, config.validate()
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
