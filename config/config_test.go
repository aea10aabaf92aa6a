package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testPrivateKeyHex = "40af4e7e1b311c76a573610fe115cd2adf1eeade709cd77ca31ad4472509d388"

func defaultTestConfig() ClientConfig {
	return ClientConfig{
		Network: NetworkConfig{
			ChainID:        defaultChainID,
			RPCURLs:        defaultRPCURLs,
			GatewayURL:     defaultGatewayURL,
			RelayerURL:     defaultGatewayURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Contracts: ContractsConfig{
			Confidential: defaultConfidentialContract,
			Plain:        defaultPlainContract,
		},
		Health: HealthConfig{
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Submitter: SubmitterConfig{
			PollInterval: defaultReceiptPollInterval,
			MaxAttempts:  defaultReceiptMaxAttempts,
		},
		Decryption: DecryptionConfig{
			RelayerPollInterval:  defaultRelayerPollInterval,
			RelayerMaxAttempts:   defaultRelayerMaxAttempts,
			RelayerRateLimit:     defaultRelayerRateLimit,
			CallbackPollInterval: defaultCallbackPollInterval,
			CallbackMaxAttempts:  defaultCallbackMaxAttempts,
		},
		Cache: CacheConfig{
			PollTTL: defaultPollCacheTTL,
			Workers: defaultCacheWorkers,
		},
		Wallet: WalletConfig{
			RPCURL:            defaultRPCURLs[0],
			GasLimitBufferPct: defaultGasLimitBufferPct,
		},
		Logger: LoggerConfig{
			Level: defaultLogLevel,
		},
		Metrics: MetricsConfig{
			PrometheusAddr: defaultPrometheusAddr,
		},
		Router: RouterConfig{
			Port:         defaultRouterPort,
			ReadTimeout:  defaultHTTPServerReadTimeout,
			WriteTimeout: defaultHTTPServerWriteTimeout,
			IdleTimeout:  defaultHTTPServerIdleTimeout,
		},
	}
}

func Test_LoadClientConfigFromYAML(t *testing.T) {
	tests := []struct {
		name     string
		yamlData string
		want     func() ClientConfig
		wantErr  bool
	}{
		{
			name:     "should hydrate every default for an empty file",
			yamlData: "\n",
			want:     defaultTestConfig,
		},
		{
			name: "should load a complete config",
			yamlData: `
network_config:
  chain_id: 31337
  rpc_urls:
    - "http://localhost:8545"
    - "http://localhost:8546"
  gateway_url: "http://localhost:7077"
  relayer_url: "http://localhost:7078"
  request_timeout: 3s
contracts_config:
  confidential: "0x5FbDB2315678afecb367f032d93F642f64180aa3"
  plain: "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
health_config:
  probe_interval: 15s
  probe_timeout: 2s
submitter_config:
  poll_interval: 500ms
  max_attempts: 10
decryption_config:
  relayer_poll_interval: 1s
  relayer_max_attempts: 5
  relayer_rate_limit: 10
  callback_poll_interval: 250ms
  callback_max_attempts: 40
cache_config:
  poll_ttl: 1m
  workers: 4
wallet_config:
  private_key_hex: "0x` + testPrivateKeyHex + `"
  gas_limit_buffer_pct: 50
logger_config:
  level: "debug"
metrics_config:
  prometheus_addr: ":9191"
  pprof_addr: ":6061"
router_config:
  port: 8080
  read_timeout: 5s
redis_config:
  address: "localhost:6379"
`,
			want: func() ClientConfig {
				return ClientConfig{
					Network: NetworkConfig{
						ChainID:        31337,
						RPCURLs:        []string{"http://localhost:8545", "http://localhost:8546"},
						GatewayURL:     "http://localhost:7077",
						RelayerURL:     "http://localhost:7078",
						RequestTimeout: 3 * time.Second,
					},
					Contracts: ContractsConfig{
						Confidential: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
						Plain:        "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512",
					},
					Health: HealthConfig{
						ProbeInterval: 15 * time.Second,
						ProbeTimeout:  2 * time.Second,
					},
					Submitter: SubmitterConfig{
						PollInterval: 500 * time.Millisecond,
						MaxAttempts:  10,
					},
					Decryption: DecryptionConfig{
						RelayerPollInterval:  time.Second,
						RelayerMaxAttempts:   5,
						RelayerRateLimit:     10,
						CallbackPollInterval: 250 * time.Millisecond,
						CallbackMaxAttempts:  40,
					},
					Cache: CacheConfig{
						PollTTL: time.Minute,
						Workers: 4,
					},
					Wallet: WalletConfig{
						PrivateKeyHex:     testPrivateKeyHex,
						RPCURL:            "http://localhost:8545",
						GasLimitBufferPct: 50,
					},
					Logger: LoggerConfig{
						Level: "debug",
					},
					Metrics: MetricsConfig{
						PrometheusAddr: ":9191",
						PprofAddr:      ":6061",
					},
					Router: RouterConfig{
						Port:         8080,
						ReadTimeout:  5 * time.Second,
						WriteTimeout: defaultHTTPServerWriteTimeout,
						IdleTimeout:  defaultHTTPServerIdleTimeout,
					},
					RedisConfig: &RedisConfig{
						Address:       "localhost:6379",
						StatusKey:     defaultRedisStatusKey,
						StatusChannel: defaultRedisStatusChannel,
					},
				}
			},
		},
		{
			name: "should default the relayer to the gateway",
			yamlData: `
network_config:
  gateway_url: "https://gateway.example.com"
`,
			want: func() ClientConfig {
				config := defaultTestConfig()
				config.Network.GatewayURL = "https://gateway.example.com"
				config.Network.RelayerURL = "https://gateway.example.com"
				return config
			},
		},
		{
			name: "should return error for invalid rpc url",
			yamlData: `
network_config:
  rpc_urls: ["not-a-url"]
`,
			wantErr: true,
		},
		{
			name: "should return error for invalid contract address",
			yamlData: `
contracts_config:
  confidential: "0x1234"
`,
			wantErr: true,
		},
		{
			name: "should return error when both contracts are the same",
			yamlData: `
contracts_config:
  confidential: "0x1032d41F45c22b7dA427f234A0F418c02DA0f3A0"
  plain: "0x1032d41f45c22b7da427f234a0f418c02da0f3a0"
`,
			wantErr: true,
		},
		{
			name: "should return error for invalid private key",
			yamlData: `
wallet_config:
  private_key_hex: "zz"
`,
			wantErr: true,
		},
		{
			name: "should return error for invalid log level",
			yamlData: `
logger_config:
  level: "verbose"
`,
			wantErr: true,
		},
		{
			name: "should return error for a prometheus address without port",
			yamlData: `
metrics_config:
  prometheus_addr: "localhost"
`,
			wantErr: true,
		},
		{
			name: "should return error for redis config without address",
			yamlData: `
redis_config:
  db: 2
`,
			wantErr: true,
		},
		{
			name: "should hydrate leader election defaults",
			yamlData: `
redis_config:
  address: "localhost:6379"
  leader_election: true
`,
			want: func() ClientConfig {
				config := defaultTestConfig()
				config.RedisConfig = &RedisConfig{
					Address:        "localhost:6379",
					StatusKey:      defaultRedisStatusKey,
					StatusChannel:  defaultRedisStatusChannel,
					LeaderElection: true,
					LeaderKey:      defaultLeaderKey,
					LeaseDuration:  defaultLeaderLeaseDuration,
					RenewInterval:  defaultLeaderRenewInterval,
				}
				return config
			},
		},
		{
			name: "should return error when the lease is renewed too late",
			yamlData: `
redis_config:
  address: "localhost:6379"
  leader_election: true
  lease_duration: 10s
  renew_interval: 15s
`,
			wantErr: true,
		},
		{
			name:     "should return error for malformed yaml",
			yamlData: "network_config: [",
			wantErr:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)

			filePath := filepath.Join(t.TempDir(), "config.yaml")
			c.NoError(os.WriteFile(filePath, []byte(test.yamlData), 0644))

			got, err := LoadClientConfigFromYAML(filePath)
			if test.wantErr {
				c.Error(err)
				return
			}
			c.NoError(err)
			compareConfigs(c, test.want(), got)
		})
	}
}

func Test_LoadClientConfigFromYAML_MissingFile(t *testing.T) {
	_, err := LoadClientConfigFromYAML(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func Test_LoadClientConfigFromEnv(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		check   func(c *require.Assertions, got ClientConfig)
		wantErr bool
	}{
		{
			name: "should read individual variables",
			env: map[string]string{
				EnvChainID:    "31337",
				EnvRPCURLs:    "http://localhost:8545, http://localhost:8546,",
				EnvGatewayURL: "http://localhost:7077",
				EnvLogLevel:   "DEBUG",
				EnvPrivateKey: testPrivateKeyHex,
				EnvRedisAddr:  "localhost:6379",
			},
			check: func(c *require.Assertions, got ClientConfig) {
				c.Equal(uint64(31337), got.Network.ChainID)
				c.Equal([]string{"http://localhost:8545", "http://localhost:8546"}, got.Network.RPCURLs)
				c.Equal("http://localhost:7077", got.Network.RelayerURL)
				c.Equal("debug", got.Logger.Level)
				c.True(got.Wallet.Enabled())
				c.Equal("http://localhost:8545", got.Wallet.RPCURL)
				c.NotNil(got.RedisConfig)
				c.Equal(defaultRedisStatusKey, got.RedisConfig.StatusKey)
				c.Equal(defaultConfidentialContract, got.Contracts.Confidential)
			},
		},
		{
			name: "should prefer the yaml blob",
			env: map[string]string{
				EnvConfigBlob: "network_config:\n  chain_id: 5\n",
				EnvChainID:    "31337",
			},
			check: func(c *require.Assertions, got ClientConfig) {
				c.Equal(uint64(5), got.Network.ChainID)
			},
		},
		{
			name: "should return error for non numeric chain id",
			env: map[string]string{
				EnvChainID: "sepolia",
			},
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := require.New(t)

			for _, key := range []string{
				EnvConfigBlob, EnvChainID, EnvGatewayURL, EnvRelayerURL, EnvRPCURLs,
				EnvConfidentialContract, EnvPlainContract, EnvLogLevel, EnvPrivateKey, EnvRedisAddr,
			} {
				t.Setenv(key, test.env[key])
			}

			got, err := LoadClientConfigFromEnv()
			if test.wantErr {
				c.Error(err)
				return
			}
			c.NoError(err)
			test.check(c, got)
		})
	}
}

func compareConfigs(c *require.Assertions, want, got ClientConfig) {
	c.Equal(want.Network, got.Network)
	c.Equal(want.Contracts, got.Contracts)
	c.Equal(want.Health, got.Health)
	c.Equal(want.Submitter, got.Submitter)
	c.Equal(want.Decryption, got.Decryption)
	c.Equal(want.Cache, got.Cache)
	c.Equal(want.Wallet, got.Wallet)
	c.Equal(want.Logger, got.Logger)
	c.Equal(want.Metrics, got.Metrics)
	c.Equal(want.Router, got.Router)
	c.Equal(want.RedisConfig, got.RedisConfig)
}

func Test_SanitizedConfig(t *testing.T) {
	c := require.New(t)

	config := defaultTestConfig()
	config.Wallet.PrivateKeyHex = testPrivateKeyHex
	config.RedisConfig = &RedisConfig{Address: "localhost:6379", Password: "hunter2"}

	sanitized := config.SanitizedConfig()

	wallet, ok := sanitized["wallet_config"].(map[string]any)
	c.True(ok)
	c.Equal(redacted, wallet["private_key_hex"])
	c.Regexp("^0x[0-9a-fA-F]{40}$", wallet["account"])

	redis, ok := sanitized["redis_config"].(map[string]any)
	c.True(ok)
	c.Equal(redacted, redis["password"])
	c.Equal("localhost:6379", redis["address"])

	network, ok := sanitized["network_config"].(map[string]any)
	c.True(ok)
	c.Equal(defaultGatewayURL, network["gateway_url"])

	// The original is untouched.
	c.Equal(testPrivateKeyHex, config.Wallet.PrivateKeyHex)
	c.Equal("hunter2", config.RedisConfig.Password)
}
