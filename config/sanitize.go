package config

import (
	"github.com/ethereum/go-ethereum/crypto"
	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// SanitizedConfig returns the configuration keyed by its YAML names with the
// private key and the Redis password redacted. The wallet section carries
// the signing account instead of the key.
func (c ClientConfig) SanitizedConfig() map[string]any {
	sanitized := c
	var account string
	if c.Wallet.Enabled() {
		if key, err := crypto.HexToECDSA(c.Wallet.PrivateKeyHex); err == nil {
			account = crypto.PubkeyToAddress(key.PublicKey).Hex()
		}
		sanitized.Wallet.PrivateKeyHex = redacted
	}
	if c.RedisConfig != nil {
		redis := *c.RedisConfig
		if redis.Password != "" {
			redis.Password = redacted
		}
		sanitized.RedisConfig = &redis
	}

	data, err := yaml.Marshal(sanitized)
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return map[string]any{"error": err.Error()}
	}

	if wallet, ok := out["wallet_config"].(map[string]any); ok && account != "" {
		wallet["account"] = account
	}
	return out
}
