package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultConfidentialContract = "0xC6bb1eb417b4C0AC5D7E411d6b801608b1064811"
	defaultPlainContract        = "0x1032d41F45c22b7dA427f234A0F418c02DA0f3A0"
)

// ContractsConfig holds the deployed addresses of both contract variants.
type ContractsConfig struct {
	Confidential string `yaml:"confidential"`
	Plain        string `yaml:"plain"`
}

func (c *ContractsConfig) hydrateContractsDefaults() {
	if c.Confidential == "" {
		c.Confidential = defaultConfidentialContract
	}
	if c.Plain == "" {
		c.Plain = defaultPlainContract
	}
}

func (c *ContractsConfig) Validate() error {
	if !common.IsHexAddress(c.Confidential) {
		return fmt.Errorf("invalid confidential contract address: %q", c.Confidential)
	}
	if !common.IsHexAddress(c.Plain) {
		return fmt.Errorf("invalid plain contract address: %q", c.Plain)
	}
	if common.HexToAddress(c.Confidential) == common.HexToAddress(c.Plain) {
		return fmt.Errorf("confidential and plain contracts must differ: %s", c.Plain)
	}
	return nil
}

// ConfidentialAddress returns the parsed confidential contract address.
func (c ContractsConfig) ConfidentialAddress() common.Address {
	return common.HexToAddress(c.Confidential)
}

// PlainAddress returns the parsed plaintext contract address.
func (c ContractsConfig) PlainAddress() common.Address {
	return common.HexToAddress(c.Plain)
}
