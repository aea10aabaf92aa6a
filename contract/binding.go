// Package contract routes reads and writes to one of two deployments of the
// voting contract.
//
// The confidential deployment takes encrypted inputs and only reveals results
// after a gateway decryption. The plain deployment takes plaintext inputs and
// always exposes its results. A Router picks the deployment from the gateway
// status; callers never branch on that status themselves.
package contract

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

var (
	//go:embed abi/confidential.json
	confidentialABIJSON []byte

	//go:embed abi/plain.json
	plainABIJSON []byte
)

// Kind names a contract deployment variant.
type Kind string

const (
	KindConfidential Kind = "confidential"
	KindPlain        Kind = "plain"
)

func (k Kind) String() string {
	return string(k)
}

// Binding is an address paired with the ABI of the deployment living there.
// The only implementations are *ConfidentialBinding and *PlainBinding.
type Binding interface {
	Kind() Kind
	Address() common.Address
	ABI() *abi.ABI

	isBinding()
}

// ConfidentialBinding targets the deployment that takes encrypted inputs.
type ConfidentialBinding struct {
	address common.Address
	abi     abi.ABI
}

// NewConfidentialBinding parses the embedded confidential ABI for address.
func NewConfidentialBinding(address common.Address) (*ConfidentialBinding, error) {
	parsed, err := abi.JSON(bytes.NewReader(confidentialABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing confidential contract ABI: %w", err)
	}
	return &ConfidentialBinding{address: address, abi: parsed}, nil
}

func (b *ConfidentialBinding) Kind() Kind              { return KindConfidential }
func (b *ConfidentialBinding) Address() common.Address { return b.address }
func (b *ConfidentialBinding) ABI() *abi.ABI           { return &b.abi }
func (b *ConfidentialBinding) isBinding()              {}

// PlainBinding targets the plaintext fallback deployment.
type PlainBinding struct {
	address common.Address
	abi     abi.ABI
}

// NewPlainBinding parses the embedded plaintext ABI for address.
func NewPlainBinding(address common.Address) (*PlainBinding, error) {
	parsed, err := abi.JSON(bytes.NewReader(plainABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parsing plain contract ABI: %w", err)
	}
	return &PlainBinding{address: address, abi: parsed}, nil
}

func (b *PlainBinding) Kind() Kind              { return KindPlain }
func (b *PlainBinding) Address() common.Address { return b.address }
func (b *PlainBinding) ABI() *abi.ABI           { return &b.abi }
func (b *PlainBinding) isBinding()              {}
