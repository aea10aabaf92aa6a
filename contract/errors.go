package contract

import "errors"

var (
	// ErrNoSigner is returned before any network call when a write is
	// attempted without a connected wallet.
	ErrNoSigner = errors.New("no wallet connected")

	// ErrUnsupportedByBinding is returned for operations the resolved
	// deployment does not offer.
	ErrUnsupportedByBinding = errors.New("operation not supported by contract binding")

	// ErrEncryptedInputRequired is returned when a confidential write is
	// built without the encrypted inputs it needs.
	ErrEncryptedInputRequired = errors.New("encrypted input required for confidential contract")

	// ErrMissingRequestID is returned when a confirmed decryption request
	// carries no matching DecryptionRequested event.
	ErrMissingRequestID = errors.New("no DecryptionRequested event for poll in receipt")

	// ErrMissingEvent is returned when a receipt lacks an expected event.
	ErrMissingEvent = errors.New("expected event not found in receipt")

	ErrInvalidOption  = errors.New("option index out of range")
	ErrResultOverflow = errors.New("result does not fit in uint64")
)
