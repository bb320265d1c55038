// Package chain derives deposit addresses from extended public keys.
// Every supported chain resolves to a closed set of address families;
// anything outside the set is rejected, never approximated.
package chain

import "errors"

// Family selects the address encoding for a chain. The zero value is
// deliberately invalid so an unresolved Spec can never reach a codec.
type Family int

const (
	familyInvalid Family = iota

	// FamilyEVM covers Ethereum and every EVM-compatible chain:
	// Keccak-256 account identifier, EIP-55 checksummed hex.
	FamilyEVM

	// FamilyBitcoin covers Bitcoin-derived P2PKH chains. The concrete
	// chain is carried by BitcoinParams, never by branching on names.
	FamilyBitcoin

	// FamilyTron uses the EVM account identifier with TRON's prefix
	// byte and Base58Check encoding.
	FamilyTron
)

func (f Family) String() string {
	switch f {
	case FamilyEVM:
		return "evm"
	case FamilyBitcoin:
		return "bitcoin-family"
	case FamilyTron:
		return "tron"
	default:
		return "unsupported"
	}
}

// BitcoinParams parameterizes a Bitcoin-family chain. Version bytes are
// data: the encoder never assumes Bitcoin's values.
type BitcoinParams struct {
	// PubKeyHashVersion is the P2PKH address version byte.
	PubKeyHashVersion byte

	// HDPublicKeyID is the 4-byte extended-public-key prefix the chain's
	// tooling exports (e.g. Ltub for Litecoin).
	HDPublicKeyID [4]byte
}

// Spec is the resolved derivation scheme for one chain. Specs come from
// the registry exactly once, at wallet configuration time.
type Spec struct {
	Chain    string // registry key, e.g. "litecoin"
	Currency string // native asset symbol, e.g. "LTC"
	Family   Family
	Params   BitcoinParams // meaningful for FamilyBitcoin only
}

var (
	// ErrUnknownChain rejects chains absent from the registry.
	ErrUnknownChain = errors.New("unknown chain")

	// ErrUnsupportedScheme rejects families this codec cannot derive
	// (e.g. Ed25519-based chains). Never falls back to another encoding.
	ErrUnsupportedScheme = errors.New("unsupported derivation scheme")

	// ErrIndexOutOfRange rejects indices outside non-hardened derivation.
	ErrIndexOutOfRange = errors.New("derivation index outside non-hardened range")

	// ErrInvalidExtendedKey rejects key material that does not parse as a
	// serialized extended key.
	ErrInvalidExtendedKey = errors.New("malformed extended public key")

	// ErrPrivateKeyMaterial rejects extended private keys. This system
	// never holds private material.
	ErrPrivateKeyMaterial = errors.New("extended key contains private material")

	// ErrKeyVersionMismatch rejects extended keys whose version prefix
	// belongs to a different chain than the wallet is configured for.
	ErrKeyVersionMismatch = errors.New("extended key version does not match chain")

	// ErrInvalidAddress rejects address strings that cannot be normalized
	// for the chain's encoding.
	ErrInvalidAddress = errors.New("invalid address for chain")
)
