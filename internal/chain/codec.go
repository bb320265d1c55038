package chain

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// DeriveAddress derives the receiving address for child index under the
// wallet's extended public key, on the external branch (path 0/index).
// The result is deterministic: the same (xpub, index, spec) always yields
// the same string. Pure CPU, no I/O.
func DeriveAddress(xpub string, index uint32, spec Spec) (string, error) {
	if index >= hdkeychain.HardenedKeyStart {
		return "", fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}

	pub, err := deriveChildKey(xpub, index)
	if err != nil {
		return "", err
	}

	switch spec.Family {
	case FamilyEVM:
		return evmAddress(pub), nil
	case FamilyBitcoin:
		return p2pkhAddress(pub, spec.Params), nil
	case FamilyTron:
		return tronAddress(pub), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, spec.Chain)
	}
}

// NormalizeAddress rewrites addr into the canonical form produced by
// DeriveAddress, so database lookups and idempotency keys agree no matter
// how an upstream monitor cased the address. EVM hex is re-checksummed per
// EIP-55; Base58 families are case-sensitive already and pass through
// unchanged apart from surrounding whitespace.
func NormalizeAddress(spec Spec, addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}

	switch spec.Family {
	case FamilyEVM:
		if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
		account, err := hex.DecodeString(strings.ToLower(addr[2:]))
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
		}
		return ChecksumAddress(account), nil
	case FamilyBitcoin, FamilyTron:
		return addr, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, spec.Chain)
	}
}

// deriveChildKey walks xpub -> external branch (0) -> index and returns
// the child public key.
func deriveChildKey(xpub string, index uint32) (*btcec.PublicKey, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExtendedKey, err)
	}
	if key.IsPrivate() {
		return nil, ErrPrivateKeyMaterial
	}

	external, err := key.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive external branch: %w", err)
	}
	child, err := external.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}

	pub, err := child.ECPubKey()
	if err != nil {
		return nil, fmt.Errorf("extract child public key: %w", err)
	}
	return pub, nil
}

// ValidateExtendedKey checks key material at wallet registration time:
// it must parse, must be public-only, and must carry either the chain's
// extended-key prefix or the generic xpub prefix.
func ValidateExtendedKey(xpub string, spec Spec) error {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExtendedKey, err)
	}
	if key.IsPrivate() {
		return ErrPrivateKeyMaterial
	}

	if key.IsForNet(hdParams(spec.Params.HDPublicKeyID)) {
		return nil
	}
	if key.IsForNet(hdParams(genericHDPublicKeyID)) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrKeyVersionMismatch, spec.Chain)
}

// hdParams builds the minimal network params IsForNet needs. Only the
// extended-key version bytes participate in the comparison.
func hdParams(hdPublicKeyID [4]byte) *chaincfg.Params {
	return &chaincfg.Params{HDPublicKeyID: hdPublicKeyID}
}
