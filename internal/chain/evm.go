package chain

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// evmAddress renders the EVM account of pub: Keccak-256 over the 64-byte
// uncompressed key body, last 20 bytes, EIP-55 checksummed hex.
func evmAddress(pub *btcec.PublicKey) string {
	digest := keccak256(pub.SerializeUncompressed()[1:])
	return ChecksumAddress(digest[12:])
}

// keccak256 is the legacy (pre-NIST) Keccak used by Ethereum and TRON.
func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// ChecksumAddress renders a 20-byte account identifier as an EIP-55
// mixed-case hex address.
func ChecksumAddress(account []byte) string {
	body := []byte(hex.EncodeToString(account))
	digest := keccak256(body)

	for i, c := range body {
		if c < 'a' || c > 'f' {
			continue
		}
		nibble := digest[i/2]
		if i%2 == 0 {
			nibble >>= 4
		} else {
			nibble &= 0x0f
		}
		if nibble >= 8 {
			body[i] = c - ('a' - 'A')
		}
	}
	return "0x" + string(body)
}

// ValidChecksumAddress reports whether addr is a canonically EIP-55
// checksummed EVM address.
func ValidChecksumAddress(addr string) bool {
	if len(addr) != 42 || !strings.HasPrefix(addr, "0x") {
		return false
	}
	account, err := hex.DecodeString(strings.ToLower(addr[2:]))
	if err != nil {
		return false
	}
	return ChecksumAddress(account) == addr
}
