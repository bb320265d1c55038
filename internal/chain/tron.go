package chain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// tronPrefix is TRON's mainnet address version byte ("T" addresses).
const tronPrefix byte = 0x41

// tronAddress derives the same Keccak account identifier as the EVM codec
// but renders it behind TRON's prefix byte with Base58Check, not as hex.
func tronAddress(pub *btcec.PublicKey) string {
	digest := keccak256(pub.SerializeUncompressed()[1:])
	return base58.CheckEncode(digest[12:], tronPrefix)
}
