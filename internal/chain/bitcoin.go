package chain

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// p2pkhAddress renders a pay-to-pubkey-hash address: RIPEMD160(SHA256(
// compressed pubkey)) behind the chain's version byte, Base58Check encoded
// (the checksum is the first four bytes of a double SHA-256).
func p2pkhAddress(pub *btcec.PublicKey, params BitcoinParams) string {
	payload := btcutil.Hash160(pub.SerializeCompressed())
	return base58.CheckEncode(payload, params.PubKeyHashVersion)
}
