package chain

import (
	"fmt"
	"strings"
)

// genericHDPublicKeyID is the ubiquitous "xpub" prefix. Custodial tooling
// commonly exports account keys with this prefix regardless of chain, so
// key validation accepts it alongside the chain-specific prefix.
var genericHDPublicKeyID = [4]byte{0x04, 0x88, 0xb2, 0x1e}

// registry is the closed set of supported chains. Adding a chain means
// adding a row here; there is no dynamic or partial matching.
var registry = map[string]Spec{
	"ethereum": {Chain: "ethereum", Currency: "ETH", Family: FamilyEVM},
	"bsc":      {Chain: "bsc", Currency: "BNB", Family: FamilyEVM},
	"polygon":  {Chain: "polygon", Currency: "MATIC", Family: FamilyEVM},
	"bitcoin": {Chain: "bitcoin", Currency: "BTC", Family: FamilyBitcoin, Params: BitcoinParams{
		PubKeyHashVersion: 0x00,
		HDPublicKeyID:     [4]byte{0x04, 0x88, 0xb2, 0x1e}, // xpub
	}},
	"litecoin": {Chain: "litecoin", Currency: "LTC", Family: FamilyBitcoin, Params: BitcoinParams{
		PubKeyHashVersion: 0x30,
		HDPublicKeyID:     [4]byte{0x01, 0x9d, 0xa4, 0x62}, // Ltub
	}},
	"dogecoin": {Chain: "dogecoin", Currency: "DOGE", Family: FamilyBitcoin, Params: BitcoinParams{
		PubKeyHashVersion: 0x1e,
		HDPublicKeyID:     [4]byte{0x02, 0xfa, 0xca, 0xfd}, // dgub
	}},
	"dash": {Chain: "dash", Currency: "DASH", Family: FamilyBitcoin, Params: BitcoinParams{
		PubKeyHashVersion: 0x4c,
		HDPublicKeyID:     [4]byte{0x04, 0x88, 0xb2, 0x1e}, // Dash Core exports xpub
	}},
	"tron": {Chain: "tron", Currency: "TRX", Family: FamilyTron},
}

// Lookup resolves a chain identifier to its derivation spec. Identifiers
// are matched exactly after lowercase normalization.
func Lookup(chain string) (Spec, error) {
	spec, ok := registry[strings.ToLower(strings.TrimSpace(chain))]
	if !ok {
		return Spec{}, fmt.Errorf("%w: %q", ErrUnknownChain, chain)
	}
	return spec, nil
}

// Supported lists the registry keys, for diagnostics and validation output.
func Supported() []string {
	chains := make([]string, 0, len(registry))
	for name := range registry {
		chains = append(chains, name)
	}
	return chains
}
