// Package storage holds the wallet's persistence contract: a plaintext
// Snapshot of everything a Wallet needs to resume, and an opaque
// Load/Save pair that seals that snapshot into a single encrypted file.
package storage

import (
	"github.com/nutcase-wallet/corewallet/cashu"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut04"
	"github.com/nutcase-wallet/corewallet/cashu/nuts/nut05"
	"github.com/nutcase-wallet/corewallet/crypto"
)

// Snapshot is the complete plaintext state of a single-mint Wallet. It is
// CBOR-encoded and AEAD-sealed by Save, and the reverse happens in Load;
// nothing outside this package ever sees it on disk unencrypted.
type Snapshot struct {
	MintURL         string              `cbor:"mint_url"`
	Unit            string              `cbor:"unit"`
	Proofs          cashu.Proofs        `cbor:"proofs"`
	ActiveKeyset    crypto.WalletKeyset `cbor:"active_keyset"`
	InactiveKeysets crypto.KeysetsMap   `cbor:"inactive_keysets"`
	MintQuotes      []MintQuote         `cbor:"mint_quotes"`
	MeltQuotes      []MeltQuote         `cbor:"melt_quotes"`
}

// MintQuote is the wallet's record of a mint quote it is tracking, keyed
// by the mint-assigned QuoteId.
type MintQuote struct {
	QuoteId        string
	PaymentRequest string
	Amount         uint64
	Unit           string
	State          nut04.State
	Expiry         int64
	// PrivateKey, if set, is the NUT-20 key this wallet must sign mint
	// outputs with to redeem the quote; Serialize()/PrivKeyFromBytes
	// round-trip it through the CBOR-encoded snapshot as raw bytes.
	PrivateKey []byte
}

// MeltQuote is the wallet's record of a melt quote it is tracking.
type MeltQuote struct {
	QuoteId        string
	PaymentRequest string
	Amount         uint64
	FeeReserve     uint64
	Unit           string
	State          nut05.State
	Expiry         int64
	Preimage       string
}
