package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// Evidence is a single observed, chain-sourced fact about a transaction.
// It is transient: the settlement core never persists evidence, only the
// transitions it justifies.
type Evidence struct {
	Chain      Chain
	TxHash     string
	Confirmed  bool
	Reverted   bool
	Amount     decimal.Decimal
	Token      TokenSymbol
	Recipient  string
	Sender     string
	ObservedAt time.Time
}

// MatchesHash reports whether the evidence refers to the given hash,
// comparing in the chain's canonical form
func (e *Evidence) MatchesHash(hash string) bool {
	return e.Chain.NormalizeTxHash(e.TxHash) == e.Chain.NormalizeTxHash(hash)
}

// PaysTo reports whether the evidence recipient is the given address,
// comparing in the chain's canonical form
func (e *Evidence) PaysTo(address string) bool {
	return e.Chain.NormalizeAddress(e.Recipient) == e.Chain.NormalizeAddress(address)
}
