package entities

import (
	"regexp"
	"strings"
)

// Chain identifies a supported blockchain network
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainTron     Chain = "tron"
	ChainBSC      Chain = "bsc"
	ChainSolana   Chain = "solana"
)

// PaymentChains are the chains on which stablecoin payments are accepted
var PaymentChains = map[Chain]bool{
	ChainEthereum: true,
	ChainTron:     true,
	ChainBSC:      true,
}

// RewardChain is the chain on which reward tokens are disbursed.
// Fixed by product design.
const RewardChain = ChainSolana

// TokenSymbol identifies a token handled by the platform
type TokenSymbol string

const (
	TokenUSDT   TokenSymbol = "USDT"
	TokenTAKARA TokenSymbol = "TAKARA"
	TokenLAIKA  TokenSymbol = "LAIKA"
)

// NativeMarker is the token slot used for native-coin balances in cache keys
const NativeMarker TokenSymbol = "NATIVE"

var (
	evmTxHashRe    = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	tronTxHashRe   = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)
	solanaTxHashRe = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{43,88}$`)
	evmAddressRe   = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	tronAddressRe  = regexp.MustCompile(`^T[1-9A-HJ-NP-Za-km-z]{33}$`)
	base58Re       = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// IsValid reports whether the chain is supported
func (c Chain) IsValid() bool {
	return PaymentChains[c] || c == ChainSolana
}

// IsPaymentChain reports whether stablecoin payments are accepted on the chain
func (c Chain) IsPaymentChain() bool {
	return PaymentChains[c]
}

// ValidTxHash reports whether hash is syntactically valid for the chain
func (c Chain) ValidTxHash(hash string) bool {
	switch c {
	case ChainEthereum, ChainBSC:
		return evmTxHashRe.MatchString(hash)
	case ChainTron:
		return tronTxHashRe.MatchString(hash)
	case ChainSolana:
		return solanaTxHashRe.MatchString(hash)
	default:
		return false
	}
}

// ValidAddress reports whether addr is syntactically valid for the chain
func (c Chain) ValidAddress(addr string) bool {
	switch c {
	case ChainEthereum, ChainBSC:
		return evmAddressRe.MatchString(addr)
	case ChainTron:
		return tronAddressRe.MatchString(addr)
	case ChainSolana:
		return base58Re.MatchString(addr)
	default:
		return false
	}
}

// NormalizeAddress canonicalizes an address for comparison and cache keys.
// EVM hex addresses are case-insensitive and lowered; TRON and Solana base58
// addresses are case-sensitive and kept verbatim.
func (c Chain) NormalizeAddress(addr string) string {
	switch c {
	case ChainEthereum, ChainBSC:
		return strings.ToLower(addr)
	default:
		return addr
	}
}

// NormalizeTxHash canonicalizes a transaction hash the same way
func (c Chain) NormalizeTxHash(hash string) string {
	switch c {
	case ChainEthereum, ChainBSC, ChainTron:
		return strings.ToLower(hash)
	default:
		return hash
	}
}
