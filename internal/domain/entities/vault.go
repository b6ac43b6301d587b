package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Vault is the read-only product configuration consulted by settlement
// guards. A ratio of zero means the token is not part of the vault's reward.
type Vault struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	MinimumAmount decimal.Decimal `db:"minimum_amount" json:"minimum_amount"`
	TakaraRatio   decimal.Decimal `db:"takara_ratio" json:"takara_ratio"`
	LaikaRatio    decimal.Decimal `db:"laika_ratio" json:"laika_ratio"`
	Active        bool            `db:"active" json:"active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// RewardRatio returns the reward ratio for a token
func (v *Vault) RewardRatio(token TokenSymbol) decimal.Decimal {
	switch token {
	case TokenTAKARA:
		return v.TakaraRatio
	case TokenLAIKA:
		return v.LaikaRatio
	default:
		return decimal.Zero
	}
}

// RequiredTokens lists the reward tokens this vault disburses
func (v *Vault) RequiredTokens() []TokenSymbol {
	var tokens []TokenSymbol
	if v.TakaraRatio.IsPositive() {
		tokens = append(tokens, TokenTAKARA)
	}
	if v.LaikaRatio.IsPositive() {
		tokens = append(tokens, TokenLAIKA)
	}
	return tokens
}

// Requires reports whether the vault disburses the given token
func (v *Vault) Requires(token TokenSymbol) bool {
	return v.RewardRatio(token).IsPositive()
}

// Entitlement computes the reward amount owed for a token on a principal
func (v *Vault) Entitlement(token TokenSymbol, principal decimal.Decimal) decimal.Decimal {
	return principal.Mul(v.RewardRatio(token))
}
