package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Investment is the authoritative record of one user's stake in a vault
// across both settlement steps. Status is the single source of truth for
// progress; evidence fields are written at most once and never cleared.
type Investment struct {
	ID      uuid.UUID `db:"id" json:"id"`
	UserID  uuid.UUID `db:"user_id" json:"user_id"`
	VaultID uuid.UUID `db:"vault_id" json:"vault_id"`

	Amount   decimal.Decimal `db:"amount" json:"amount"`
	Currency TokenSymbol     `db:"currency" json:"currency"`

	// PaymentChain is the chain the stablecoin was paid on; immutable once
	// payment evidence is recorded. TokenChain is fixed to Solana.
	PaymentChain Chain `db:"payment_chain" json:"payment_chain"`
	TokenChain   Chain `db:"token_chain" json:"token_chain"`

	// WalletAddress is the user's reward-token recipient address on TokenChain
	WalletAddress string `db:"wallet_address" json:"wallet_address"`

	Status InvestmentStatus `db:"status" json:"status"`

	USDTTxHash   *string `db:"usdt_tx_hash" json:"usdt_tx_hash,omitempty"`
	TakaraTxHash *string `db:"takara_tx_hash" json:"takara_tx_hash,omitempty"`
	LaikaTxHash  *string `db:"laika_tx_hash" json:"laika_tx_hash,omitempty"`

	TakaraVerifiedAt *time.Time `db:"takara_verified_at" json:"takara_verified_at,omitempty"`
	LaikaVerifiedAt  *time.Time `db:"laika_verified_at" json:"laika_verified_at,omitempty"`

	Step1CompletedAt *time.Time `db:"step1_completed_at" json:"step1_completed_at,omitempty"`
	Step2CompletedAt *time.Time `db:"step2_completed_at" json:"step2_completed_at,omitempty"`

	// NeedsReview flags evidence that neither passed a guard nor failed the
	// investment (e.g. underpayment); resolved by an operator
	NeedsReview  bool    `db:"needs_review" json:"needs_review"`
	ReviewReason *string `db:"review_reason" json:"review_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NewInvestment creates an investment in the initial awaiting-payment status
func NewInvestment(userID, vaultID uuid.UUID, amount decimal.Decimal, walletAddress string) *Investment {
	now := time.Now().UTC()
	return &Investment{
		ID:            uuid.New(),
		UserID:        userID,
		VaultID:       vaultID,
		Amount:        amount,
		Currency:      TokenUSDT,
		TokenChain:    RewardChain,
		WalletAddress: walletAddress,
		Status:        StatusAwaitingPayment,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// RewardTxHash returns the recorded disbursement hash for a reward token
func (i *Investment) RewardTxHash(token TokenSymbol) *string {
	switch token {
	case TokenTAKARA:
		return i.TakaraTxHash
	case TokenLAIKA:
		return i.LaikaTxHash
	default:
		return nil
	}
}

// SetRewardTxHash records a disbursement hash for a reward token. It returns
// false if the slot is already occupied; a recorded hash is never overwritten.
func (i *Investment) SetRewardTxHash(token TokenSymbol, hash string) bool {
	switch token {
	case TokenTAKARA:
		if i.TakaraTxHash != nil {
			return *i.TakaraTxHash == hash
		}
		i.TakaraTxHash = &hash
		return true
	case TokenLAIKA:
		if i.LaikaTxHash != nil {
			return *i.LaikaTxHash == hash
		}
		i.LaikaTxHash = &hash
		return true
	default:
		return false
	}
}

// RewardVerifiedAt returns the verification time for a reward token
func (i *Investment) RewardVerifiedAt(token TokenSymbol) *time.Time {
	switch token {
	case TokenTAKARA:
		return i.TakaraVerifiedAt
	case TokenLAIKA:
		return i.LaikaVerifiedAt
	default:
		return nil
	}
}

// MarkRewardVerified records the verification time for a reward token,
// keeping the first observation if already set
func (i *Investment) MarkRewardVerified(token TokenSymbol, at time.Time) {
	switch token {
	case TokenTAKARA:
		if i.TakaraVerifiedAt == nil {
			i.TakaraVerifiedAt = &at
		}
	case TokenLAIKA:
		if i.LaikaVerifiedAt == nil {
			i.LaikaVerifiedAt = &at
		}
	}
}

// AllRewardsVerified reports whether every token the vault requires has
// verified disbursement evidence
func (i *Investment) AllRewardsVerified(vault *Vault) bool {
	for _, token := range vault.RequiredTokens() {
		if i.RewardVerifiedAt(token) == nil {
			return false
		}
	}
	return true
}

// FlagForReview marks the investment for operator attention without changing
// its status. The first reason recorded wins.
func (i *Investment) FlagForReview(reason string) {
	if i.NeedsReview {
		return
	}
	i.NeedsReview = true
	i.ReviewReason = &reason
}
