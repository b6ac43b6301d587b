package entities

// ErrorResponse is the wire shape of every API error
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// InvestmentResponse is the wire shape of an investment snapshot
type InvestmentResponse struct {
	ID               string  `json:"id"`
	UserID           string  `json:"user_id"`
	VaultID          string  `json:"vault_id"`
	Amount           string  `json:"amount"`
	Currency         string  `json:"currency"`
	PaymentChain     string  `json:"payment_chain,omitempty"`
	TokenChain       string  `json:"token_chain"`
	WalletAddress    string  `json:"wallet_address"`
	Status           string  `json:"status"`
	USDTTxHash       *string `json:"usdt_tx_hash,omitempty"`
	TakaraTxHash     *string `json:"takara_tx_hash,omitempty"`
	LaikaTxHash      *string `json:"laika_tx_hash,omitempty"`
	NeedsReview      bool    `json:"needs_review"`
	ReviewReason     *string `json:"review_reason,omitempty"`
	Step1CompletedAt *string `json:"step1_completed_at,omitempty"`
	Step2CompletedAt *string `json:"step2_completed_at,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// VaultResponse is the wire shape of a vault listing entry
type VaultResponse struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MinimumAmount string `json:"minimum_amount"`
	TakaraRatio   string `json:"takara_ratio"`
	LaikaRatio    string `json:"laika_ratio"`
}
