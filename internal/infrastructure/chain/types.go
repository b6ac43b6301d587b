package chain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
)

// Transaction is the gateway's view of a single transfer
type Transaction struct {
	Hash      string          `json:"hash"`
	Confirmed bool            `json:"confirmed"`
	Reverted  bool            `json:"reverted"`
	Amount    decimal.Decimal `json:"amount"`
	Token     string          `json:"token"`
	Recipient string          `json:"recipient"`
	Sender    string          `json:"sender"`
	BlockTime time.Time       `json:"block_time"`
}

// Evidence converts the gateway response into settlement evidence
func (t *Transaction) Evidence(chain entities.Chain) *entities.Evidence {
	observed := t.BlockTime
	if observed.IsZero() {
		observed = time.Now().UTC()
	}
	return &entities.Evidence{
		Chain:      chain,
		TxHash:     t.Hash,
		Confirmed:  t.Confirmed,
		Reverted:   t.Reverted,
		Amount:     t.Amount,
		Token:      entities.TokenSymbol(t.Token),
		Recipient:  t.Recipient,
		Sender:     t.Sender,
		ObservedAt: observed,
	}
}

// balanceResponse is the gateway's balance payload
type balanceResponse struct {
	Address string          `json:"address"`
	Token   string          `json:"token"`
	Balance decimal.Decimal `json:"balance"`
}

// errorResponse is the gateway's error payload
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
