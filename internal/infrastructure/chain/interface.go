package chain

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
)

// Reader defines the chain lookup operations the settlement core consumes
type Reader interface {
	// GetTransaction looks up a transaction by hash. Fails with ErrTxNotFound
	// when the chain has no record of it and ErrUnavailable on transport error.
	GetTransaction(ctx context.Context, chain entities.Chain, hash string) (*Transaction, error)

	// GetTokenBalance returns the token balance of an address. An empty token
	// reads the native coin balance. Fails with ErrAddressNotFound when the
	// gateway does not index the address.
	GetTokenBalance(ctx context.Context, chain entities.Chain, address string, token entities.TokenSymbol) (decimal.Decimal, error)
}

// Ensure Client implements Reader
var _ Reader = (*Client)(nil)
