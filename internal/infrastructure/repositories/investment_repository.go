package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
)

const investmentColumns = `
	id, user_id, vault_id, amount, currency, payment_chain, token_chain,
	wallet_address, status, usdt_tx_hash, takara_tx_hash, laika_tx_hash,
	takara_verified_at, laika_verified_at, step1_completed_at, step2_completed_at,
	needs_review, review_reason, created_at, updated_at
	`

// InvestmentRepository persists investment records. Status mutation happens
// only through UpdateWithStatusCheck so the status column is the atomic
// commit point for settlement transitions.
type InvestmentRepository struct {
	db *sqlx.DB
}

// NewInvestmentRepository creates a new investment repository
func NewInvestmentRepository(db *sqlx.DB) *InvestmentRepository {
	return &InvestmentRepository{db: db}
}

// Create creates a new investment
func (r *InvestmentRepository) Create(ctx context.Context, inv *entities.Investment) error {
	query := `
		INSERT INTO investments (
			id, user_id, vault_id, amount, currency, payment_chain, token_chain,
			wallet_address, status, usdt_tx_hash, takara_tx_hash, laika_tx_hash,
			takara_verified_at, laika_verified_at, step1_completed_at, step2_completed_at,
			needs_review, review_reason, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		inv.ID,
		inv.UserID,
		inv.VaultID,
		inv.Amount,
		inv.Currency,
		inv.PaymentChain,
		inv.TokenChain,
		inv.WalletAddress,
		inv.Status,
		inv.USDTTxHash,
		inv.TakaraTxHash,
		inv.LaikaTxHash,
		inv.TakaraVerifiedAt,
		inv.LaikaVerifiedAt,
		inv.Step1CompletedAt,
		inv.Step2CompletedAt,
		inv.NeedsReview,
		inv.ReviewReason,
		inv.CreatedAt,
		inv.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}

	return nil
}

// GetByID retrieves an investment by ID
func (r *InvestmentRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Investment, error) {
	query := `SELECT` + investmentColumns + `FROM investments WHERE id = $1`

	var inv entities.Investment
	err := r.db.GetContext(ctx, &inv, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("investment")
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}

	return &inv, nil
}

// GetByPaymentTxHash retrieves the investment that claimed a payment hash.
// Used to enforce that a hash belongs to at most one investment.
func (r *InvestmentRepository) GetByPaymentTxHash(ctx context.Context, txHash string) (*entities.Investment, error) {
	query := `SELECT` + investmentColumns + `FROM investments WHERE usdt_tx_hash = $1`

	var inv entities.Investment
	err := r.db.GetContext(ctx, &inv, query, txHash)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("investment")
		}
		return nil, fmt.Errorf("failed to get investment by tx hash: %w", err)
	}

	return &inv, nil
}

// ListSettling retrieves investments in an intermediate settlement status,
// oldest first, for the reconciler sweep
func (r *InvestmentRepository) ListSettling(ctx context.Context, limit int) ([]*entities.Investment, error) {
	query := `
		SELECT` + investmentColumns + `
		FROM investments
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
		LIMIT $3
	`

	var investments []*entities.Investment
	err := r.db.SelectContext(ctx, &investments, query,
		entities.StatusPendingUSDT, entities.StatusPendingTokens, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list settling investments: %w", err)
	}

	return investments, nil
}

// ListByUserID retrieves all investments for a user
func (r *InvestmentRepository) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*entities.Investment, error) {
	query := `
		SELECT` + investmentColumns + `
		FROM investments
		WHERE user_id = $1
		ORDER BY created_at DESC
	`

	var investments []*entities.Investment
	err := r.db.SelectContext(ctx, &investments, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}

	return investments, nil
}

// UpdateWithStatusCheck writes the investment's mutable fields only if its
// stored status still equals expectedStatus. Zero rows affected means the
// record either vanished or moved while we held a stale read; the two cases
// are surfaced distinctly.
func (r *InvestmentRepository) UpdateWithStatusCheck(ctx context.Context, inv *entities.Investment, expectedStatus entities.InvestmentStatus) error {
	query := `
		UPDATE investments
		SET status = $3,
			payment_chain = $4,
			usdt_tx_hash = $5,
			takara_tx_hash = $6,
			laika_tx_hash = $7,
			takara_verified_at = $8,
			laika_verified_at = $9,
			step1_completed_at = $10,
			step2_completed_at = $11,
			needs_review = $12,
			review_reason = $13,
			updated_at = $14
		WHERE id = $1 AND status = $2
	`

	inv.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, query,
		inv.ID,
		expectedStatus,
		inv.Status,
		inv.PaymentChain,
		inv.USDTTxHash,
		inv.TakaraTxHash,
		inv.LaikaTxHash,
		inv.TakaraVerifiedAt,
		inv.LaikaVerifiedAt,
		inv.Step1CompletedAt,
		inv.Step2CompletedAt,
		inv.NeedsReview,
		inv.ReviewReason,
		inv.UpdatedAt,
	)
	if err != nil {
		// The partial unique index on usdt_tx_hash catches a payment hash
		// claimed by another investment in the window between the service's
		// lookup and this write
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			hash := ""
			if inv.USDTTxHash != nil {
				hash = *inv.USDTTxHash
			}
			return domainerrors.HashAlreadyClaimedError(hash)
		}
		return fmt.Errorf("failed to update investment: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM investments WHERE id = $1)`, inv.ID); err != nil {
			return fmt.Errorf("failed to check investment existence: %w", err)
		}
		if !exists {
			return domainerrors.NotFoundError("investment")
		}
		return domainerrors.StatusConflictError(string(expectedStatus), "investment")
	}

	return nil
}
