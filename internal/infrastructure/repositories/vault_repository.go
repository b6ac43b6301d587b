package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
)

// VaultRepository reads vault product configuration. The settlement core
// never mutates vaults.
type VaultRepository struct {
	db *sqlx.DB
}

// NewVaultRepository creates a new vault repository
func NewVaultRepository(db *sqlx.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// GetByID retrieves a vault by ID
func (r *VaultRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Vault, error) {
	query := `
		SELECT id, name, minimum_amount, takara_ratio, laika_ratio, active, created_at
		FROM vaults
		WHERE id = $1
	`

	var vault entities.Vault
	err := r.db.GetContext(ctx, &vault, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domainerrors.NotFoundError("vault")
		}
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}

	return &vault, nil
}

// ListActive retrieves all active vaults
func (r *VaultRepository) ListActive(ctx context.Context) ([]*entities.Vault, error) {
	query := `
		SELECT id, name, minimum_amount, takara_ratio, laika_ratio, active, created_at
		FROM vaults
		WHERE active = true
		ORDER BY name
	`

	var vaults []*entities.Vault
	err := r.db.SelectContext(ctx, &vaults, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list vaults: %w", err)
	}

	return vaults, nil
}
