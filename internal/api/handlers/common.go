package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	domainerrors "github.com/takara-vaults/settlement_service/internal/domain/errors"
)

// respondError sends a standardized error response
func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, entities.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// respondBadRequest sends a bad request error
func respondBadRequest(c *gin.Context, message string, details ...map[string]interface{}) {
	var det map[string]interface{}
	if len(details) > 0 {
		det = details[0]
	}
	respondError(c, http.StatusBadRequest, "INVALID_REQUEST", message, det)
}

// respondInternalError sends an internal server error
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

// respondNotFound sends a not found error
func respondNotFound(c *gin.Context, message string) {
	respondError(c, http.StatusNotFound, "NOT_FOUND", message, nil)
}

// respondConflict sends a conflict error
func respondConflict(c *gin.Context, code, message string) {
	respondError(c, http.StatusConflict, code, message, nil)
}

// respondDomainError maps a domain error to its HTTP status and error code
func respondDomainError(c *gin.Context, err error) {
	code := domainerrors.GetErrorCode(err)

	switch {
	case domainerrors.IsNotFound(err):
		respondError(c, http.StatusNotFound, code, err.Error(), nil)
	case domainerrors.IsInvalidTransition(err):
		respondError(c, http.StatusConflict, code, err.Error(), nil)
	case domainerrors.IsStatusConflict(err):
		respondError(c, http.StatusConflict, code, err.Error(), nil)
	case domainerrors.IsHashAlreadyClaimed(err):
		respondError(c, http.StatusConflict, code, err.Error(), nil)
	case domainerrors.IsInvalidHash(err):
		respondError(c, http.StatusUnprocessableEntity, code, err.Error(), nil)
	case domainerrors.IsChainUnavailable(err):
		respondError(c, http.StatusServiceUnavailable, code, "Chain gateway temporarily unavailable", nil)
	case code == "VALIDATION_ERROR" || code == "INVALID_INPUT":
		respondError(c, http.StatusBadRequest, code, err.Error(), nil)
	default:
		respondInternalError(c, "Internal server error")
	}
}

// parseUUID parses a string to uuid.UUID
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("empty UUID string")
	}
	return uuid.Parse(s)
}

// formatTimePtr renders an optional timestamp for the wire
func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

// toInvestmentResponse converts an investment entity to its wire shape
func toInvestmentResponse(inv *entities.Investment) entities.InvestmentResponse {
	return entities.InvestmentResponse{
		ID:               inv.ID.String(),
		UserID:           inv.UserID.String(),
		VaultID:          inv.VaultID.String(),
		Amount:           inv.Amount.String(),
		Currency:         string(inv.Currency),
		PaymentChain:     string(inv.PaymentChain),
		TokenChain:       string(inv.TokenChain),
		WalletAddress:    inv.WalletAddress,
		Status:           string(inv.Status),
		USDTTxHash:       inv.USDTTxHash,
		TakaraTxHash:     inv.TakaraTxHash,
		LaikaTxHash:      inv.LaikaTxHash,
		NeedsReview:      inv.NeedsReview,
		ReviewReason:     inv.ReviewReason,
		Step1CompletedAt: formatTimePtr(inv.Step1CompletedAt),
		Step2CompletedAt: formatTimePtr(inv.Step2CompletedAt),
		CreatedAt:        inv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:        inv.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toVaultResponse converts a vault entity to its wire shape
func toVaultResponse(v *entities.Vault) entities.VaultResponse {
	return entities.VaultResponse{
		ID:            v.ID.String(),
		Name:          v.Name,
		MinimumAmount: v.MinimumAmount.String(),
		TakaraRatio:   v.TakaraRatio.String(),
		LaikaRatio:    v.LaikaRatio.String(),
	}
}
