package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/takara-vaults/settlement_service/internal/domain/entities"
	"github.com/takara-vaults/settlement_service/internal/domain/settlement"
	"github.com/takara-vaults/settlement_service/pkg/logger"
)

// SettlementHandlers handles investment settlement API endpoints
type SettlementHandlers struct {
	settlementSvc *settlement.Service
	logger        *logger.Logger
}

func NewSettlementHandlers(settlementSvc *settlement.Service, logger *logger.Logger) *SettlementHandlers {
	return &SettlementHandlers{
		settlementSvc: settlementSvc,
		logger:        logger,
	}
}

// CreateInvestment opens a new investment in AWAITING_PAYMENT
// POST /api/v1/investments
func (h *SettlementHandlers) CreateInvestment(c *gin.Context) {
	var req struct {
		UserID        string `json:"user_id" binding:"required"`
		VaultID       string `json:"vault_id" binding:"required"`
		Amount        string `json:"amount" binding:"required"`
		WalletAddress string `json:"wallet_address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request", map[string]interface{}{"error": err.Error()})
		return
	}

	userID, err := parseUUID(req.UserID)
	if err != nil {
		respondBadRequest(c, "Invalid user_id", nil)
		return
	}
	vaultID, err := parseUUID(req.VaultID)
	if err != nil {
		respondBadRequest(c, "Invalid vault_id", nil)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		respondBadRequest(c, "Invalid amount", nil)
		return
	}

	inv, err := h.settlementSvc.CreateInvestment(c.Request.Context(), userID, vaultID, amount, req.WalletAddress)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toInvestmentResponse(inv))
}

// SubmitPayment records the user's stablecoin payment transaction hash
// POST /api/v1/investments/:id/payment
func (h *SettlementHandlers) SubmitPayment(c *gin.Context) {
	investmentID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid investment ID", nil)
		return
	}

	var req struct {
		TxHash string `json:"tx_hash" binding:"required"`
		Chain  string `json:"chain" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request", map[string]interface{}{"error": err.Error()})
		return
	}

	chainID := entities.Chain(req.Chain)
	if !chainID.IsPaymentChain() {
		respondBadRequest(c, "Unsupported payment chain", map[string]interface{}{"chain": req.Chain})
		return
	}

	inv, err := h.settlementSvc.SubmitPayment(c.Request.Context(), investmentID, req.TxHash, chainID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvestmentResponse(inv))
}

// SubmitDisbursement records a reward-token transaction hash reported by the
// minting workflow
// POST /api/v1/investments/:id/disbursement
func (h *SettlementHandlers) SubmitDisbursement(c *gin.Context) {
	investmentID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid investment ID", nil)
		return
	}

	var req struct {
		Token  string `json:"token" binding:"required"`
		TxHash string `json:"tx_hash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request", map[string]interface{}{"error": err.Error()})
		return
	}

	token := entities.TokenSymbol(req.Token)
	if token != entities.TokenTAKARA && token != entities.TokenLAIKA {
		respondBadRequest(c, "Unsupported reward token", map[string]interface{}{"token": req.Token})
		return
	}

	inv, err := h.settlementSvc.SubmitDisbursement(c.Request.Context(), investmentID, token, req.TxHash)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvestmentResponse(inv))
}

// GetStatus returns the current settlement snapshot of an investment
// GET /api/v1/investments/:id/status
func (h *SettlementHandlers) GetStatus(c *gin.Context) {
	investmentID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid investment ID", nil)
		return
	}

	inv, err := h.settlementSvc.GetStatus(c.Request.Context(), investmentID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvestmentResponse(inv))
}

// ListVaults returns the vaults currently open for investment
// GET /api/v1/vaults
func (h *SettlementHandlers) ListVaults(c *gin.Context) {
	vaults, err := h.settlementSvc.ListVaults(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list vaults", "error", err)
		respondInternalError(c, "Failed to list vaults")
		return
	}

	resp := make([]entities.VaultResponse, 0, len(vaults))
	for _, v := range vaults {
		resp = append(resp, toVaultResponse(v))
	}
	c.JSON(http.StatusOK, gin.H{"vaults": resp})
}

// ListUserInvestments returns all investments for a user, newest first
// GET /api/v1/users/:id/investments
func (h *SettlementHandlers) ListUserInvestments(c *gin.Context) {
	userID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid user ID", nil)
		return
	}

	investments, err := h.settlementSvc.ListUserInvestments(c.Request.Context(), userID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	resp := make([]entities.InvestmentResponse, 0, len(investments))
	for _, inv := range investments {
		resp = append(resp, toInvestmentResponse(inv))
	}
	c.JSON(http.StatusOK, gin.H{"investments": resp})
}

// Reconcile runs an on-demand sweep of one investment
// POST /api/v1/investments/:id/reconcile
func (h *SettlementHandlers) Reconcile(c *gin.Context) {
	investmentID, err := parseUUID(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "Invalid investment ID", nil)
		return
	}

	if err := h.settlementSvc.ForceReconcile(c.Request.Context(), investmentID); err != nil {
		h.logger.Error("On-demand reconcile failed", "investment_id", investmentID, "error", err)
		respondDomainError(c, err)
		return
	}

	inv, err := h.settlementSvc.GetStatus(c.Request.Context(), investmentID)
	if err != nil {
		respondDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, toInvestmentResponse(inv))
}
