package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"matchpool/internal/auth"
	"matchpool/internal/ledger"
	"matchpool/internal/services"
)

// SettlementHandler exposes the settlement engine's operational surface.
// Every route requires an admin user.
type SettlementHandler struct {
	orchestrator   *services.SettlementOrchestrator
	reconciliation *services.ReconciliationService
	ledgerService  *services.TransactionLedgerService
	auditService   *services.AuditService
	userService    *services.UserService
	gateway        *ledger.Gateway
}

func NewSettlementHandler(
	orchestrator *services.SettlementOrchestrator,
	reconciliation *services.ReconciliationService,
	ledgerService *services.TransactionLedgerService,
	auditService *services.AuditService,
	userService *services.UserService,
	gateway *ledger.Gateway,
) *SettlementHandler {
	return &SettlementHandler{
		orchestrator:   orchestrator,
		reconciliation: reconciliation,
		ledgerService:  ledgerService,
		auditService:   auditService,
		userService:    userService,
		gateway:        gateway,
	}
}

// requireAdmin loads the authenticated user and rejects non-admins.
func (h *SettlementHandler) requireAdmin(c *gin.Context) bool {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return false
	}
	user, err := h.userService.GetUserByID(c.Request.Context(), userID)
	if err != nil || !user.IsAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin access required"})
		return false
	}
	return true
}

// RunCycle triggers one settlement sweep immediately.
// POST /settlement/run
func (h *SettlementHandler) RunCycle(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	report, err := h.orchestrator.RunCycle(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// SettleMarket re-runs settlement for one resolved market, completing any
// payout legs that failed earlier.
// POST /settlement/markets/:id/settle
func (h *SettlementHandler) SettleMarket(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market id"})
		return
	}

	resolution, err := h.orchestrator.SettleMarket(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"resolution": resolution})
}

// GetMarketTransactions returns the full ledger of one market.
// GET /settlement/markets/:id/transactions
func (h *SettlementHandler) GetMarketTransactions(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market id"})
		return
	}

	txs, err := h.ledgerService.ListMarketTransactions(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txs,
		"count":        len(txs),
	})
}

// ReconcileUser reconciles one user's balance against the external service.
// POST /settlement/reconcile/:user_id
func (h *SettlementHandler) ReconcileUser(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	result, err := h.reconciliation.ReconcileUser(c.Request.Context(), uint(userID))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"result": result})
}

// ReconcileAll runs a full reconciliation sweep.
// POST /settlement/reconcile
func (h *SettlementHandler) ReconcileAll(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	report, err := h.reconciliation.ReconcileAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"report": report})
}

// GetAuditTrail returns recent settlement events, both the in-memory window
// and the durable rows.
// GET /settlement/audit?limit=100
func (h *SettlementHandler) GetAuditTrail(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	limit := intQuery(c, "limit", 100)
	trail, err := h.auditService.Trail(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recent": h.auditService.Recent(),
		"trail":  trail,
	})
}

// Health reports the engine's dependency state.
// GET /settlement/health
func (h *SettlementHandler) Health(c *gin.Context) {
	state := h.gateway.BreakerState()
	status := http.StatusOK
	if state == ledger.BreakerOpen {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"breaker": state,
	})
}
