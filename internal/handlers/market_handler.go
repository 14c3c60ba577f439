package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"matchpool/internal/auth"
	"matchpool/internal/models"
	"matchpool/internal/services"
)

// MarketHandler handles market endpoints
type MarketHandler struct {
	marketService *services.MarketService
}

func NewMarketHandler(marketService *services.MarketService) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// CreateMarket opens a new market for a fixture.
// POST /markets
func (h *MarketHandler) CreateMarket(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req models.CreateMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	market, err := h.marketService.CreateMarket(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"market": market})
}

// JoinMarket places a prediction on an open market.
// POST /markets/:id/join
func (h *MarketHandler) JoinMarket(c *gin.Context) {
	userID, exists := auth.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market id"})
		return
	}

	var req models.JoinMarketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	participant, err := h.marketService.JoinMarket(c.Request.Context(), userID, marketID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"participant": participant})
}

// GetMarket returns one market with its participants.
// GET /markets/:id
func (h *MarketHandler) GetMarket(c *gin.Context) {
	marketID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid market id"})
		return
	}

	market, participants, err := h.marketService.GetMarket(c.Request.Context(), marketID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"market":       market,
		"participants": participants,
	})
}

// ListMarkets returns markets, optionally filtered by status.
// GET /markets?status=SCHEDULED&limit=50&offset=0
func (h *MarketHandler) ListMarkets(c *gin.Context) {
	status := models.MarketStatus(c.Query("status"))
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	markets, err := h.marketService.ListMarkets(c.Request.Context(), status, limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"markets": markets,
		"count":   len(markets),
	})
}
