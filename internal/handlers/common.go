package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gorm.io/gorm"

	"matchpool/internal/ledger"
	"matchpool/internal/services"
)

func intQuery(c *gin.Context, key string, fallback int) int {
	if raw := c.Query(key); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			return parsed
		}
	}
	return fallback
}

// respondError maps service failures onto HTTP statuses by their ledger
// classification.
func respondError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrReconciliationInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}

	switch ledger.KindOf(err) {
	case ledger.KindValidation:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case ledger.KindCircuitOpen:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case ledger.KindConfiguration:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	}
}
