package handlers

import (
	"context"
	"net/http"
	"strconv"

	"pictionary/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultResultLimit = 20
	maxResultLimit     = 100
)

// ResultLister reads the archive of finished games.
type ResultLister interface {
	LatestResults(ctx context.Context, limit int) ([]models.GameResult, error)
}

// ListResults returns the latest finished games. Without an archive the list is empty.
func ListResults(c *gin.Context, results ResultLister, logger *zap.Logger) {
	limit := defaultResultLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"status": "bad_request", "error": "limit must be a positive number"})
			return
		}
		if n > maxResultLimit {
			n = maxResultLimit
		}
		limit = n
	}

	if results == nil {
		c.JSON(http.StatusOK, gin.H{"status": "success", "results": []models.GameResult{}})
		return
	}
	list, err := results.LatestResults(c.Request.Context(), limit)
	if err != nil {
		logger.Error("Failed to load game results", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "internal_error", "error": "Failed to load results"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "results": list})
}
