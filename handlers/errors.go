package handlers

import (
	"errors"
	"net/http"

	"pictionary/game"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrSessionNotFound), errors.Is(err, game.ErrPlayerNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrNotHost), errors.Is(err, game.ErrNotYourTurn):
		return http.StatusForbidden
	case errors.Is(err, game.ErrInsufficientPlayers), errors.Is(err, game.ErrWrongPhase):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	code, status := httpStatus(err), game.ErrorCode(err)
	if code == http.StatusInternalServerError {
		logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(code, gin.H{"status": status, "error": "Internal server error"})
		return
	}
	logger.Info("Request rejected", zap.String("path", c.FullPath()), zap.String("status", status))
	c.JSON(code, gin.H{"status": status, "error": err.Error()})
}
