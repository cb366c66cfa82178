package handlers

import (
	"errors"
	"net/http"

	"pictionary/game"
	"pictionary/middlewares"
	"pictionary/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ChatRequest struct {
	Text string `json:"text"`
}

func SubmitChat(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	var request ChatRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bad_request", "error": "Invalid request body"})
		return
	}
	out, err := engine.SubmitChat(c.Request.Context(), claims.SessionID, claims.PlayerID, request.Text)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "correct": out.Correct, "settled": out.Settled})
}

// Draw appends a stroke. Strokes from anyone but the drawer are dropped without an error.
func Draw(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	var stroke models.StrokeEvent
	if err := c.ShouldBindJSON(&stroke); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "bad_request", "error": "Invalid request body"})
		return
	}
	err := engine.Draw(c.Request.Context(), claims.SessionID, claims.PlayerID, stroke)
	respondDrawing(c, logger, err)
}

func ClearCanvas(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	err := engine.ClearCanvas(c.Request.Context(), claims.SessionID, claims.PlayerID)
	respondDrawing(c, logger, err)
}

func respondDrawing(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	case errors.Is(err, game.ErrNotYourTurn):
		logger.Debug("Ignoring drawing from non-drawer", zap.String("path", c.FullPath()))
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
	default:
		writeError(c, logger, err)
	}
}
