package handlers

import (
	"net/http"

	"pictionary/game"
	"pictionary/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// JoinRequest はセッション作成・参加リクエストのボディです。
type JoinRequest struct {
	Name        string `json:"name"`
	CallerToken string `json:"callerToken"` // タブごとに固定のトークン。再読み込み時の重複参加を防ぐ
}

// CreateSession creates a session and joins its first player, who becomes host.
func CreateSession(c *gin.Context, engine *game.Engine, issuer *middlewares.TokenIssuer, logger *zap.Logger) {
	join(c, "", engine, issuer, logger)
}

// JoinSession joins the session named in the path.
func JoinSession(c *gin.Context, engine *game.Engine, issuer *middlewares.TokenIssuer, logger *zap.Logger) {
	join(c, c.Param("id"), engine, issuer, logger)
}

func join(c *gin.Context, sessionID string, engine *game.Engine, issuer *middlewares.TokenIssuer, logger *zap.Logger) {
	var request JoinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		logger.Info("Request binding error", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"status": "bad_request", "error": "Invalid request body"})
		return
	}

	res, err := engine.Join(c.Request.Context(), game.JoinRequest{
		Name:        request.Name,
		SessionID:   sessionID,
		CallerToken: request.CallerToken,
	})
	if err != nil {
		writeError(c, logger, err)
		return
	}

	token, err := issuer.GenerateToken(res.SessionID, res.PlayerID, request.CallerToken)
	if err != nil {
		writeError(c, logger, err)
		return
	}

	status := http.StatusOK
	if sessionID == "" {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"status":    "joined",
		"sessionId": res.SessionID,
		"playerId":  res.PlayerID,
		"token":     token,
		"session":   game.View(res.Session, res.PlayerID),
	})
}

// GetSession returns the caller's view of the session.
func GetSession(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	s, err := engine.Session(c.Request.Context(), claims.SessionID)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	if !s.HasPlayer(claims.PlayerID) {
		writeError(c, logger, game.ErrPlayerNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "session": game.View(s, claims.PlayerID)})
}

func StartGame(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	s, err := engine.StartGame(c.Request.Context(), claims.SessionID, claims.PlayerID)
	if err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "started", "session": game.View(s, claims.PlayerID)})
}

func LeaveSession(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	if _, err := engine.Leave(c.Request.Context(), claims.SessionID, claims.PlayerID); err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func PlayAgain(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	if _, err := engine.PlayAgain(c.Request.Context(), claims.SessionID, claims.PlayerID); err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "left"})
}

func Heartbeat(c *gin.Context, engine *game.Engine, logger *zap.Logger) {
	claims := middlewares.ClaimsFromContext(c)
	if err := engine.Heartbeat(c.Request.Context(), claims.SessionID, claims.PlayerID); err != nil {
		writeError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
