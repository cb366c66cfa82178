package middlewares

import (
	"net/http"
	"strings"

	"pictionary/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const claimsKey = "playerClaims"

// TokenFromRequest は Authorization ヘッダー、なければ token クエリからトークンを取り出します。
// ブラウザの WebSocket はヘッダーを付けられないためクエリも受け付けます。
func TokenFromRequest(c *gin.Context) string {
	tokenString := c.GetHeader("Authorization")
	if strings.HasPrefix(tokenString, "Bearer ") {
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")
	}
	if tokenString == "" {
		tokenString = c.Query("token")
	}
	return tokenString
}

// AuthMiddleware validates the player token. On routes with an :id parameter the
// token must belong to that session.
func AuthMiddleware(issuer *TokenIssuer, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := TokenFromRequest(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "error": "Token is required"})
			return
		}

		claims, err := issuer.ParseToken(tokenString)
		if err != nil {
			logger.Warn("認証失敗", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"status": "unauthorized", "error": "Unauthorized"})
			return
		}

		if id := c.Param("id"); id != "" && !strings.EqualFold(id, claims.SessionID) {
			logger.Warn("他のセッションへのアクセス", zap.String("sessionID", id), zap.String("tokenSessionID", claims.SessionID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"status": "forbidden", "error": "Token belongs to another session"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// ClaimsFromContext returns the claims stored by AuthMiddleware.
func ClaimsFromContext(c *gin.Context) *models.PlayerClaims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*models.PlayerClaims)
	return claims
}
