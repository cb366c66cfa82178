package handlers

import (
	"pictionary/game"
	"pictionary/middlewares"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupRoutes は各HTTPリクエストのルーティングを登録します。
func SetupRoutes(router *gin.Engine, engine *game.Engine, issuer *middlewares.TokenIssuer, results ResultLister, logger *zap.Logger) {
	router.POST("/sessions", func(c *gin.Context) {
		CreateSession(c, engine, issuer, logger)
	})
	router.POST("/sessions/:id/join", func(c *gin.Context) {
		JoinSession(c, engine, issuer, logger)
	})
	router.GET("/results", func(c *gin.Context) {
		ListResults(c, results, logger)
	})

	player := router.Group("/sessions/:id", middlewares.AuthMiddleware(issuer, logger))
	player.GET("", func(c *gin.Context) {
		GetSession(c, engine, logger)
	})
	player.POST("/start", func(c *gin.Context) {
		StartGame(c, engine, logger)
	})
	player.POST("/leave", func(c *gin.Context) {
		LeaveSession(c, engine, logger)
	})
	player.POST("/play-again", func(c *gin.Context) {
		PlayAgain(c, engine, logger)
	})
	player.POST("/chat", func(c *gin.Context) {
		SubmitChat(c, engine, logger)
	})
	player.POST("/draw", func(c *gin.Context) {
		Draw(c, engine, logger)
	})
	player.POST("/clear", func(c *gin.Context) {
		ClearCanvas(c, engine, logger)
	})
	player.POST("/heartbeat", func(c *gin.Context) {
		Heartbeat(c, engine, logger)
	})
}
