package main

import (
	"time"

	"go.uber.org/zap"

	"pictionary/database"    //設定、PostgreSQLとRedisの初期化
	"pictionary/game"        //Pictionary のゲームロジック
	"pictionary/handlers"    //HTTP API のルーティング
	"pictionary/middlewares" //プレイヤートークン
	"pictionary/realtime"    //WebSocket によるリアルタイム同期
	"pictionary/store"       //共有セッションストア
	"pictionary/utils"       //ロガーの初期化とCronジョブ

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func main() {
	logger, err := utils.InitLogger() // ロガーの初期化
	if err != nil {
		panic(err) // 失敗した場合はプログラム停止
	}
	defer logger.Sync() // ロガーのクリーンアップ

	config, err := database.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("設定ファイルの読み込みに失敗しました", zap.Error(err))
	}

	// Redis が設定されていればサーバー間で共有、なければインメモリで動作
	var st store.Store
	if config.Redis.Addr != "" {
		rdb, err := database.InitRedis(config.Redis, logger)
		if err != nil {
			logger.Fatal("Failed to initialize Redis", zap.Error(err))
		}
		defer rdb.Close()
		st = store.NewRedisStore(rdb, config.Redis, logger)
	} else {
		logger.Warn("REDIS_ADDR is not set, using the in-memory session store")
		st = store.NewMemoryStore(logger)
	}
	defer st.Close()

	// 対戦結果の保存は PostgreSQL が設定されている場合のみ
	var (
		results handlers.ResultLister
		pruner  utils.ResultPruner
		opts    []game.Option
	)
	if database.HasPostgres(config) {
		db, err := database.InitPostgreSQL(config, logger)
		if err != nil {
			logger.Fatal("PostgreSQLの初期化に失敗しました", zap.Error(err))
		}
		if err := database.AutoMigrate(db); err != nil {
			logger.Fatal("マイグレーションに失敗しました", zap.Error(err))
		}
		repo := database.NewResultRepository(db, logger)
		results, pruner = repo, repo
		opts = append(opts, game.WithRecorder(repo))
	}

	engine := game.NewEngine(st, config.Game, logger, opts...)
	if config.Server.JWTSecret == "" {
		// 再起動すると既存のトークンは無効になる
		logger.Warn("JWT_SECRET is not set, generating a temporary secret")
		config.Server.JWTSecret = uuid.NewString()
	}
	issuer := middlewares.NewTokenIssuer(config.Server.JWTSecret, config.Server.TokenTTL.Std())

	// クーロンスケジューラのセットアップ
	scheduler, err := utils.CronCleaner(engine, pruner, config.Cron, logger)
	if err != nil {
		logger.Fatal("Cronジョブの登録に失敗しました", zap.Error(err))
	}
	defer scheduler.Stop()

	router := gin.New()
	//リクエストロガーを起動
	router.Use(gin.Recovery(), utils.RequestLogger(logger))

	//CORS（Cross-Origin Resource Sharing）ポリシーを設定
	router.Use(cors.New(cors.Config{
		AllowOrigins:     config.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	//各HTTPリクエストのルーティング
	handlers.SetupRoutes(router, engine, issuer, results, logger)
	ws := realtime.NewServer(engine, issuer, config.Server, logger)
	router.GET("/ws", ws.HandleConnections)

	logger.Info("Starting server", zap.String("addr", config.Server.Addr))
	if err := router.Run(config.Server.Addr); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
}
