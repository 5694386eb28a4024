// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/shockwave-sim/internal/config"
	"github.com/yourusername/shockwave-sim/internal/geodata"
	"github.com/yourusername/shockwave-sim/internal/pinn"
	"github.com/yourusername/shockwave-sim/internal/simulation"
)

func main() {
	// 設定の読み込み
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// ロガーの初期化（releaseモードでは構造化JSON出力）
	logger, err := newLogger(cfg.GinMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	sugar := logger.Sugar()

	// Ginのモードを設定
	gin.SetMode(cfg.GinMode)

	// Ginルーターの初期化（デフォルトミドルウェア: Logger, Recovery）
	router := gin.Default()

	// CORSミドルウェアの設定
	corsConfig := cors.DefaultConfig()
	// CORS許可オリジンを設定（カンマ区切りの文字列を配列に変換）
	origins := strings.Split(cfg.CORSAllowedOrigins, ",")
	corsConfig.AllowOrigins = origins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	router.Use(cors.New(corsConfig))

	// シミュレーションコア（全状態はプロセス内メモリのみ）
	store := simulation.NewStore()
	hub := simulation.NewHub()
	simManager := simulation.NewManager(store, hub, sugar)

	// 外部コラボレーター（PINN学習キュー・ジオデータ取得）の配線
	collab, err := setupCollaborators(cfg, sugar)
	if err != nil {
		log.Fatalf("Failed to set up collaborators: %v", err)
	}
	collab.trainManager.StartWorkers()

	// ルーティングの設定
	setupRoutes(router, simManager, collab, sugar)

	// サーバーの起動
	addr := ":" + cfg.Port
	sugar.Infof("Starting API server on %s (mode: %s)", addr, cfg.GinMode)
	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func newLogger(ginMode string) (*zap.Logger, error) {
	if ginMode == gin.ReleaseMode {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// handleRoot はサービス情報を返すルートハンドラーです。
func handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "ShockWave Sim AI API",
		"version": "1.0.0",
		"status":  "running",
	})
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "shockwave-sim-api",
	})
}

// setupRoutes は API グループの配線を行います。
func setupRoutes(router *gin.Engine, simManager *simulation.Manager, collab *collaborators, logger *zap.SugaredLogger) {
	router.GET("/", handleRoot)
	router.GET("/health", handleHealth)

	api := router.Group("/api")
	{
		sims := api.Group("/simulations")
		{
			sims.POST("", simulation.CreateHandler(simManager))
			sims.GET("", simulation.ListHandler(simManager))
			sims.GET("/:id", simulation.GetHandler(simManager))
			sims.GET("/:id/stream", simulation.StreamHandler(simManager, logger))
			sims.GET("/:id/export", simulation.ExportHandler(simManager))
		}

		pinnRoutes := api.Group("/pinn")
		{
			pinnRoutes.POST("/train", pinn.TrainHandler(collab.trainManager))
			pinnRoutes.GET("/jobs/:id", pinn.JobStatusHandler(collab.trainManager))
			pinnRoutes.POST("/predict", pinn.PredictHandler(collab.engine))
		}

		api.GET("/urbanmesh", geodata.UrbanMeshHandler(collab.geoFetcher))
	}
}
