package main

import (
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/yourusername/shockwave-sim/internal/config"
	"github.com/yourusername/shockwave-sim/internal/geodata"
	"github.com/yourusername/shockwave-sim/internal/pinn"
)

// collaborators はシミュレーションコアの外側にある長時間処理のまとまりです。
type collaborators struct {
	trainManager *pinn.Manager
	engine       *pinn.Engine
	geoFetcher   *geodata.Fetcher
}

// setupCollaborators はPINN学習キューとジオデータ取得を配線します。
// Redisクライアントは学習ジョブ記録とジオデータキャッシュで共有します。
func setupCollaborators(cfg *config.Config, logger *zap.SugaredLogger) (*collaborators, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opt)

	ttlMinutes := cfg.TrainJobExpireMinutes
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	trainStore := pinn.NewStore(redisClient, time.Duration(ttlMinutes)*time.Minute)

	engine := pinn.NewEngine()
	trainManager, err := pinn.NewManager(cfg, engine, trainStore, logger)
	if err != nil {
		return nil, err
	}

	cacheMinutes := cfg.GeodataCacheMinutes
	if cacheMinutes <= 0 {
		cacheMinutes = 10
	}
	geoCache := geodata.NewCache(redisClient, time.Duration(cacheMinutes)*time.Minute)
	geoFetcher := geodata.NewFetcher(cfg, geoCache, logger)

	return &collaborators{
		trainManager: trainManager,
		engine:       engine,
		geoFetcher:   geoFetcher,
	}, nil
}
