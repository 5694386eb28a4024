// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
type Config struct {
	// サーバー設定
	Port    string // APIサーバーのポート番号
	GinMode string // Ginの実行モード (debug, release, test)

	// CORS設定
	CORSAllowedOrigins string // CORS許可オリジン（カンマ区切り）

	// Redis設定（PINN学習ジョブのキューと記録、ジオデータキャッシュで共有）
	RedisURL string // Redis接続URL

	// PINN学習ジョブ設定
	TrainJobExpireMinutes int // 学習ジョブ記録の有効期限（分）
	TrainConcurrency      int // 同時に実行する学習ワーカー数

	// ジオデータ設定
	OverpassURL          string // OpenStreetMap Overpass APIのエンドポイント
	ElevationURL         string // Open-Elevation APIのエンドポイント
	GeodataCacheMinutes  int    // ジオデータ応答キャッシュの有効期限（分）
	GeodataFetchTimeoutS int    // 外部API呼び出しのタイムアウト（秒）
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	// .env.local ファイルを読み込む（存在しない場合はスキップ）
	loadEnvFile()

	config := &Config{
		// サーバー設定
		Port:    getEnv("PORT", "8000"),
		GinMode: getEnv("GIN_MODE", "debug"),

		// CORS設定
		CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		// Redis設定
		RedisURL: getEnv("REDIS_URL", "redis://127.0.0.1:6379/0"),

		// PINN学習ジョブ設定
		TrainJobExpireMinutes: getEnvAsInt("TRAIN_JOB_EXPIRE_MINUTES", 60),
		TrainConcurrency:      getEnvAsInt("TRAIN_CONCURRENCY", 2),

		// ジオデータ設定
		OverpassURL:          getEnv("OVERPASS_URL", "https://overpass-api.de/api/interpreter"),
		ElevationURL:         getEnv("ELEVATION_URL", "https://api.open-elevation.com/api/v1/lookup"),
		GeodataCacheMinutes:  getEnvAsInt("GEODATA_CACHE_MINUTES", 10),
		GeodataFetchTimeoutS: getEnvAsInt("GEODATA_FETCH_TIMEOUT_SECONDS", 25),
	}

	// 必須設定のバリデーション
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
func (c *Config) Validate() error {
	// ローカル開発ではRedis等は任意
	// 本番環境では厳格にチェックする想定
	if c.GinMode == "release" {
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required in release mode")
		}
		if c.OverpassURL == "" {
			return fmt.Errorf("OVERPASS_URL is required in release mode")
		}
		if c.ElevationURL == "" {
			return fmt.Errorf("ELEVATION_URL is required in release mode")
		}
	}
	if c.TrainConcurrency <= 0 {
		return fmt.Errorf("TRAIN_CONCURRENCY must be positive")
	}

	return nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します。
func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt は環境変数を整数として取得します。
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
