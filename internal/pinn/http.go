package pinn

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TrainScheduler は学習ジョブを非同期キューに投入するためのインターフェースです。
type TrainScheduler interface {
	ScheduleTraining(ctx context.Context, modelID string, cfg Config, params BlastParams) (string, error)
}

// RecordGetter は学習ジョブ記録を参照するためのインターフェースです。
type RecordGetter interface {
	GetRecord(ctx context.Context, jobID string) (*Record, error)
}

// Predictor は学習済みモデルでの推論を提供するインターフェースです。
type Predictor interface {
	Predict(modelID string, coords [][3]float64) (*Prediction, error)
}

type trainRequest struct {
	ModelID      string  `json:"model_id"`
	Layers       []int   `json:"layers"`
	Activation   string  `json:"activation"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
	// 爆風パラメータはシミュレーション設定と同じキー名で受け取ります
	ExplosiveMass float64 `json:"explosiveMass"`
	Coordinates   struct {
		Lat float64 `json:"lat"`
		Lng float64 `json:"lng"`
	} `json:"coordinates"`
}

// TrainHandler は POST /api/pinn/train のハンドラーを返します。
// 学習ジョブを投入して 202 を即座に返し、進捗は GET /api/pinn/jobs/:id で参照します。
func TrainHandler(scheduler TrainScheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req trainRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "学習設定をJSONオブジェクトで送信してください。",
			})
			return
		}

		cfg := DefaultConfig()
		if len(req.Layers) > 0 {
			cfg.Layers = req.Layers
		}
		if req.Activation != "" {
			cfg.Activation = req.Activation
		}
		if req.LearningRate > 0 {
			cfg.LearningRate = req.LearningRate
		}
		if req.Epochs > 0 {
			cfg.Epochs = req.Epochs
		}

		mass := req.ExplosiveMass
		if mass <= 0 {
			mass = 500
		}
		params := DefaultBlastParams(mass, req.Coordinates.Lng, req.Coordinates.Lat)

		modelID := req.ModelID
		if modelID == "" {
			modelID = uuid.NewString()
		}

		jobID, err := scheduler.ScheduleTraining(c.Request.Context(), modelID, cfg, params)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"model_id": modelID,
			"job_id":   jobID,
			"status":   "queued",
		})
	}
}

// JobStatusHandler は GET /api/pinn/jobs/:id のハンドラーを返します。
func JobStatusHandler(records RecordGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "job_id を指定してください。",
			})
			return
		}

		record, err := records.GetRecord(c.Request.Context(), jobID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "学習ジョブ情報の取得に失敗しました。",
			})
			return
		}
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "TRAIN_JOB_NOT_FOUND",
				"message": "指定された学習ジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"job_id":   record.JobID,
			"model_id": record.ModelID,
			"status":   record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"updated_at": record.UpdatedAt,
		}
		if record.Metrics != nil {
			payload["metrics"] = record.Metrics
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

type predictRequest struct {
	ModelID     string       `json:"model_id"`
	Coordinates [][3]float64 `json:"coordinates"`
}

// PredictHandler は POST /api/pinn/predict のハンドラーを返します。
func PredictHandler(predictor Predictor) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req predictRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "model_id と coordinates（[x, y, t] の配列）をJSONで送信してください。",
			})
			return
		}
		if req.ModelID == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "model_id を指定してください。",
			})
			return
		}

		pred, err := predictor.Predict(req.ModelID, req.Coordinates)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusOK, pred)
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "MODEL_NOT_FOUND" {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
