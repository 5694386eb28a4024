package pinn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/yourusername/shockwave-sim/internal/config"
)

const (
	taskTypeTrain = "pinn:train"
	queueName     = "pinn"
)

// Manager は学習ジョブの投入と状態管理を担います。
type Manager struct {
	cfg    *config.Config
	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	store  *Store
	engine *Engine
	logger *zap.SugaredLogger
}

// TaskPayload は学習ジョブのペイロードです。
type TaskPayload struct {
	JobID   string      `json:"job_id"`
	ModelID string      `json:"model_id"`
	Config  Config      `json:"config"`
	Params  BlastParams `json:"params"`
}

// NewManager は Manager を初期化します。
func NewManager(cfg *config.Config, engine *Engine, store *Store, logger *zap.SugaredLogger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if engine == nil {
		return nil, errors.New("engine is nil")
	}
	if store == nil {
		return nil, errors.New("store is nil")
	}
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := asynq.NewClient(opt)
	server := asynq.NewServer(
		opt,
		asynq.Config{
			Concurrency: cfg.TrainConcurrency,
			Queues: map[string]int{
				queueName: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	manager := &Manager{
		cfg:    cfg,
		client: client,
		server: server,
		mux:    mux,
		store:  store,
		engine: engine,
		logger: logger,
	}
	mux.HandleFunc(taskTypeTrain, manager.handleTrainTask)
	return manager, nil
}

// StartWorkers は Asynq サーバーをバックグラウンドで起動します。
func (m *Manager) StartWorkers() {
	go func() {
		if err := m.server.Run(m.mux); err != nil && err != asynq.ErrServerClosed {
			m.logger.Errorw("asynq server stopped with error", "error", err)
		}
	}()
}

// Shutdown はサーバーとクライアントを閉じます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.server.Shutdown()
	m.client.Close()
	return nil
}

// ScheduleTraining は学習ジョブをキューに投入し、ジョブIDを返します。
// 学習の完了は待ちません。
func (m *Manager) ScheduleTraining(ctx context.Context, modelID string, cfg Config, params BlastParams) (string, error) {
	if modelID == "" {
		return "", newError("INVALID_INPUT", "model_id を指定してください。", nil)
	}

	jobID := uuid.NewString()
	record := &Record{
		JobID:   jobID,
		ModelID: modelID,
		Status:  StatusQueued,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "queued",
		},
	}
	if err := m.store.Upsert(ctx, record); err != nil {
		return "", err
	}

	payload := &TaskPayload{
		JobID:   jobID,
		ModelID: modelID,
		Config:  cfg,
		Params:  params,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	task := asynq.NewTask(taskTypeTrain, body, asynq.Queue(queueName))
	if _, err := m.client.EnqueueContext(ctx, task, asynq.MaxRetry(1)); err != nil {
		return "", err
	}
	return jobID, nil
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleTrainTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if payload.JobID == "" {
		return fmt.Errorf("missing job_id in payload")
	}

	if err := m.store.updatePartial(ctx, payload.JobID, func(record *Record) {
		record.Status = StatusRunning
		record.Progress = ProgressInfo{Percent: 0, Stage: "setup"}
	}); err != nil {
		return err
	}

	m.logger.Infow("training started", "job_id", payload.JobID, "model_id", payload.ModelID)

	metrics, err := m.engine.Train(ctx, payload.ModelID, payload.Config, payload.Params, func(stage string, percent int) {
		if updateErr := m.store.UpdateProgress(ctx, payload.JobID, ProgressInfo{
			Stage:   stage,
			Percent: percent,
		}); updateErr != nil {
			m.logger.Warnw("failed to update training progress", "job_id", payload.JobID, "error", updateErr)
		}
	})
	if err != nil {
		return m.failJobWithError(ctx, payload.JobID, err)
	}

	m.logger.Infow("training finished",
		"job_id", payload.JobID,
		"model_id", payload.ModelID,
		"final_loss", metrics.FinalLoss,
		"converged", metrics.Converged,
	)
	return m.store.MarkDone(ctx, payload.JobID, metrics)
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return m.store.MarkFailed(ctx, jobID, &ErrorInfo{Code: apiErr.Code, Message: apiErr.Message})
	}
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{Code: "TRAINING_FAILED", Message: err.Error()})
}
