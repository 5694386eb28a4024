// Package pinn は物理情報ニューラルネットワーク学習ジョブの管理機能を提供します。
// 学習は長時間処理のため同期リクエスト経路から切り離し、Asynqキュー経由で実行します。
package pinn

import "time"

// Status は学習ジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ProgressInfo は進捗の補足情報を表します。
type ProgressInfo struct {
	Percent int    `json:"percent"`
	Stage   string `json:"stage,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は学習ジョブの現在状態を表します。
type Record struct {
	JobID     string           `json:"job_id"`
	ModelID   string           `json:"model_id"`
	Status    Status           `json:"status"`
	Progress  ProgressInfo     `json:"progress"`
	Metrics   *TrainingMetrics `json:"metrics,omitempty"`
	Error     *ErrorInfo       `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

// Config はネットワーク構成と学習ハイパーパラメータです。
type Config struct {
	Layers       []int   `json:"layers"`
	Activation   string  `json:"activation"`
	LearningRate float64 `json:"learning_rate"`
	Epochs       int     `json:"epochs"`
}

// DefaultConfig は事前学習済み爆風波モデルと同じ既定構成を返します。
// 入力 [x, y, t]、出力 [rho, u, v, p] の全結合ネットワークです。
func DefaultConfig() Config {
	return Config{
		Layers:       []int{3, 50, 50, 50, 50, 4},
		Activation:   "tanh",
		LearningRate: 0.001,
		Epochs:       1000,
	}
}

// BlastParams は爆風波シミュレーションの物理パラメータです。
type BlastParams struct {
	ExplosiveMass float64    `json:"explosive_mass"` // TNT換算質量（kg）
	CenterX       float64    `json:"center_x"`
	CenterY       float64    `json:"center_y"`
	DomainSize    [4]float64 `json:"domain_size"` // [x_min, x_max, y_min, y_max]
	TimeRange     [2]float64 `json:"time_range"`  // [t_min, t_max]
}

// DefaultBlastParams は質量と爆心座標から既定領域のパラメータを組み立てます。
func DefaultBlastParams(explosiveMass, centerX, centerY float64) BlastParams {
	return BlastParams{
		ExplosiveMass: explosiveMass,
		CenterX:       centerX,
		CenterY:       centerY,
		DomainSize:    [4]float64{-100, 100, -100, 100}, // 200m x 200m
		TimeRange:     [2]float64{0, 10},
	}
}

// TrainingMetrics は学習結果のメトリクスです。
type TrainingMetrics struct {
	FinalLoss     float64   `json:"final_loss"`
	EpochsTrained int       `json:"epochs_trained"`
	Converged     bool      `json:"converged"`
	LossHistory   []float64 `json:"loss_history"`
}

// Error はAPIエラーを表します。
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error は error インターフェースを実装します。
func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap は元のエラーを返します。
func (e *Error) Unwrap() error {
	return e.cause
}

func newError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}
