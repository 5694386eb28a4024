// Package simulation は爆風波シミュレーションジョブの生成・実行・配信機能を提供します。
package simulation

import (
	"errors"
	"time"
)

// Status はシミュレーションジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal は終端状態（以降の変更を受け付けない状態）かどうかを返します。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Vector は速度場の1セルを表す2次元ベクトルです。
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame は1シミュレーション時刻分のスナップショットです。生成後は不変です。
type Frame struct {
	Index         int         `json:"frame"`
	Time          float64     `json:"time"`
	MaxPressure   float64     `json:"max_pressure"`
	MaxVelocity   float64     `json:"max_velocity"`
	PressureField [][]float64 `json:"pressure_field"`
	VelocityField [][]Vector  `json:"velocity_field"`
}

// Metadata はジョブ全体の集計値を保持します。
// MaxPressure / MaxVelocity はフレームごとのスカラーサマリーの累積最大値です。
type Metadata struct {
	TotalFrames int     `json:"total_frames"`
	MaxPressure float64 `json:"max_pressure"`
	MaxVelocity float64 `json:"max_velocity"`
	// TODO: affected_area の算出（建物ジオメトリとの交差判定が必要）
	AffectedArea float64 `json:"affected_area"`
}

// Simulation はシミュレーションジョブの現在状態を表します。
type Simulation struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Progress  int            `json:"progress"`
	Config    map[string]any `json:"config"`
	CreatedAt time.Time      `json:"created_at"`
	Frames    []Frame        `json:"frames"`
	Metadata  Metadata       `json:"metadata"`
	Error     string         `json:"error,omitempty"`
}

// Error はAPIエラーを表します。Code はHTTPステータスへの変換に使われます。
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

// ErrNotFound は存在しないシミュレーションIDを参照した場合のエラーです。
var ErrNotFound = errors.New("simulation not found")
