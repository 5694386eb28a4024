package simulation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// フレーム生成の既定パラメータ。ペーシングはストリーミング消費者が
// 人間に観測可能な周期で進捗を受け取るための意図的なスロットルです。
const (
	defaultTotalFrames   = 250
	defaultDuration      = 10.0 // シミュレーション秒
	defaultFrameInterval = 100 * time.Millisecond
)

// Manager はジョブの生成・バックグラウンド実行・購読の入口です。
type Manager struct {
	store  *Store
	hub    *Hub
	logger *zap.SugaredLogger

	totalFrames   int
	duration      float64
	frameInterval time.Duration

	// 発行（フレーム追記+配信）と購読開始（スナップショット+登録）を
	// 直列化するロック。スナップショット取得と配信開始の間の取りこぼし・
	// 二重配信を防ぎます。
	publishMu sync.Mutex
}

// NewManager は Manager を作成します。
func NewManager(store *Store, hub *Hub, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		store:         store,
		hub:           hub,
		logger:        logger,
		totalFrames:   defaultTotalFrames,
		duration:      defaultDuration,
		frameInterval: defaultFrameInterval,
	}
}

// Create は新しいシミュレーションジョブを登録し、バックグラウンド実行を開始します。
// フレーム生成の完了を待たず、ジョブIDを即座に返します。
func (m *Manager) Create(config map[string]any) (string, error) {
	if config == nil {
		config = map[string]any{}
	}

	id := uuid.NewString()
	sim := newSimulation(id, config, m.totalFrames, time.Now().UTC())
	if err := m.store.Insert(sim); err != nil {
		return "", err
	}

	go m.run(id)

	return id, nil
}

// Get は指定ジョブのスナップショットを返します。
func (m *Manager) Get(id string) (*Simulation, error) {
	return m.store.Get(id)
}

// List は全ジョブのスナップショットを作成順に返します。
func (m *Manager) List() []*Simulation {
	return m.store.List()
}

// Subscribe はジョブの購読を開始し、購読開始時点の完全なスナップショットと
// 以降のイベントを受け取る購読者を返します。スナップショットに含まれる
// フレームがイベントとして二重配信されることはありません。
func (m *Manager) Subscribe(id string) (*Simulation, *Subscriber, error) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	snapshot, err := m.store.Get(id)
	if err != nil {
		return nil, nil, err
	}
	sub := m.hub.Attach(id)
	return snapshot, sub, nil
}

// Unsubscribe は購読を解除します。冪等です。
func (m *Manager) Unsubscribe(id string, sub *Subscriber) {
	m.hub.Detach(id, sub)
}

// run は1ジョブ分のフレーム生成ループです。ジョブごとに独立した
// ゴルーチンとして動き、完了または失敗まで外部から停止されません。
func (m *Manager) run(id string) {
	if err := m.produceFrames(id); err != nil {
		m.logger.Errorw("simulation failed", "simulation_id", id, "error", err)
		m.fail(id, err)
		return
	}

	if err := m.store.MarkCompleted(id); err != nil {
		m.logger.Errorw("failed to mark simulation completed", "simulation_id", id, "error", err)
		return
	}
	m.publish(id, map[string]any{
		"type":     "status",
		"status":   StatusCompleted,
		"progress": 100,
	})
	m.logger.Infow("simulation completed", "simulation_id", id)
}

func (m *Manager) produceFrames(id string) error {
	if err := m.store.MarkRunning(id); err != nil {
		return err
	}

	for i := 0; i < m.totalFrames; i++ {
		// 実計算の待ち時間の代わりとなる固定ペーシング
		time.Sleep(m.frameInterval)

		frame := NewFrame(i, m.totalFrames, m.duration)
		progress := (i + 1) * 100 / m.totalFrames

		if err := m.appendAndPublish(id, frame, progress); err != nil {
			return err
		}
	}
	return nil
}

// appendAndPublish はフレーム追記と進捗イベント配信を1つの臨界区間で行います。
func (m *Manager) appendAndPublish(id string, frame Frame, progress int) error {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	if err := m.store.AppendFrame(id, frame, progress); err != nil {
		return err
	}
	m.hub.Broadcast(id, map[string]any{
		"type":       "progress",
		"frame":      frame.Index,
		"progress":   progress,
		"status":     StatusRunning,
		"frame_data": frame,
	})
	return nil
}

func (m *Manager) publish(id string, event map[string]any) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	m.hub.Broadcast(id, event)
}

func (m *Manager) fail(id string, cause error) {
	if err := m.store.MarkFailed(id, cause.Error()); err != nil {
		m.logger.Errorw("failed to mark simulation failed", "simulation_id", id, "error", err)
		return
	}
	m.publish(id, map[string]any{
		"type":   "status",
		"status": StatusFailed,
		"error":  cause.Error(),
	})
}
