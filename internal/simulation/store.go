package simulation

import (
	"fmt"
	"sync"
	"time"
)

// Store はシミュレーションジョブ状態をプロセス内メモリに保持します。
// 各レコードの書き込みはそのジョブを駆動する単一のプロデューサーのみが行い、
// 読み取りは任意の数のリクエストハンドラーから並行に行われます。
type Store struct {
	mu    sync.RWMutex
	sims  map[string]*Simulation
	order []string // 作成順のID列（List用）
}

// NewStore は Store を作成します。
func NewStore() *Store {
	return &Store{
		sims: make(map[string]*Simulation),
	}
}

// Insert は新しいジョブレコードを登録します。IDの重複はエラーです。
func (s *Store) Insert(sim *Simulation) error {
	if sim == nil {
		return fmt.Errorf("simulation is nil")
	}
	if sim.ID == "" {
		return fmt.Errorf("simulation ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sims[sim.ID]; ok {
		return fmt.Errorf("duplicate simulation ID: %s", sim.ID)
	}
	s.sims[sim.ID] = sim
	s.order = append(s.order, sim.ID)
	return nil
}

// Get は指定IDのジョブのスナップショットを返します。存在しない場合は ErrNotFound です。
func (s *Store) Get(id string) (*Simulation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sim, ok := s.sims[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSimulation(sim), nil
}

// List は全ジョブのスナップショットを作成順に返します。
func (s *Store) List() []*Simulation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]*Simulation, 0, len(s.order))
	for _, id := range s.order {
		if sim, ok := s.sims[id]; ok {
			list = append(list, cloneSimulation(sim))
		}
	}
	return list
}

// MarkRunning はジョブを実行中に遷移させます。
func (s *Store) MarkRunning(id string) error {
	return s.update(id, func(sim *Simulation) {
		sim.Status = StatusRunning
	})
}

// AppendFrame はフレームを追記し、進捗とメタデータの累積最大値を更新します。
func (s *Store) AppendFrame(id string, frame Frame, progress int) error {
	return s.update(id, func(sim *Simulation) {
		sim.Frames = append(sim.Frames, frame)
		sim.Progress = progress
		if frame.MaxPressure > sim.Metadata.MaxPressure {
			sim.Metadata.MaxPressure = frame.MaxPressure
		}
		if frame.MaxVelocity > sim.Metadata.MaxVelocity {
			sim.Metadata.MaxVelocity = frame.MaxVelocity
		}
	})
}

// MarkCompleted はジョブを完了状態（終端）に遷移させます。
func (s *Store) MarkCompleted(id string) error {
	return s.update(id, func(sim *Simulation) {
		sim.Status = StatusCompleted
		sim.Progress = 100
	})
}

// MarkFailed はジョブを失敗状態（終端）に遷移させ、エラー文言を記録します。
func (s *Store) MarkFailed(id string, message string) error {
	return s.update(id, func(sim *Simulation) {
		sim.Status = StatusFailed
		sim.Error = message
	})
}

// update は終端状態ガード付きでレコードを変更します。
func (s *Store) update(id string, mutate func(*Simulation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sim, ok := s.sims[id]
	if !ok {
		return ErrNotFound
	}
	if sim.Status.Terminal() {
		return fmt.Errorf("simulation %s is already %s", id, sim.Status)
	}
	mutate(sim)
	return nil
}

// cloneSimulation はレコードの読み取り用コピーを返します。
// Frame は生成後不変なので、フレーム内部のスライスは共有します。
func cloneSimulation(sim *Simulation) *Simulation {
	clone := *sim
	clone.Frames = make([]Frame, len(sim.Frames))
	copy(clone.Frames, sim.Frames)
	if sim.Config != nil {
		clone.Config = make(map[string]any, len(sim.Config))
		for k, v := range sim.Config {
			clone.Config[k] = v
		}
	}
	return &clone
}

// newSimulation は初期状態のジョブレコードを組み立てます。
func newSimulation(id string, config map[string]any, totalFrames int, now time.Time) *Simulation {
	name := fmt.Sprintf("Simulation %s", shortID(id))
	if v, ok := config["name"].(string); ok && v != "" {
		name = v
	}

	return &Simulation{
		ID:        id,
		Name:      name,
		Status:    StatusQueued,
		Progress:  0,
		Config:    config,
		CreatedAt: now,
		Frames:    []Frame{},
		Metadata: Metadata{
			TotalFrames: totalFrames,
		},
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
