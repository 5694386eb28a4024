package simulation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestManager は実時間で完走できる小さいパラメータの Manager を返します。
func newTestManager() *Manager {
	m := NewManager(NewStore(), NewHub(), zap.NewNop().Sugar())
	m.totalFrames = 5
	m.duration = 1.0
	m.frameInterval = time.Millisecond
	return m
}

func waitForStatus(t *testing.T, m *Manager, id string, want Status) *Simulation {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		sim, err := m.Get(id)
		if err != nil {
			t.Fatalf("Get returned error: %v", err)
		}
		if sim.Status == want {
			return sim
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("simulation %s never reached status %s", id, want)
	return nil
}

func TestManagerCreateReturnsImmediately(t *testing.T) {
	m := newTestManager()

	id, err := m.Create(map[string]any{"name": "test run"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if id == "" {
		t.Fatal("Create returned empty ID")
	}

	sim, err := m.Get(id)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	// バックグラウンド実行は開始直後なので queued か running のどちらか
	if sim.Status != StatusQueued && sim.Status != StatusRunning {
		t.Fatalf("status right after Create = %s", sim.Status)
	}
	if sim.Name != "test run" {
		t.Fatalf("name = %q, want %q", sim.Name, "test run")
	}
}

func TestManagerRunsToCompletion(t *testing.T) {
	m := newTestManager()

	id, err := m.Create(nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	sim := waitForStatus(t, m, id, StatusCompleted)

	if sim.Progress != 100 {
		t.Fatalf("progress = %d, want 100", sim.Progress)
	}
	if len(sim.Frames) != 5 {
		t.Fatalf("frames = %d, want 5", len(sim.Frames))
	}
	for i, frame := range sim.Frames {
		if frame.Index != i {
			t.Fatalf("frame[%d].Index = %d", i, frame.Index)
		}
	}
	// メタデータの最大値は全フレームのエンベロープ値の最大
	var wantPressure, wantVelocity float64
	for _, frame := range sim.Frames {
		if frame.MaxPressure > wantPressure {
			wantPressure = frame.MaxPressure
		}
		if frame.MaxVelocity > wantVelocity {
			wantVelocity = frame.MaxVelocity
		}
	}
	if sim.Metadata.MaxPressure != wantPressure {
		t.Fatalf("metadata max_pressure = %v, want %v", sim.Metadata.MaxPressure, wantPressure)
	}
	if sim.Metadata.MaxVelocity != wantVelocity {
		t.Fatalf("metadata max_velocity = %v, want %v", sim.Metadata.MaxVelocity, wantVelocity)
	}
}

func TestManagerSubscribeUnknown(t *testing.T) {
	m := newTestManager()
	if _, _, err := m.Subscribe("nonexistent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// 購読開始時のスナップショットと以降のイベントに、フレームの
// 取りこぼしも二重配信もないことを検証します。
func TestManagerSubscribeSnapshotThenIncrements(t *testing.T) {
	m := newTestManager()
	m.totalFrames = 20

	id, err := m.Create(nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	// 実行途中まで進ませてから購読する
	time.Sleep(5 * time.Millisecond)

	snapshot, sub, err := m.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer m.Unsubscribe(id, sub)

	seen := make(map[int]bool)
	for _, frame := range snapshot.Frames {
		seen[frame.Index] = true
	}

	next := len(snapshot.Frames)
	timeout := time.After(5 * time.Second)
	for next < m.totalFrames {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				t.Fatal("subscriber channel closed before completion")
			}
			var event struct {
				Type  string `json:"type"`
				Frame *int   `json:"frame"`
			}
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("event is not valid JSON: %v", err)
			}
			if event.Type != "progress" {
				continue
			}
			if event.Frame == nil {
				t.Fatal("progress event without frame index")
			}
			if seen[*event.Frame] {
				t.Fatalf("frame %d delivered twice", *event.Frame)
			}
			if *event.Frame != next {
				t.Fatalf("frame out of order: got %d, want %d", *event.Frame, next)
			}
			seen[*event.Frame] = true
			next++
		case <-timeout:
			t.Fatalf("timed out waiting for frame %d", next)
		}
	}
}

func TestManagerCompletionEventDelivered(t *testing.T) {
	m := newTestManager()

	id, err := m.Create(nil)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	_, sub, err := m.Subscribe(id)
	if err != nil {
		t.Fatalf("Subscribe returned error: %v", err)
	}
	defer m.Unsubscribe(id, sub)

	timeout := time.After(5 * time.Second)
	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				t.Fatal("subscriber channel closed before completion event")
			}
			var event struct {
				Type     string `json:"type"`
				Status   string `json:"status"`
				Progress int    `json:"progress"`
			}
			if err := json.Unmarshal(payload, &event); err != nil {
				t.Fatalf("event is not valid JSON: %v", err)
			}
			if event.Type != "status" {
				continue
			}
			if event.Status != string(StatusCompleted) {
				t.Fatalf("status event = %q, want completed", event.Status)
			}
			if event.Progress != 100 {
				t.Fatalf("status progress = %d, want 100", event.Progress)
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for completion event")
		}
	}
}
