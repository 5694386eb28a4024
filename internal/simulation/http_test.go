package simulation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

// stubService は Service の固定応答スタブです。
type stubService struct {
	createID  string
	createErr error
	sim       *Simulation
	getErr    error
	sims      []*Simulation

	lastConfig map[string]any
}

func (s *stubService) Create(config map[string]any) (string, error) {
	s.lastConfig = config
	return s.createID, s.createErr
}

func (s *stubService) Get(id string) (*Simulation, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.sim, nil
}

func (s *stubService) List() []*Simulation {
	return s.sims
}

func newTestRouter(svc Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/api/simulations", CreateHandler(svc))
	router.GET("/api/simulations", ListHandler(svc))
	router.GET("/api/simulations/:id", GetHandler(svc))
	router.GET("/api/simulations/:id/export", ExportHandler(svc))
	return router
}

func TestCreateHandlerSuccess(t *testing.T) {
	svc := &stubService{createID: "sim-123"}
	router := newTestRouter(svc)

	body := `{"name":"Tokyo blast","explosiveMass":500}`
	req := httptest.NewRequest(http.MethodPost, "/api/simulations", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["simulation_id"] != "sim-123" {
		t.Fatalf("simulation_id = %v", resp["simulation_id"])
	}
	if resp["status"] != "created" {
		t.Fatalf("status = %v, want created", resp["status"])
	}
	if svc.lastConfig["name"] != "Tokyo blast" {
		t.Fatalf("config not forwarded: %#v", svc.lastConfig)
	}
}

func TestCreateHandlerInvalidJSON(t *testing.T) {
	router := newTestRouter(&stubService{createID: "sim-123"})

	req := httptest.NewRequest(http.MethodPost, "/api/simulations", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["code"] != "INVALID_INPUT" {
		t.Fatalf("code = %v, want INVALID_INPUT", resp["code"])
	}
}

func TestGetHandlerNotFound(t *testing.T) {
	router := newTestRouter(&stubService{getErr: ErrNotFound})

	req := httptest.NewRequest(http.MethodGet, "/api/simulations/nonexistent", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["code"] != "SIMULATION_NOT_FOUND" {
		t.Fatalf("code = %v, want SIMULATION_NOT_FOUND", resp["code"])
	}
}

func TestListHandler(t *testing.T) {
	sims := []*Simulation{
		newSimulation("a", map[string]any{}, 10, time.Now().UTC()),
		newSimulation("b", map[string]any{}, 10, time.Now().UTC()),
	}
	router := newTestRouter(&stubService{sims: sims})

	req := httptest.NewRequest(http.MethodGet, "/api/simulations", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp struct {
		Simulations []struct {
			ID string `json:"id"`
		} `json:"simulations"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if len(resp.Simulations) != 2 || resp.Simulations[0].ID != "a" || resp.Simulations[1].ID != "b" {
		t.Fatalf("unexpected listing: %+v", resp.Simulations)
	}
}

func TestExportHandlerCSV(t *testing.T) {
	sim := newSimulation("sim-1", map[string]any{}, 10, time.Now().UTC())
	sim.Frames = []Frame{
		{Index: 0, Time: 0, MaxPressure: 0, MaxVelocity: 350},
		{Index: 1, Time: 0.04, MaxPressure: 1.17, MaxVelocity: 340.5},
	}
	router := newTestRouter(&stubService{sim: sim})

	req := httptest.NewRequest(http.MethodGet, "/api/simulations/sim-1/export", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("Content-Type = %q, want text/csv", ct)
	}
	if cd := w.Header().Get("Content-Disposition"); !strings.Contains(cd, "simulation_sim-1.csv") {
		t.Fatalf("Content-Disposition = %q", cd)
	}

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("line count = %d, want header + 2 rows: %q", len(lines), w.Body.String())
	}
	if lines[0] != "frame,time,max_pressure,max_velocity" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "0,0,0,350" {
		t.Fatalf("row 1 = %q", lines[1])
	}
	if lines[2] != "1,0.04,1.17,340.5" {
		t.Fatalf("row 2 = %q", lines[2])
	}
}

func TestExportHandlerUnsupportedFormat(t *testing.T) {
	sim := newSimulation("sim-1", map[string]any{}, 10, time.Now().UTC())
	router := newTestRouter(&stubService{sim: sim})

	req := httptest.NewRequest(http.MethodGet, "/api/simulations/sim-1/export?format=xml", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if resp["code"] != "UNSUPPORTED_FORMAT" {
		t.Fatalf("code = %v, want UNSUPPORTED_FORMAT", resp["code"])
	}
}
