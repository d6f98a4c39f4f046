package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/service/ratelimit"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/config"
	applogger "MacroSim/pkg/logger"
	"MacroSim/pkg/metrics"
)

type stubEstimator struct {
	snap models.StateSnapshot
	err  error
}

func (s *stubEstimator) FetchSnapshot(context.Context) (models.StateSnapshot, error) {
	return s.snap, s.err
}

func testSimConfig() config.Simulation {
	return config.Simulation{
		LatentDim:        3,
		TradingDaysPerMo: 21,
		FragileThreshold: 0.5,
		CrisisThreshold:  1.5,
		TransitionMatrix: [][]float64{
			{0.95, 0.05, 0.00},
			{0.05, 0.90, 0.05},
			{0.00, 0.10, 0.90},
		},
		RegimeNoiseScales:  []float64{1.0, 1.8, 3.0},
		ShockCreditStress:  0.8,
		ShockCreditLiq:     0.5,
		ShockVolStress:     1.0,
		ShockRateBps:       50.0,
		DefaultPaths:       5000,
		DefaultHorizon:     24,
		DefaultSpeedMs:     120,
		SpaghettiCount:     30,
		HeuristicPathCap:   2000,
		ChartPathCap:       2000,
		BaseSeed:           42,
		StreamRequestRate:  100,
		StreamRequestBurst: 100,
	}
}

func testSnapshot() models.StateSnapshot {
	return models.StateSnapshot{
		A: [][]float64{
			{0.95, 0.02, -0.01},
			{0.01, 0.90, 0.03},
			{-0.02, 0.01, 0.88},
		},
		B: []float64{0.003, 0.006, -0.004},
		Q: [][]float64{
			{0.010, 0.002, 0.001},
			{0.002, 0.012, 0.000},
			{0.001, 0.000, 0.008},
		},
		MuT: []float64{0.3, -0.1, 0.2},
		PT: [][]float64{
			{0.05, 0, 0},
			{0, 0.05, 0},
			{0, 0, 0.05},
		},
		CrisisThreshold: 1.5,
		StressStd:       1.0,
		StressScore:     0.3,
	}
}

// Prometheus collectors register globally, so the recorder is shared
// across tests.
var testRecorder = metrics.New()

// streamFrame covers both per-step and terminal messages.
type streamFrame struct {
	Step       int                `json:"step"`
	Horizon    int                `json:"H"`
	StressFan  map[string]float64 `json:"stress_fan"`
	GrowthFan  map[string]float64 `json:"growth_fan"`
	CrisisProb *float64           `json:"crisis_prob"`
	Spaghetti  []json.RawMessage  `json:"spaghetti"`
	Error      string             `json:"error"`
	Done       bool               `json:"done"`
}

func dialTestServer(t *testing.T, refreshed bool) (*websocket.Conn, func()) {
	t.Helper()

	log, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	provider := usecase.NewSnapshotProvider(&stubEstimator{snap: testSnapshot()}, nil, 0, nil, nil, nil)
	if refreshed {
		if _, err := provider.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}

	h := NewHandler(provider, testSimConfig(), ratelimit.New(), testRecorder, log)
	e := echo.New()
	h.RegisterRoutes(e)

	srv := httptest.NewServer(e)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/simulate"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) streamFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var f streamFrame
	if err := conn.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func TestStreamDeliversAllStepsThenTerminal(t *testing.T) {
	conn, done := dialTestServer(t, true)
	defer done()

	const horizon = 6
	req := models.StreamRequest{
		DeltaBps: -25,
		NPaths:   600,
		Horizon:  horizon,
		SpeedMs:  20,
	}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	for i := 1; i <= horizon; i++ {
		f := readFrame(t, conn)
		if f.Error != "" {
			t.Fatalf("step %d: unexpected error %q", i, f.Error)
		}
		if f.Done {
			t.Fatalf("premature done at step %d", i)
		}
		if f.Step != i {
			t.Fatalf("step %d out of order (got %d)", i, f.Step)
		}
		if f.Horizon != horizon {
			t.Fatalf("step %d: H = %d, want %d", i, f.Horizon, horizon)
		}
		if len(f.StressFan) != 5 || len(f.GrowthFan) != 5 {
			t.Fatalf("step %d: incomplete fans", i)
		}
		if f.CrisisProb == nil {
			t.Fatalf("step %d: missing crisis_prob", i)
		}
		if len(f.Spaghetti) != 30 {
			t.Fatalf("step %d: %d spaghetti paths, want 30", i, len(f.Spaghetti))
		}
	}

	terminal := readFrame(t, conn)
	if !terminal.Done {
		t.Fatal("missing terminal done message")
	}
	if terminal.Horizon != horizon {
		t.Fatalf("terminal H = %d, want %d", terminal.Horizon, horizon)
	}
}

func TestStreamClampsParameters(t *testing.T) {
	conn, done := dialTestServer(t, true)
	defer done()

	// Horizon above the cap must be clamped to 36, not rejected.
	req := models.StreamRequest{NPaths: 100, Horizon: 100, SpeedMs: 1}
	if err := conn.WriteJSON(req); err != nil {
		t.Fatalf("write request: %v", err)
	}

	f := readFrame(t, conn)
	if f.Error != "" {
		t.Fatalf("unexpected error %q", f.Error)
	}
	if f.Horizon != 36 {
		t.Fatalf("H = %d, want clamped 36", f.Horizon)
	}

	// Drain: 36 steps total plus terminal.
	for i := 2; i <= 36; i++ {
		readFrame(t, conn)
	}
	terminal := readFrame(t, conn)
	if !terminal.Done {
		t.Fatal("missing terminal message after clamped stream")
	}
}

func TestStreamErrorsWithoutSnapshot(t *testing.T) {
	conn, done := dialTestServer(t, false)
	defer done()

	if err := conn.WriteJSON(models.StreamRequest{NPaths: 600, Horizon: 6}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	f := readFrame(t, conn)
	if !f.Done {
		t.Fatal("error frame must carry done:true")
	}
	if f.Error == "" {
		t.Fatal("missing error text")
	}
}

func TestStreamConnectionUsableAfterError(t *testing.T) {
	conn, done := dialTestServer(t, true)
	defer done()

	// First request finishes normally, second one also works: failures and
	// completions are per request, not per connection.
	for round := 0; round < 2; round++ {
		if err := conn.WriteJSON(models.StreamRequest{NPaths: 500, Horizon: 6, SpeedMs: 1}); err != nil {
			t.Fatalf("round %d write: %v", round, err)
		}
		for i := 1; i <= 6; i++ {
			f := readFrame(t, conn)
			if f.Error != "" || f.Done {
				t.Fatalf("round %d step %d: unexpected frame %+v", round, i, f)
			}
		}
		if f := readFrame(t, conn); !f.Done {
			t.Fatalf("round %d: missing terminal", round)
		}
	}
}
