package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"MacroSim/internal/domain/models"
	"MacroSim/internal/usecase"
	"MacroSim/pkg/config"
	xhttp "MacroSim/pkg/http"
	applogger "MacroSim/pkg/logger"
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
		RegimeNoiseScales: []float64{1.0, 1.8, 3.0},
		ShockCreditStress: 0.8,
		ShockCreditLiq:    0.5,
		ShockVolStress:    1.0,
		ShockRateBps:      50.0,
		DefaultPaths:      5000,
		DefaultHorizon:    24,
		DefaultSpeedMs:    120,
		SpaghettiCount:    30,
		HeuristicPathCap:  2000,
		ChartPathCap:      2000,
		BaseSeed:          42,
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
		RegimeLabel:     "calm",
	}
}

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

func newTestHandler(t *testing.T, est *stubEstimator, refreshed bool) (*Handler, *echo.Echo) {
	t.Helper()
	cfg := testSimConfig()
	log := testLogger(t)

	provider := usecase.NewSnapshotProvider(est, nil, 0, nil, nil, nil)
	if refreshed {
		if _, err := provider.Refresh(context.Background()); err != nil {
			t.Fatalf("Refresh: %v", err)
		}
	}
	recommender := usecase.NewRecommender(cfg, nil, nil)
	comparator := usecase.NewComparator(provider, recommender, nil, nil, nil, cfg, nil, nil)

	h := NewHandler(provider, recommender, comparator, cfg, log)
	e := echo.New()
	h.RegisterRoutes(e)
	return h, e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func envelopeStatus(t *testing.T, rec *httptest.ResponseRecorder) int {
	t.Helper()
	var env struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return env.Status
}

func TestHealth(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, false)

	rec := doJSON(e, http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rec.Code)
	}
}

func TestCurrentStateBeforeRefresh(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, false)

	rec := doJSON(e, http.MethodGet, "/api/state/current", "")
	if got := envelopeStatus(t, rec); got != http.StatusNotFound {
		t.Fatalf("envelope status %d, want 404", got)
	}
}

func TestRefreshThenCurrentState(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, false)

	rec := doJSON(e, http.MethodPost, "/api/state/refresh", "")
	if got := envelopeStatus(t, rec); got != http.StatusOK {
		t.Fatalf("refresh envelope status %d, want 200", got)
	}

	rec = doJSON(e, http.MethodGet, "/api/state/current", "")
	if got := envelopeStatus(t, rec); got != http.StatusOK {
		t.Fatalf("current envelope status %d, want 200", got)
	}

	var env struct {
		Data models.SnapshotSummary `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Version != 1 {
		t.Errorf("version %d, want 1", env.Data.Version)
	}
	if env.Data.Stress != 0.3 {
		t.Errorf("stress %v, want 0.3", env.Data.Stress)
	}
	if env.Data.RegimeLabel != "calm" {
		t.Errorf("regime %q, want calm", env.Data.RegimeLabel)
	}
}

func TestRefreshSurfacesEstimatorFailure(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{err: errors.New("estimator down")}, false)

	rec := doJSON(e, http.MethodPost, "/api/state/refresh", "")
	if got := envelopeStatus(t, rec); got != http.StatusInternalServerError {
		t.Fatalf("envelope status %d, want 500", got)
	}
}

func TestRecommendRejectsUndersizedEnsemble(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	// N below the allowed minimum must be rejected before any simulation.
	rec := doJSON(e, http.MethodPost, "/api/policy/recommend", `{"n_paths": 200}`)
	if got := envelopeStatus(t, rec); got != http.StatusBadRequest {
		t.Fatalf("envelope status %d, want 400", got)
	}
}

func TestRecommendRejectsOutOfRangeWeight(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	rec := doJSON(e, http.MethodPost, "/api/policy/recommend", `{"alpha": 11}`)
	if got := envelopeStatus(t, rec); got != http.StatusBadRequest {
		t.Fatalf("envelope status %d, want 400", got)
	}
}

func TestRecommendReturnsRankedActions(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	rec := doJSON(e, http.MethodPost, "/api/policy/recommend",
		`{"n_paths": 600, "horizon": 8}`)
	if got := envelopeStatus(t, rec); got != http.StatusOK {
		t.Fatalf("envelope status %d, want 200 (body %s)", got, rec.Body.String())
	}

	var env struct {
		Data usecase.Recommendation `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Results) != 5 {
		t.Errorf("%d evaluated actions, want 5", len(env.Data.Results))
	}
	if env.Data.RecommendedAction == "" {
		t.Error("missing recommended action label")
	}
}

func TestRecommendEvaluatesCustomDelta(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	rec := doJSON(e, http.MethodPost, "/api/policy/recommend",
		`{"n_paths": 600, "horizon": 8, "delta_bps_custom": -37}`)
	if got := envelopeStatus(t, rec); got != http.StatusOK {
		t.Fatalf("envelope status %d, want 200 (body %s)", got, rec.Body.String())
	}

	var env struct {
		Data usecase.Recommendation `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(env.Data.Results) != 6 {
		t.Fatalf("%d evaluated actions, want the 5 standard plus the custom delta", len(env.Data.Results))
	}
	found := false
	for _, r := range env.Data.Results {
		if r.DeltaBps == -37 {
			found = true
		}
	}
	if !found {
		t.Error("custom delta -37 missing from evaluated actions")
	}
}

func TestRequestDefaults(t *testing.T) {
	e := echo.New()
	bind := func(path, body string, req interface{}) {
		t.Helper()
		r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		c := e.NewContext(r, httptest.NewRecorder())
		if errs := xhttp.ReadAndValidateRequest(c, req); errs != nil {
			t.Fatalf("validate %s: %v", path, errs)
		}
	}

	var rr models.RecommendRequest
	bind("/api/policy/recommend", `{}`, &rr)
	if rr.Alpha != 1 || rr.Beta != 1 || rr.Gamma != 1 || rr.Lambda != 1 {
		t.Errorf("recommend weights %v/%v/%v/%v, want all 1", rr.Alpha, rr.Beta, rr.Gamma, rr.Lambda)
	}
	if rr.NPaths != 5000 {
		t.Errorf("recommend n_paths default %d, want 5000", rr.NPaths)
	}
	if rr.Horizon != 24 {
		t.Errorf("recommend horizon default %d, want 24", rr.Horizon)
	}
	if rr.DeltaBpsCustom != nil {
		t.Error("delta_bps_custom must default to absent")
	}
	if !rr.RegimeSwitchingOn() {
		t.Error("regime switching must default to on")
	}

	var ar models.AgentsSimulateRequest
	bind("/api/agents/simulate", `{"agents": ["custom"]}`, &ar)
	if ar.Gamma != 1 || ar.Lambda != 1 {
		t.Errorf("agents gamma/lambda defaults %v/%v, want 1/1", ar.Gamma, ar.Lambda)
	}
	if ar.NPaths != 3000 {
		t.Errorf("agents n_paths default %d, want 3000", ar.NPaths)
	}
}

func TestAgentsSimulateRejectsUnknownAgentName(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	rec := doJSON(e, http.MethodPost, "/api/agents/simulate",
		`{"agents": ["wizard"], "n_paths": 600, "horizon": 8}`)
	if got := envelopeStatus(t, rec); got != http.StatusBadRequest {
		t.Fatalf("envelope status %d, want 400", got)
	}
}

func TestAgentsSimulateCustomAgent(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, true)

	rec := doJSON(e, http.MethodPost, "/api/agents/simulate",
		`{"agents": ["custom"], "custom_delta_bps": -25, "n_paths": 600, "horizon": 8}`)
	if got := envelopeStatus(t, rec); got != http.StatusOK {
		t.Fatalf("envelope status %d, want 200 (body %s)", got, rec.Body.String())
	}

	var env struct {
		Data usecase.ComparisonResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	custom, ok := env.Data.Agents["custom"]
	if !ok {
		t.Fatal("custom agent missing")
	}
	if custom.DeltaBps != -25 {
		t.Errorf("delta %v, want -25", custom.DeltaBps)
	}
	if len(custom.StressPath) != 8 {
		t.Errorf("stress path length %d, want 8", len(custom.StressPath))
	}
}

func TestAgentsSimulateWithoutSnapshot(t *testing.T) {
	_, e := newTestHandler(t, &stubEstimator{snap: testSnapshot()}, false)

	rec := doJSON(e, http.MethodPost, "/api/agents/simulate",
		`{"agents": ["custom"], "n_paths": 600, "horizon": 8}`)
	if got := envelopeStatus(t, rec); got != http.StatusNotFound {
		t.Fatalf("envelope status %d, want 404", got)
	}
}
