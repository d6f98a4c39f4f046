package sim

import (
	"math"
	"testing"

	"MacroSim/internal/domain/models"
)

func testConfig() Config {
	return Config{
		TradingDaysPerMonth: 21,
		FragileThreshold:    0.5,
		CrisisThreshold:     1.5,
		TransitionMatrix: [][]float64{
			{0.95, 0.05, 0.00},
			{0.05, 0.90, 0.05},
			{0.00, 0.10, 0.90},
		},
		NoiseScales: []float64{1.0, 1.8, 3.0},
		Shock: ShockConfig{
			CreditStress:    0.8,
			CreditLiquidity: 0.5,
			VolStress:       1.0,
			RateBps:         50.0,
		},
		SpaghettiCount: 30,
	}
}

func testSnapshot() models.StateSnapshot {
	return models.StateSnapshot{
		Version: 1,
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
			{0.05, 0.00, 0.00},
			{0.00, 0.05, 0.00},
			{0.00, 0.00, 0.05},
		},
		CrisisThreshold: 1.5,
		StressStd:       1.0,
		StressScore:     0.3,
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(testSnapshot(), testConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return eng
}

func TestNewEngineRejectsMalformedSnapshot(t *testing.T) {
	snap := testSnapshot()
	snap.A = snap.A[:2]
	if _, err := NewEngine(snap, testConfig()); err == nil {
		t.Fatal("expected error for truncated transition matrix")
	}
}

func TestSimulateDeterministicPerSeed(t *testing.T) {
	eng := newTestEngine(t)

	a := eng.Simulate(-25, 600, 8, nil, true, 42)
	b := eng.Simulate(-25, 600, 8, nil, true, 42)

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].StressFan != b[i].StressFan || a[i].GrowthFan != b[i].GrowthFan {
			t.Fatalf("step %d fans differ between identical runs", i+1)
		}
		if a[i].CrisisProb != b[i].CrisisProb || a[i].ES95Stress != b[i].ES95Stress {
			t.Fatalf("step %d tail stats differ between identical runs", i+1)
		}
	}
}

func TestSimulateDiffersAcrossSeeds(t *testing.T) {
	eng := newTestEngine(t)

	a := eng.Simulate(0, 600, 6, nil, true, 1)
	b := eng.Simulate(0, 600, 6, nil, true, 2)

	same := true
	for i := range a {
		if a[i].StressFan != b[i].StressFan {
			same = false
			break
		}
	}
	if same {
		t.Fatal("different seeds produced identical fan sequences")
	}
}

func TestPercentileOrderingInvariant(t *testing.T) {
	eng := newTestEngine(t)

	for _, s := range eng.Simulate(50, 900, 12, map[string]float64{"credit": 1.5}, true, 7) {
		for _, fan := range []Fan{s.StressFan, s.GrowthFan} {
			if !(fan.P5 <= fan.P25 && fan.P25 <= fan.P50 && fan.P50 <= fan.P75 && fan.P75 <= fan.P95) {
				t.Fatalf("step %d: percentiles out of order: %+v", s.Step, fan)
			}
		}
	}
}

func TestTailStatsInvariants(t *testing.T) {
	eng := newTestEngine(t)

	for _, s := range eng.Simulate(0, 800, 10, nil, true, 3) {
		if s.CrisisProb < 0 || s.CrisisProb > 1 {
			t.Fatalf("step %d: crisis_prob %v outside [0,1]", s.Step, s.CrisisProb)
		}
		if s.ES95Stress < s.StressFan.P95 {
			t.Fatalf("step %d: es95 %v below p95 %v", s.Step, s.ES95Stress, s.StressFan.P95)
		}
	}
}

func TestSpaghettiSampleSize(t *testing.T) {
	eng := newTestEngine(t)

	steps := eng.Simulate(0, 500, 6, nil, true, 5)
	for _, s := range steps {
		if len(s.Spaghetti) != 30 {
			t.Fatalf("step %d: %d spaghetti paths, want 30", s.Step, len(s.Spaghetti))
		}
		for i, p := range s.Spaghetti {
			if p.ID != i {
				t.Fatalf("spaghetti point %d has id %d", i, p.ID)
			}
		}
	}
}

func TestZeroNoiseCollapsesPercentiles(t *testing.T) {
	snap := testSnapshot()
	// Near-zero process and starting noise: every particle follows the
	// deterministic path, so all percentiles coincide.
	for i := range snap.Q {
		for j := range snap.Q[i] {
			snap.Q[i][j] = 0
		}
		snap.PT[i][i] = 0
	}
	eng, err := NewEngine(snap, testConfig())
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	delta := 25.0
	steps := eng.Simulate(delta, 1000, 1, nil, false, 42)
	s := steps[0]

	// Expected: A_m*mu + B_m*delta for the stress coordinate.
	want := eng.bMonthly[idxStress] * delta
	for k := 0; k < eng.n; k++ {
		want += eng.aMonthly[idxStress*eng.n+k] * snap.MuT[k]
	}

	spread := s.StressFan.P95 - s.StressFan.P5
	if spread > 1e-3 {
		t.Fatalf("zero-noise stress fan did not collapse: spread %v", spread)
	}
	if d := math.Abs(s.StressFan.P50 - want); d > 1e-3 {
		t.Fatalf("zero-noise median %v, want %v", s.StressFan.P50, want)
	}
}

func TestLargeEnsembleMeanTracksDeterministicPath(t *testing.T) {
	eng := newTestEngine(t)

	const (
		paths   = 8000
		horizon = 6
	)
	steps := eng.Simulate(0, paths, horizon, nil, false, 42)

	// Propagate the mean deterministically: mu <- A_m mu.
	mu := append([]float64(nil), eng.muT...)
	next := make([]float64, eng.n)
	for h := 0; h < horizon; h++ {
		for j := 0; j < eng.n; j++ {
			v := 0.0
			for k := 0; k < eng.n; k++ {
				v += eng.aMonthly[j*eng.n+k] * mu[k]
			}
			next[j] = v
		}
		copy(mu, next)
	}

	if d := math.Abs(steps[horizon-1].StressFan.P50 - mu[idxStress]); d > 0.05 {
		t.Fatalf("step %d median stress %v, deterministic mean %v (diff %v)",
			horizon, steps[horizon-1].StressFan.P50, mu[idxStress], d)
	}
}

func TestShockAdditivity(t *testing.T) {
	cfg := testConfig().Shock
	mu := []float64{0.3, -0.1, 0.2}

	creditMu, creditBps := ApplyShocks(mu, map[string]float64{"credit": 1}, 1.0, cfg)
	volMu, volBps := ApplyShocks(mu, map[string]float64{"vol": 1}, 1.0, cfg)
	bothMu, bothBps := ApplyShocks(mu, map[string]float64{"credit": 1, "vol": 1}, 1.0, cfg)

	for i := range mu {
		sum := creditMu[i] + volMu[i] - mu[i]
		if d := math.Abs(bothMu[i] - sum); d > 1e-12 {
			t.Errorf("mu[%d]: combined %v, separate sum %v", i, bothMu[i], sum)
		}
	}
	if bothBps != creditBps+volBps {
		t.Errorf("extra bps: combined %v, separate sum %v", bothBps, creditBps+volBps)
	}
}

func TestShockConstants(t *testing.T) {
	cfg := testConfig().Shock
	mu := []float64{0, 0, 0}

	shifted, extra := ApplyShocks(mu, map[string]float64{"credit": 2, "vol": -1, "rate": 0.5}, 2.0, cfg)

	// credit: 0.8*2*2 = 3.2 stress, 0.5*2*2 = 2.0 liquidity; vol: 1.0*-1*2 = -2.0 stress.
	if d := math.Abs(shifted[idxStress] - 1.2); d > 1e-12 {
		t.Errorf("stress shift %v, want 1.2", shifted[idxStress])
	}
	if d := math.Abs(shifted[idxLiquidity] - 2.0); d > 1e-12 {
		t.Errorf("liquidity shift %v, want 2.0", shifted[idxLiquidity])
	}
	if shifted[idxGrowth] != 0 {
		t.Errorf("growth shifted to %v, want 0", shifted[idxGrowth])
	}
	if extra != 25 {
		t.Errorf("extra bps %v, want 25", extra)
	}
}

func TestApplyShocksDoesNotMutateInput(t *testing.T) {
	mu := []float64{0.3, -0.1, 0.2}
	orig := append([]float64(nil), mu...)

	ApplyShocks(mu, map[string]float64{"credit": 3}, 1.0, testConfig().Shock)

	for i := range mu {
		if mu[i] != orig[i] {
			t.Fatalf("input mean mutated at %d: %v -> %v", i, orig[i], mu[i])
		}
	}
}

func TestEvaluateLossComposition(t *testing.T) {
	eng := newTestEngine(t)

	w := Weights{Alpha: 1, Beta: 2, Gamma: 0.5, Lambda: 3}
	ev := eng.Evaluate(-50, w, 700, 8, nil, true, 42)

	want := w.Alpha*ev.MeanStress + w.Beta*ev.MeanGrowthPenalty + w.Gamma*ev.MeanES95 + w.Lambda*ev.CrisisEnd
	if d := math.Abs(ev.TotalLoss - want); d > 1e-12 {
		t.Fatalf("total loss %v, components give %v", ev.TotalLoss, want)
	}
	if len(ev.CrisisProbPath) != 8 {
		t.Fatalf("crisis path length %d, want 8", len(ev.CrisisProbPath))
	}
	if ev.CrisisEnd != ev.CrisisProbPath[7] {
		t.Fatalf("crisis_end %v differs from final path entry %v", ev.CrisisEnd, ev.CrisisProbPath[7])
	}
	if ev.MeanGrowthPenalty < 0 {
		t.Fatalf("growth penalty %v is negative", ev.MeanGrowthPenalty)
	}
}

func TestInitialRegimeThresholds(t *testing.T) {
	cfg := testConfig()
	chain := NewRegimeChain(cfg.TransitionMatrix, cfg.NoiseScales, cfg.FragileThreshold, cfg.CrisisThreshold)

	cases := []struct {
		stress float64
		want   int
	}{
		{-1.0, RegimeCalm},
		{0.49, RegimeCalm},
		{0.5, RegimeFragile},
		{1.49, RegimeFragile},
		{1.5, RegimeCrisis},
		{3.0, RegimeCrisis},
	}
	for _, c := range cases {
		if got := chain.InitialRegime(c.stress); got != c.want {
			t.Errorf("InitialRegime(%v) = %d, want %d", c.stress, got, c.want)
		}
	}
}

func TestRegimeSampling(t *testing.T) {
	cfg := testConfig()
	chain := NewRegimeChain(cfg.TransitionMatrix, cfg.NoiseScales, cfg.FragileThreshold, cfg.CrisisThreshold)

	// From calm: cumulative row is [0.95, 1.00, 1.00].
	if got := chain.Sample(RegimeCalm, 0.5); got != RegimeCalm {
		t.Errorf("Sample(calm, 0.5) = %d, want calm", got)
	}
	if got := chain.Sample(RegimeCalm, 0.97); got != RegimeFragile {
		t.Errorf("Sample(calm, 0.97) = %d, want fragile", got)
	}
	// Ties resolve toward the lower-indexed regime.
	if got := chain.Sample(RegimeCalm, 0.95); got != RegimeCalm {
		t.Errorf("Sample(calm, 0.95) = %d, want calm on boundary", got)
	}
	// From crisis: cumulative row is [0.00, 0.10, 1.00].
	if got := chain.Sample(RegimeCrisis, 0.05); got != RegimeFragile {
		t.Errorf("Sample(crisis, 0.05) = %d, want fragile", got)
	}
	if got := chain.Sample(RegimeCrisis, 0.99); got != RegimeCrisis {
		t.Errorf("Sample(crisis, 0.99) = %d, want crisis", got)
	}
}

func TestRegimeSwitchingWidensTails(t *testing.T) {
	eng := newTestEngine(t)

	// Crisis-level starting stress puts particles in the high-noise regime.
	on := eng.Simulate(0, 4000, 12, map[string]float64{"credit": 3}, true, 42)
	off := eng.Simulate(0, 4000, 12, map[string]float64{"credit": 3}, false, 42)

	onSpread := on[11].StressFan.P95 - on[11].StressFan.P5
	offSpread := off[11].StressFan.P95 - off[11].StressFan.P5
	if onSpread <= offSpread {
		t.Fatalf("regime switching did not widen the fan: on %v, off %v", onSpread, offSpread)
	}
}
