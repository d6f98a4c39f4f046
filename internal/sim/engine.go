package sim

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"MacroSim/internal/domain/models"
)

// Config holds the process-wide model constants the engine needs. Values
// come from pkg/config; the sim package itself stays config-format agnostic.
type Config struct {
	TradingDaysPerMonth int
	FragileThreshold    float64
	CrisisThreshold     float64
	TransitionMatrix    [][]float64
	NoiseScales         []float64
	Shock               ShockConfig
	SpaghettiCount      int
}

// Weights are the loss weights for policy evaluation.
type Weights struct {
	Alpha  float64
	Beta   float64
	Gamma  float64
	Lambda float64
}

// Evaluation is the scored outcome of one policy action.
type Evaluation struct {
	DeltaBps          float64   `json:"delta_bps"`
	MeanStress        float64   `json:"mean_stress"`
	MeanGrowthPenalty float64   `json:"mean_growth_penalty"`
	MeanES95          float64   `json:"mean_es95"`
	CrisisEnd         float64   `json:"crisis_end"`
	TotalLoss         float64   `json:"total_loss"`
	CrisisProbPath    []float64 `json:"crisis_prob_path"`
}

// Engine owns one monthly model, its Cholesky factors, and one starting
// state. Built per request from a snapshot; every Simulate call owns a
// private ensemble, so concurrent calls on one engine are safe.
type Engine struct {
	n               int
	aMonthly        []float64
	bMonthly        []float64
	qChol           []float64
	p0Chol          []float64
	muT             []float64
	crisisThreshold float64
	stressStd       float64
	chain           *RegimeChain
	shock           ShockConfig
	spaghettiCount  int
}

// NewEngine converts the snapshot's daily model to monthly frequency and
// factorizes the covariances. A covariance that is not positive
// semi-definite after regularization fails with ErrInvalidCovariance.
func NewEngine(snap models.StateSnapshot, cfg Config) (*Engine, error) {
	if !snap.Valid() {
		return nil, fmt.Errorf("snapshot version %d: %w", snap.Version, ErrInvalidModel)
	}
	n := len(snap.MuT)

	a := mat.NewDense(n, n, flatten(snap.A))
	q := mat.NewDense(n, n, flatten(snap.Q))
	b := mat.NewVecDense(n, append([]float64(nil), snap.B...))

	am, qm, bm := DailyToMonthly(a, q, b, cfg.TradingDaysPerMonth)

	qChol, err := choleskyLower(qm, 1e-8)
	if err != nil {
		return nil, fmt.Errorf("monthly process noise: %w", err)
	}
	p0 := mat.NewDense(n, n, flatten(snap.PT))
	p0Chol, err := choleskyLower(p0, 1e-8)
	if err != nil {
		return nil, fmt.Errorf("starting covariance: %w", err)
	}

	amFlat := make([]float64, n*n)
	bmFlat := make([]float64, n)
	for i := 0; i < n; i++ {
		bmFlat[i] = bm.AtVec(i)
		for j := 0; j < n; j++ {
			amFlat[i*n+j] = am.At(i, j)
		}
	}

	spag := cfg.SpaghettiCount
	if spag <= 0 {
		spag = 30
	}

	return &Engine{
		n:               n,
		aMonthly:        amFlat,
		bMonthly:        bmFlat,
		qChol:           qChol,
		p0Chol:          p0Chol,
		muT:             append([]float64(nil), snap.MuT...),
		crisisThreshold: snap.CrisisThreshold,
		stressStd:       snap.StressStd,
		chain:           NewRegimeChain(cfg.TransitionMatrix, cfg.NoiseScales, cfg.FragileThreshold, cfg.CrisisThreshold),
		shock:           cfg.Shock,
		spaghettiCount:  spag,
	}, nil
}

// Simulate runs the regime-switching particle simulation for the given
// policy action and returns the ordered per-step summaries. Shocks shift
// the starting mean and add to the effective action; the initial regime is
// resolved from the shock-adjusted stress mean.
func (e *Engine) Simulate(deltaBps float64, paths, horizon int, shocks map[string]float64, regimeSwitching bool, seed int64) []StepResult {
	mu0 := e.muT
	extraBps := 0.0
	if len(shocks) > 0 {
		mu0, extraBps = ApplyShocks(e.muT, shocks, e.stressStd, e.shock)
	}

	return simulatePaths(kernelParams{
		n:               e.n,
		aMonthly:        e.aMonthly,
		bMonthly:        e.bMonthly,
		qChol:           e.qChol,
		mu0:             mu0,
		p0Chol:          e.p0Chol,
		deltaBps:        deltaBps + extraBps,
		paths:           paths,
		horizon:         horizon,
		regimeSwitching: regimeSwitching,
		chain:           e.chain,
		initialRegime:   e.chain.InitialRegime(mu0[idxStress]),
		crisisThreshold: e.crisisThreshold,
		spaghettiCount:  e.spaghettiCount,
		seed:            uint64(seed),
	})
}

// Evaluate scores one policy action:
//
//	loss = alpha*mean_stress + beta*growth_penalty + gamma*mean_es95 + lambda*crisis_end
//
// mean_stress averages the median stress per step, growth_penalty averages
// max(0, -median growth), crisis_end is the final step's crisis probability.
func (e *Engine) Evaluate(deltaBps float64, w Weights, paths, horizon int, shocks map[string]float64, regimeSwitching bool, seed int64) Evaluation {
	steps := e.Simulate(deltaBps, paths, horizon, shocks, regimeSwitching, seed)

	var meanStress, growthPenalty, meanES95 float64
	crisisPath := make([]float64, 0, len(steps))
	for _, s := range steps {
		meanStress += s.StressFan.P50
		if g := -s.GrowthFan.P50; g > 0 {
			growthPenalty += g
		}
		meanES95 += s.ES95Stress
		crisisPath = append(crisisPath, s.CrisisProb)
	}
	h := float64(len(steps))
	meanStress /= h
	growthPenalty /= h
	meanES95 /= h
	crisisEnd := steps[len(steps)-1].CrisisProb

	return Evaluation{
		DeltaBps:          deltaBps,
		MeanStress:        meanStress,
		MeanGrowthPenalty: growthPenalty,
		MeanES95:          meanES95,
		CrisisEnd:         crisisEnd,
		TotalLoss:         w.Alpha*meanStress + w.Beta*growthPenalty + w.Gamma*meanES95 + w.Lambda*crisisEnd,
		CrisisProbPath:    crisisPath,
	}
}

// InitialRegimeLabel classifies the engine's unshocked starting stress.
func (e *Engine) InitialRegimeLabel() string {
	return RegimeLabel(e.chain.InitialRegime(e.muT[idxStress]))
}

// choleskyLower returns the flat lower-triangular Cholesky factor of
// m + jitter*I, or ErrInvalidCovariance if factorization fails.
func choleskyLower(m *mat.Dense, jitter float64) ([]float64, error) {
	n, _ := m.Dims()
	sym := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := 0.5 * (m.At(i, j) + m.At(j, i))
			if i == j {
				v = m.At(i, i) + jitter
			}
			sym.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, ErrInvalidCovariance
	}

	var l mat.TriDense
	chol.LTo(&l)

	flat := make([]float64, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			flat[i*n+j] = l.At(i, j)
		}
	}
	return flat, nil
}

func flatten(m [][]float64) []float64 {
	n := len(m)
	out := make([]float64, 0, n*n)
	for _, row := range m {
		out = append(out, row...)
	}
	return out
}
