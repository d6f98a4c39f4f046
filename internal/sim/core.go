package sim

import (
	"math"
	"sort"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// State coordinate indices.
const (
	idxStress = iota
	idxLiquidity
	idxGrowth
)

// Fan holds the five percentile values of one simulated quantity at one
// time step.
type Fan struct {
	P5  float64 `json:"p5"`
	P25 float64 `json:"p25"`
	P50 float64 `json:"p50"`
	P75 float64 `json:"p75"`
	P95 float64 `json:"p95"`
}

// SpaghettiPoint is one particle's raw stress value, keyed by particle
// index so the client can draw continuous individual trajectories.
type SpaghettiPoint struct {
	ID     int     `json:"id"`
	Stress float64 `json:"stress"`
}

// StepResult is the distributional summary of the ensemble at one monthly
// step. Immutable once produced.
type StepResult struct {
	Step       int              `json:"step"`
	Horizon    int              `json:"H"`
	StressFan  Fan              `json:"stress_fan"`
	GrowthFan  Fan              `json:"growth_fan"`
	CrisisProb float64          `json:"crisis_prob"`
	ES95Stress float64          `json:"es95_stress"`
	Spaghetti  []SpaghettiPoint `json:"spaghetti"`
	Done       bool             `json:"done"`
}

// kernelParams carries everything the simulation loop needs. Matrices are
// flat row-major float64 slices; the loop is a single explicit kernel.
type kernelParams struct {
	n               int
	aMonthly        []float64 // n x n
	bMonthly        []float64 // n, already at monthly frequency
	qChol           []float64 // n x n lower Cholesky of Q_monthly
	mu0             []float64
	p0Chol          []float64 // n x n lower Cholesky of starting covariance
	deltaBps        float64
	paths           int
	horizon         int
	regimeSwitching bool
	chain           *RegimeChain
	initialRegime   int
	crisisThreshold float64
	spaghettiCount  int
	seed            uint64
}

// simulatePaths propagates the ensemble for H steps and summarizes each
// step. Deterministic per seed: the draw order is fixed (per-particle init
// normals, then per step per particle a uniform regime draw when switching
// is on followed by n noise normals).
func simulatePaths(p kernelParams) []StepResult {
	n := p.n
	N := p.paths

	src := rand.NewSource(p.seed)
	rng := rand.New(src)
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}

	bu := make([]float64, n)
	for j := 0; j < n; j++ {
		bu[j] = p.bMonthly[j] * p.deltaBps
	}

	// Initialize particles: mu0 + L_Sigma z, all in the initial regime.
	states := make([]float64, N*n)
	regimes := make([]int, N)
	z := make([]float64, n)
	for i := 0; i < N; i++ {
		for k := 0; k < n; k++ {
			z[k] = normal.Rand()
		}
		for j := 0; j < n; j++ {
			x := p.mu0[j]
			for k := 0; k < n; k++ {
				x += p.p0Chol[j*n+k] * z[k]
			}
			states[i*n+j] = x
		}
		regimes[i] = p.initialRegime
	}

	nSpag := p.spaghettiCount
	if nSpag > N {
		nSpag = N
	}

	results := make([]StepResult, 0, p.horizon)
	newX := make([]float64, n)
	stressVals := make([]float64, N)
	growthVals := make([]float64, N)
	stressSorted := make([]float64, N)
	growthSorted := make([]float64, N)

	for step := 0; step < p.horizon; step++ {
		for i := 0; i < N; i++ {
			scale := 1.0
			if p.regimeSwitching {
				regimes[i] = p.chain.Sample(regimes[i], rng.Float64())
				scale = p.chain.NoiseScale(regimes[i])
			}
			sqrtScale := math.Sqrt(scale)

			for k := 0; k < n; k++ {
				z[k] = normal.Rand()
			}

			for j := 0; j < n; j++ {
				noise := 0.0
				for k := 0; k < n; k++ {
					noise += p.qChol[j*n+k] * z[k]
				}
				x := bu[j] + noise*sqrtScale
				for k := 0; k < n; k++ {
					x += p.aMonthly[j*n+k] * states[i*n+k]
				}
				newX[j] = x
			}
			copy(states[i*n:i*n+n], newX)
		}

		for i := 0; i < N; i++ {
			stressVals[i] = states[i*n+idxStress]
			growthVals[i] = states[i*n+idxGrowth]
		}
		copy(stressSorted, stressVals)
		copy(growthSorted, growthVals)
		sort.Float64s(stressSorted)
		sort.Float64s(growthSorted)

		nCrisis := 0
		for i := 0; i < N; i++ {
			if stressVals[i] > p.crisisThreshold {
				nCrisis++
			}
		}

		idx95 := int(0.95 * float64(N))
		nTail := N - idx95
		if nTail < 1 {
			nTail = 1
		}
		esSum := 0.0
		for i := idx95; i < N; i++ {
			esSum += stressSorted[i]
		}

		spag := make([]SpaghettiPoint, nSpag)
		for i := 0; i < nSpag; i++ {
			spag[i] = SpaghettiPoint{ID: i, Stress: stressVals[i]}
		}

		results = append(results, StepResult{
			Step:       step + 1,
			Horizon:    p.horizon,
			StressFan:  fanOf(stressSorted, N),
			GrowthFan:  fanOf(growthSorted, N),
			CrisisProb: float64(nCrisis) / float64(N),
			ES95Stress: esSum / float64(nTail),
			Spaghetti:  spag,
		})
	}

	return results
}

// fanOf reads the five fan percentiles off a fully sorted slice. The index
// convention is the floor(p*N) order statistic, no interpolation.
func fanOf(sorted []float64, n int) Fan {
	return Fan{
		P5:  sorted[int(0.05*float64(n))],
		P25: sorted[int(0.25*float64(n))],
		P50: sorted[int(0.50*float64(n))],
		P75: sorted[int(0.75*float64(n))],
		P95: sorted[int(0.95*float64(n))],
	}
}
