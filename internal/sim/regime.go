package sim

// Regime labels, indexed by regime number.
const (
	RegimeCalm = iota
	RegimeFragile
	RegimeCrisis

	numRegimes = 3
)

var regimeLabels = [numRegimes]string{"calm", "fragile", "crisis"}

// RegimeLabel returns the display label for a regime index.
func RegimeLabel(r int) string {
	if r < 0 || r >= numRegimes {
		return "unknown"
	}
	return regimeLabels[r]
}

// RegimeChain is the 3-state Markov chain over volatility/liquidity regimes.
// The transition matrix is stored in cumulative-row form so sampling is a
// single uniform draw plus a short scan (inverse CDF).
type RegimeChain struct {
	cumulative [numRegimes][numRegimes]float64
	scales     [numRegimes]float64
	fragile    float64
	crisis     float64
}

// NewRegimeChain builds a chain from a row-stochastic 3x3 transition matrix,
// per-regime noise scales, and the stress thresholds that classify the
// initial regime.
func NewRegimeChain(pi [][]float64, scales []float64, fragileThreshold, crisisThreshold float64) *RegimeChain {
	c := &RegimeChain{
		fragile: fragileThreshold,
		crisis:  crisisThreshold,
	}
	for i := 0; i < numRegimes; i++ {
		sum := 0.0
		for j := 0; j < numRegimes; j++ {
			sum += pi[i][j]
			c.cumulative[i][j] = sum
		}
	}
	copy(c.scales[:], scales)
	return c
}

// InitialRegime classifies a stress score into a starting regime.
func (c *RegimeChain) InitialRegime(stress float64) int {
	switch {
	case stress < c.fragile:
		return RegimeCalm
	case stress < c.crisis:
		return RegimeFragile
	default:
		return RegimeCrisis
	}
}

// Sample draws the next regime from the current one using a uniform(0,1)
// draw u. The first cumulative entry at or above u wins; the last regime is
// the default when floating-point slack leaves no entry qualifying.
func (c *RegimeChain) Sample(current int, u float64) int {
	for j := 0; j < numRegimes; j++ {
		if u <= c.cumulative[current][j] {
			return j
		}
	}
	return numRegimes - 1
}

// NoiseScale returns the process-noise scaling factor for a regime.
func (c *RegimeChain) NoiseScale(regime int) float64 {
	return c.scales[regime]
}
