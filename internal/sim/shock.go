package sim

// Shock names accepted by ApplyShocks.
const (
	ShockCredit = "credit"
	ShockVol    = "vol"
	ShockRate   = "rate"
)

// ShockConfig holds the scaling constants applied per unit of shock
// intensity (in standard-deviation units for state shocks).
type ShockConfig struct {
	CreditStress    float64
	CreditLiquidity float64
	VolStress       float64
	RateBps         float64
}

// ApplyShocks perturbs the starting mean and the effective control
// magnitude. credit hits stress and liquidity, vol hits stress, rate adds
// basis points to the policy action. Intensities compose additively;
// absent or zero entries are no-ops. Pure and total.
func ApplyShocks(mu []float64, shocks map[string]float64, stressStd float64, cfg ShockConfig) (shifted []float64, extraBps float64) {
	shifted = append([]float64(nil), mu...)

	if k := shocks[ShockCredit]; k != 0 {
		shifted[idxStress] += cfg.CreditStress * k * stressStd
		shifted[idxLiquidity] += cfg.CreditLiquidity * k * stressStd
	}
	if k := shocks[ShockVol]; k != 0 {
		shifted[idxStress] += cfg.VolStress * k * stressStd
	}
	if k := shocks[ShockRate]; k != 0 {
		extraBps += cfg.RateBps * k
	}

	return shifted, extraBps
}
