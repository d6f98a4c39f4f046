package usecase

import (
	"MacroSim/internal/sim"
	"MacroSim/pkg/config"
)

// SimConfigFrom maps the service configuration onto the engine's constants.
func SimConfigFrom(c config.Simulation) sim.Config {
	return sim.Config{
		TradingDaysPerMonth: c.TradingDaysPerMo,
		FragileThreshold:    c.FragileThreshold,
		CrisisThreshold:     c.CrisisThreshold,
		TransitionMatrix:    c.TransitionMatrix,
		NoiseScales:         c.RegimeNoiseScales,
		Shock: sim.ShockConfig{
			CreditStress:    c.ShockCreditStress,
			CreditLiquidity: c.ShockCreditLiq,
			VolStress:       c.ShockVolStress,
			RateBps:         c.ShockRateBps,
		},
		SpaghettiCount: c.SpaghettiCount,
	}
}
