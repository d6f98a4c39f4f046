package models

import "time"

// StateSnapshot is one versioned output of the external state estimator:
// the daily-frequency state-space model plus the filtered starting state.
// Snapshots are handed to engine construction by value and never mutated,
// so concurrent simulations each see a consistent model.
type StateSnapshot struct {
	Version         int64       `json:"version"`
	AsOf            time.Time   `json:"as_of"`
	A               [][]float64 `json:"A"`
	B               []float64   `json:"B"`
	Q               [][]float64 `json:"Q"`
	MuT             []float64   `json:"mu_T"`
	PT              [][]float64 `json:"P_T"`
	CrisisThreshold float64     `json:"crisis_threshold"`
	StressStd       float64     `json:"stress_std"`
	StressScore     float64     `json:"stress_score"`
	RegimeLabel     string      `json:"regime_label"`
	PolicyRate      float64     `json:"policy_rate"`
}

// Clone returns a deep copy so callers can hold a snapshot without
// aliasing the provider's buffers.
func (s StateSnapshot) Clone() StateSnapshot {
	out := s
	out.A = cloneMatrix(s.A)
	out.B = cloneVector(s.B)
	out.Q = cloneMatrix(s.Q)
	out.MuT = cloneVector(s.MuT)
	out.PT = cloneMatrix(s.PT)
	return out
}

// Valid reports whether the snapshot carries a complete n-dimensional model.
func (s StateSnapshot) Valid() bool {
	n := len(s.MuT)
	if n == 0 || s.StressStd <= 0 {
		return false
	}
	if len(s.A) != n || len(s.Q) != n || len(s.PT) != n || len(s.B) != n {
		return false
	}
	for i := 0; i < n; i++ {
		if len(s.A[i]) != n || len(s.Q[i]) != n || len(s.PT[i]) != n {
			return false
		}
	}
	return true
}

func cloneMatrix(m [][]float64) [][]float64 {
	if m == nil {
		return nil
	}
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}

func cloneVector(v []float64) []float64 {
	if v == nil {
		return nil
	}
	return append([]float64(nil), v...)
}
