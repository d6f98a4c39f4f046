package sim

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func testDailyModel() (*mat.Dense, *mat.Dense, *mat.VecDense) {
	a := mat.NewDense(3, 3, []float64{
		0.95, 0.02, -0.01,
		0.01, 0.90, 0.03,
		-0.02, 0.01, 0.88,
	})
	q := mat.NewDense(3, 3, []float64{
		0.010, 0.002, 0.001,
		0.002, 0.012, 0.000,
		0.001, 0.000, 0.008,
	})
	b := mat.NewVecDense(3, []float64{0.003, 0.006, -0.004})
	return a, q, b
}

func TestDailyToMonthlyIdentityAtOneDay(t *testing.T) {
	a, q, b := testDailyModel()

	am, qm, bm := DailyToMonthly(a, q, b, 1)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if d := math.Abs(am.At(i, j) - a.At(i, j)); d > 1e-9 {
				t.Errorf("A_m[%d,%d] = %v, want %v", i, j, am.At(i, j), a.At(i, j))
			}
			if d := math.Abs(qm.At(i, j) - q.At(i, j)); d > 1e-8 {
				t.Errorf("Q_m[%d,%d] = %v, want %v", i, j, qm.At(i, j), q.At(i, j))
			}
		}
		if d := math.Abs(bm.AtVec(i) - b.AtVec(i)); d > 1e-9 {
			t.Errorf("B_m[%d] = %v, want %v", i, bm.AtVec(i), b.AtVec(i))
		}
	}
}

func TestDailyToMonthlyMatchesDirectPower(t *testing.T) {
	a, q, b := testDailyModel()

	am, _, _ := DailyToMonthly(a, q, b, 21)

	var want mat.Dense
	want.Pow(a, 21)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if d := math.Abs(am.At(i, j) - want.At(i, j)); d > 1e-8 {
				t.Errorf("A_m[%d,%d] = %v, direct power gives %v", i, j, am.At(i, j), want.At(i, j))
			}
		}
	}
}

func TestMonthlyNoiseIsSymmetricAndFactorizable(t *testing.T) {
	a, q, b := testDailyModel()

	_, qm, _ := DailyToMonthly(a, q, b, 21)

	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if qm.At(i, j) != qm.At(j, i) {
				t.Fatalf("Q_m not symmetric at (%d,%d): %v vs %v", i, j, qm.At(i, j), qm.At(j, i))
			}
		}
	}

	if _, err := choleskyLower(qm, 0); err != nil {
		t.Fatalf("Q_m not Cholesky-factorizable: %v", err)
	}
}

func TestMonthlyNoiseAccumulates(t *testing.T) {
	a, q, b := testDailyModel()

	_, qm, _ := DailyToMonthly(a, q, b, 21)

	// Accumulated monthly variance must exceed a single day's.
	for i := 0; i < 3; i++ {
		if qm.At(i, i) <= q.At(i, i) {
			t.Errorf("Q_m[%d,%d] = %v, want > daily %v", i, i, qm.At(i, i), q.At(i, i))
		}
	}
}

func TestInvertComplexRoundTrip(t *testing.T) {
	m := []complex128{
		complex(2, 1), complex(0, -1), 1,
		0, complex(3, 0), complex(1, 1),
		complex(1, -1), 0, complex(2, 2),
	}

	inv, ok := invertComplex(m, 3)
	if !ok {
		t.Fatal("invertComplex reported singular for a regular matrix")
	}

	// m * inv must be the identity.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum complex128
			for k := 0; k < 3; k++ {
				sum += m[i*3+k] * inv[k*3+j]
			}
			want := complex128(0)
			if i == j {
				want = 1
			}
			if math.Abs(real(sum-want)) > 1e-10 || math.Abs(imag(sum-want)) > 1e-10 {
				t.Errorf("(m*inv)[%d,%d] = %v, want %v", i, j, sum, want)
			}
		}
	}
}

func TestInvertComplexSingular(t *testing.T) {
	m := []complex128{
		1, 2, 3,
		2, 4, 6,
		0, 0, 1,
	}
	if _, ok := invertComplex(m, 3); ok {
		t.Fatal("invertComplex accepted a singular matrix")
	}
}
