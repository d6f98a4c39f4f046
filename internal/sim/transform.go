package sim

import (
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// DailyToMonthly converts a daily-frequency linear-Gaussian state-space
// model {A, Q, B} to monthly frequency over d trading days:
//
//	A_m = A^d
//	Q_m = sum_{k=0}^{d-1} A^k Q (A^k)^T, symmetrized, + 1e-10 I
//	B_m = sum_{k=0}^{d-1} A^k B
//
// A^d goes through eigendecomposition for numerical stability; a failed or
// singular decomposition falls back to direct integer matrix power. The
// function never fails.
func DailyToMonthly(a, q *mat.Dense, b *mat.VecDense, days int) (am, qm *mat.Dense, bm *mat.VecDense) {
	n, _ := a.Dims()

	am = matrixPower(a, days)

	// Exact finite noise-accumulation and control sums, sharing the
	// running A^k.
	qm = mat.NewDense(n, n, nil)
	bm = mat.NewVecDense(n, nil)
	aPow := identity(n)
	var tmp, term mat.Dense
	var bTerm mat.VecDense
	for k := 0; k < days; k++ {
		tmp.Mul(aPow, q)
		term.Mul(&tmp, aPow.T())
		qm.Add(qm, &term)

		bTerm.MulVec(aPow, b)
		bm.AddVec(bm, &bTerm)

		var next mat.Dense
		next.Mul(aPow, a)
		aPow.CloneFrom(&next)
	}

	// Symmetrize, then nudge the diagonal so a Cholesky factor exists.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			avg := 0.5 * (qm.At(i, j) + qm.At(j, i))
			qm.Set(i, j, avg)
			qm.Set(j, i, avg)
		}
		qm.Set(i, i, qm.At(i, i)+1e-10)
	}

	return am, qm, bm
}

// matrixPower computes A^d, preferring V diag(lambda^d) V^{-1}.
func matrixPower(a *mat.Dense, d int) *mat.Dense {
	if m, ok := powerViaEigen(a, d); ok {
		return m
	}
	n, _ := a.Dims()
	out := mat.NewDense(n, n, nil)
	out.Pow(a, d)
	return out
}

func powerViaEigen(a *mat.Dense, d int) (*mat.Dense, bool) {
	n, _ := a.Dims()

	var eig mat.Eigen
	if ok := eig.Factorize(a, mat.EigenRight); !ok {
		return nil, false
	}

	values := eig.Values(nil)
	var cv mat.CDense
	eig.VectorsTo(&cv)

	v := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v[i*n+j] = cv.At(i, j)
		}
	}

	vinv, ok := invertComplex(v, n)
	if !ok {
		return nil, false
	}

	// V diag(lambda^d) V^{-1}, real part.
	powered := make([]complex128, n)
	for j := 0; j < n; j++ {
		powered[j] = cmplx.Pow(values[j], complex(float64(d), 0))
	}

	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var sum complex128
			for k := 0; k < n; k++ {
				sum += v[i*n+k] * powered[k] * vinv[k*n+j]
			}
			out.Set(i, j, real(sum))
		}
	}
	return out, true
}

// invertComplex inverts an n x n complex matrix (row-major) by Gauss-Jordan
// elimination with partial pivoting. Returns false for a singular matrix.
// gonum has no complex-matrix inverse, and n here is tiny.
func invertComplex(m []complex128, n int) ([]complex128, bool) {
	a := append([]complex128(nil), m...)
	inv := make([]complex128, n*n)
	for i := 0; i < n; i++ {
		inv[i*n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		best := cmplx.Abs(a[col*n+col])
		for r := col + 1; r < n; r++ {
			if v := cmplx.Abs(a[r*n+col]); v > best {
				best = v
				pivot = r
			}
		}
		if best < 1e-12 {
			return nil, false
		}
		if pivot != col {
			for j := 0; j < n; j++ {
				a[col*n+j], a[pivot*n+j] = a[pivot*n+j], a[col*n+j]
				inv[col*n+j], inv[pivot*n+j] = inv[pivot*n+j], inv[col*n+j]
			}
		}

		p := a[col*n+col]
		for j := 0; j < n; j++ {
			a[col*n+j] /= p
			inv[col*n+j] /= p
		}

		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			f := a[r*n+col]
			if f == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				a[r*n+j] -= f * a[col*n+j]
				inv[r*n+j] -= f * inv[col*n+j]
			}
		}
	}
	return inv, true
}

func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}
