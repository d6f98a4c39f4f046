package sim

import "errors"

var (
	// ErrInvalidCovariance means a covariance matrix was not positive
	// semi-definite after regularization, so no Cholesky factor exists.
	// Fatal to the current call; never silently recovered.
	ErrInvalidCovariance = errors.New("covariance matrix is not positive semi-definite")

	// ErrInvalidModel means the supplied state-space model is malformed
	// (dimension mismatch or missing components).
	ErrInvalidModel = errors.New("invalid state-space model")
)
