package vectorstore

import "errors"

var (
	// ErrInvalidConfig indicates invalid backend configuration.
	ErrInvalidConfig = errors.New("invalid vectorstore configuration")

	// ErrConnectionFailed indicates the backend could not be reached.
	ErrConnectionFailed = errors.New("vectorstore connection failed")

	// ErrInvalidNamespace indicates a namespace failed validation.
	ErrInvalidNamespace = errors.New("invalid namespace")

	// ErrInvalidFilter indicates an unsupported or incomplete filter.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrDimensionMismatch indicates a vector of the wrong size.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrCircuitOpen indicates the backend circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrKeywordUnsupported indicates a backend cannot serve keyword search.
	ErrKeywordUnsupported = errors.New("keyword search not supported by backend")
)
