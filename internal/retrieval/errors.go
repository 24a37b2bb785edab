package retrieval

import "errors"

// Fatal retrieval errors. Callers match them with errors.Is.
var (
	// ErrEmptyQuery indicates the query was empty after trimming.
	ErrEmptyQuery = errors.New("query is required")

	// ErrMissingRequester indicates a private partition was requested without a requester id.
	ErrMissingRequester = errors.New("requester id is required for private access")

	// ErrInvalidRequester indicates the requester id has an invalid format.
	ErrInvalidRequester = errors.New("invalid requester id")

	// ErrInvalidAccessMode indicates an unknown access mode.
	ErrInvalidAccessMode = errors.New("invalid access mode")

	// ErrEmbeddingFailed indicates the query vector could not be produced.
	ErrEmbeddingFailed = errors.New("query embedding failed")

	// ErrVectorQueryFailed indicates a partition vector query failed.
	ErrVectorQueryFailed = errors.New("vector query failed")

	// ErrInvalidConfig indicates the engine configuration is invalid.
	ErrInvalidConfig = errors.New("invalid retrieval config")
)
