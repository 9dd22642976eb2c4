package embeddings

import "errors"

var (
	// ErrModelLoad is returned when the embedding model cannot be initialized.
	// It is sticky: a Model that failed to load never retries, unless the
	// failure was a cancellation or timeout.
	ErrModelLoad = errors.New("embeddings: model load failed")

	// ErrZeroVector is returned when a text embeds to a zero-magnitude vector,
	// which has no direction and cannot be compared by cosine distance.
	ErrZeroVector = errors.New("embeddings: zero-magnitude vector")

	// ErrDimension is returned when the model produces a vector whose length
	// differs from the dimension observed at load time.
	ErrDimension = errors.New("embeddings: unexpected vector dimension")
)
