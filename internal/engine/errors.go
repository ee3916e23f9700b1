package engine

import "errors"

// ErrUnavailable signals a missing inference runtime (for example a binary
// built without the 'llama' tag), so the HTTP layer can answer 503 instead of 500.
var ErrUnavailable = errors.New("inference backend unavailable")

// IsUnavailable reports whether err indicates a missing runtime dependency.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }

// GenerationError wraps a failure raised by the backend during generation.
type GenerationError struct{ Err error }

func (e *GenerationError) Error() string { return "generation failed: " + e.Err.Error() }

func (e *GenerationError) Unwrap() error { return e.Err }

// IsGenerationError reports whether err is, or wraps, a GenerationError.
func IsGenerationError(err error) bool {
	var ge *GenerationError
	return errors.As(err, &ge)
}
