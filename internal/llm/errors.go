package llm

import (
	"errors"
	"strings"

	"github.com/geo-recog/internal/pool"
)

// Extraction failure kinds. Use errors.Is to tell them apart.
var (
	ErrEndpointUnavailable = pool.ErrEndpointUnavailable
	ErrInferenceTimeout    = errors.New("inference timed out")
	ErrInferenceFailed     = errors.New("inference request failed")
	ErrMalformedExtraction = errors.New("malformed extraction")
)

// MissingFieldError reports required keys absent or empty in the answer.
// It matches ErrMalformedExtraction under errors.Is.
type MissingFieldError struct {
	Fields []string
}

func (e *MissingFieldError) Error() string {
	return "missing " + strings.Join(e.Fields, ", ") + " field in LLM response"
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMalformedExtraction
}

// Kind names the failure category of err for logs and metrics.
func Kind(err error) string {
	var missing *MissingFieldError
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrEndpointUnavailable):
		return "endpoint_unavailable"
	case errors.Is(err, ErrInferenceTimeout):
		return "inference_timeout"
	case errors.As(err, &missing):
		return "missing_field"
	case errors.Is(err, ErrMalformedExtraction):
		return "malformed_extraction"
	case errors.Is(err, ErrInferenceFailed):
		return "inference_failed"
	default:
		return "unknown"
	}
}
