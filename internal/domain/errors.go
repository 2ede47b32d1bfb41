package domain

import "errors"

var (
	// ErrUpstreamUnavailable marks transient upstream failures (timeouts,
	// rate limits, 5xx). The whole operation may be retried by the caller.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrUpstreamRejected marks permanent, input-caused upstream rejections
	// (malformed or unsupported image). Retrying the same input is pointless.
	ErrUpstreamRejected = errors.New("upstream rejected input")

	// ErrMalformedUpstreamResponse marks contract violations by an upstream
	// service: the call succeeded but the payload does not match the schema.
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")

	// ErrIncompletePlan is returned when the planner cannot produce three
	// distinct, non-degenerate instructions.
	ErrIncompletePlan = errors.New("incomplete enhancement plan")

	// ErrAnalysisNotFound is returned when enhancement is requested for a
	// fingerprint that has never been analyzed.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrEnhancementSetFailed is returned when all three enhancement branches
	// failed. The joined error carries every branch cause.
	ErrEnhancementSetFailed = errors.New("all enhancement branches failed")
)

// Retryable reports whether the error class permits retrying the operation.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable)
}
