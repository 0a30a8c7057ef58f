package models

import "errors"

// Error taxonomy. None of these escape the public analysis entry points; they end up
// in a verdict's Error field or a method sub-result.
var (
	// ErrDecodeFailure: input bytes cannot be parsed as the declared media type
	ErrDecodeFailure = errors.New("decode failure")
	// ErrDegenerateInput: decoded but statistically trivial (empty, single value)
	ErrDegenerateInput = errors.New("degenerate input")
	// ErrPartialAnalysis: one test of the battery failed
	ErrPartialAnalysis = errors.New("partial analysis failure")
	// ErrCollaboratorUnavailable: an external tool or service is missing, timed out or errored
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrUnsupportedFormat: the extension is not in any known media set
	ErrUnsupportedFormat = errors.New("unsupported file format")
)
