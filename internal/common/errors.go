// Package common defines shared constants and sentinel errors used across
// htgen components. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound        = errors.New("not found")
	ErrQuotaExceeded     = errors.New("storage quota exceeded")
	ErrUnsupportedSchema = errors.New("unsupported stored schema version")

	// Submission errors.
	ErrValidation = errors.New("validation error")
	ErrBusy       = errors.New("submission already in progress")
	ErrService    = errors.New("service error")

	// Transport errors.
	ErrNetwork    = errors.New("network error")
	ErrReplay     = errors.New("replay failed")
	ErrNoResponse = errors.New("no response")
)
