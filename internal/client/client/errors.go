package client

import "errors"

var (
	ErrUnavailable = errors.New("server unavailable")
	// ErrQueued means the worker stored the upload for later replay and
	// answered with a synthetic response.
	ErrQueued = errors.New("request queued while offline")
)
