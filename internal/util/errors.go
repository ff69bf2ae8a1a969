package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required record or blob was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidInput indicates a caller supplied an unusable argument
	ErrInvalidInput = errors.New("invalid input")

	// ErrRemoteWrite indicates the metadata store rejected an upsert or delete
	ErrRemoteWrite = errors.New("remote write failed")

	// ErrAIEmpty indicates the AI proxy answered with nothing usable
	ErrAIEmpty = errors.New("empty AI response")

	// ErrNoContent indicates the item has no extracted content to work from
	ErrNoContent = errors.New("item has no extracted content")

	// ErrBusy indicates the same resource already has an operation in flight
	ErrBusy = errors.New("operation already in progress")
)
