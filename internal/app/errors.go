package app

import "errors"

var (
	// ErrValidation indicates missing or malformed required input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a referenced book or review does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNoText indicates a PDF yielded no usable text.
	ErrNoText = errors.New("no usable text")
	// ErrUpstream indicates the summarization collaborator failed.
	ErrUpstream = errors.New("summarization failed")
	// ErrStorage indicates the object upload or delete failed.
	ErrStorage = errors.New("object storage failed")
)
