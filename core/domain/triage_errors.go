package domain

import "errors"

// Item-scoped errors: recorded on the failing item, siblings keep going.
var (
	ErrDecode            = errors.New("text file is not valid UTF-8")
	ErrPDFProcessing     = errors.New("pdf text extraction failed")
	ErrMalformedResponse = errors.New("model response is not valid JSON")
	ErrContentBlocked    = errors.New("model stopped generation for safety reasons")
	ErrUnexpectedClient  = errors.New("unexpected model client error")
)

// Batch-scoped errors: abort the whole request.
var (
	ErrModelUnavailable = errors.New("model is not configured")
	ErrNoContent        = errors.New("no valid email content provided")
)
