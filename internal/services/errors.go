package services

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("access denied")
	ErrEmptyFile        = errors.New("file is empty")
	ErrFileTooLarge     = errors.New("file exceeds the maximum upload size")
	ErrUnsupportedType  = errors.New("unsupported file type")
	ErrMaliciousContent = errors.New("file contains potentially malicious content")
	ErrNotReady         = errors.New("document is still being processed")
	ErrQueueClosed      = errors.New("job queue is shut down")
)
