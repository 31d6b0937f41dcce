package util

import "errors"

var (
	ErrUnsupportedFormat     = errors.New("unsupported file format")
	ErrImageProcessingFailed = errors.New("image processing failed")
	ErrEmbeddingFailed       = errors.New("embedding failed")
	ErrStoreFailed           = errors.New("vector store write failed")
	ErrModelInvocation       = errors.New("model invocation failed")

	ErrQuotaExhausted = errors.New("provider quota exhausted")
	ErrRateLimited    = errors.New("provider rate limited")
	ErrTransient      = errors.New("transient provider error")
	ErrPermanent      = errors.New("permanent provider error")
	ErrContextTooLong = errors.New("context too long")
)
