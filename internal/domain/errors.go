package domain

import "errors"

// DuplicateError is an exact-tier rejection carrying the hash of the
// record that already holds the content. It matches ErrDuplicateRejected
// under errors.Is.
type DuplicateError struct {
	ContentHash string
}

func (e *DuplicateError) Error() string {
	return "content already registered as " + e.ContentHash
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicateRejected }

var (
	ErrContentTooLarge      = errors.New("content too large")
	ErrContentTooShort      = errors.New("content too short")
	ErrInvalidContentHash   = errors.New("invalid content hash format")
	ErrInvalidLicense       = errors.New("invalid license terms")
	ErrDuplicateRejected    = errors.New("content already registered")
	ErrContentNotFound      = errors.New("content not found")
	ErrVersionNotFound      = errors.New("previous version not found")
	ErrUnauthorizedTransfer = errors.New("unauthorized ownership transfer")
	ErrLicenseViolation     = errors.New("license violation")
	ErrDeliveryFailed       = errors.New("webhook delivery failed")
	ErrWebhookNotFound      = errors.New("webhook not found")
)
