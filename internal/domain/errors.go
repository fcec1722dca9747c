package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidCategory    = errors.New("invalid category: must be general, birthday, event, or holiday")
	ErrEmptyBody          = errors.New("body must not be empty")
	ErrBodyTooLong        = errors.New("body exceeds 63206 characters")
	ErrPublishTimeTooSoon = errors.New("publish_at is not far enough in the future")
	ErrMissingPublishAt   = errors.New("publish_at is required")
	ErrInvalidMediaRef    = errors.New("media_refs must be absolute http(s) URLs")
	ErrTooManyMedia       = errors.New("too many media references")
	ErrAlreadySubmitted   = errors.New("post was already submitted to the platform")
	ErrPublisherDisabled  = errors.New("no platform publisher is configured")
	ErrPassInProgress     = errors.New("a reconciliation pass is already running")
	ErrEmptyUpload        = errors.New("uploaded file is empty")
	ErrAssetHostDisabled  = errors.New("no asset host is configured")
	ErrReconcileDisabled  = errors.New("reconciliation is not running: publish status checks are disabled")

	// Upstream failures; the underlying cause is wrapped alongside.
	ErrPlatformFailure  = errors.New("platform request failed")
	ErrAssetHostFailure = errors.New("asset upload failed")
)
