package crm

import "errors"

// ErrCRMUnavailable wraps a retryable transport or 5xx/429 failure.
// The engine surfaces this as CRM_UNAVAILABLE and expects the caller
// to retry end-to-end.
var ErrCRMUnavailable = errors.New("crm: unavailable")

// ErrCRMRejected wraps a non-retryable 4xx response (other than 429),
// indicating the request itself was malformed or refused.
var ErrCRMRejected = errors.New("crm: request rejected")

// ErrNotFound is returned by Get when the CRM has no object with the
// given id.
var ErrNotFound = errors.New("crm: object not found")
