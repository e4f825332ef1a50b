package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and infrastructure layers
// return these (optionally wrapped) so services can translate them into
// caller-facing outcomes.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: insert collided with an existing row (dedup constraint)
// - ErrInvalidConfig: a rule or bundle item is malformed and cannot be evaluated
// - ErrTransient: datastore timeout or connection failure, safe to retry
// - ErrDelivery: a notification channel send failed
// - ErrUnavailable: service or resource temporarily unavailable (rate limited)
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrTransient     = errors.New("transient store error")
	ErrDelivery      = errors.New("delivery failed")
	ErrUnavailable   = errors.New("unavailable")
)
