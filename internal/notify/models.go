// Package notify scans for documents approaching expiry and creates
// in-app notification records, at most once per (document, threshold,
// recipient). Delivery itself happens in the dispatch package.
package notify

import (
	"time"

	id "attest/pkg/domain"
)

// Status is the delivery state of a notification.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Channel is the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in_app"
)

// Urgency is derived from how close the expiry threshold is.
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyLow    Urgency = "low"
)

// UrgencyFor maps a threshold to its urgency: the 7 day warning is high,
// 14 days medium, anything longer low.
func UrgencyFor(thresholdDays int) Urgency {
	switch {
	case thresholdDays <= 7:
		return UrgencyHigh
	case thresholdDays <= 14:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}

// Notification is an expiry-driven notification record. The engine is its
// only writer; CRUD surfaces read.
type Notification struct {
	ID            id.NotificationID
	TenantID      id.TenantID
	RecipientID   id.UserID
	Channel       Channel
	Status        Status
	Message       string
	DocumentID    id.DocumentID
	ThresholdDays int
	Urgency       Urgency
	Metadata      map[string]string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SweepResult reports one expiry scan across tenants.
type SweepResult struct {
	TenantsProcessed     int
	NotificationsCreated int
	Errors               map[id.TenantID]string
}
