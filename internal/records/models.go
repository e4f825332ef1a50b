// Package records exposes read-only views over the record-management
// surfaces the engine consumes: tenants, users, clients, documents, and
// filings. The engine never writes these; they are fact sources owned by
// the CRUD side of the platform.
package records

import (
	"time"

	id "attest/pkg/domain"
)

// DocumentStatus is the lifecycle state of a compliance document.
type DocumentStatus string

const (
	DocumentValid         DocumentStatus = "valid"
	DocumentExpired       DocumentStatus = "expired"
	DocumentPendingReview DocumentStatus = "pending_review"
	DocumentRejected      DocumentStatus = "rejected"
)

// FilingStatus is the lifecycle state of a regulatory filing.
type FilingStatus string

const (
	FilingDraft     FilingStatus = "draft"
	FilingPrepared  FilingStatus = "prepared"
	FilingSubmitted FilingStatus = "submitted"
	FilingApproved  FilingStatus = "approved"
	FilingRejected  FilingStatus = "rejected"
	FilingOverdue   FilingStatus = "overdue"
	FilingArchived  FilingStatus = "archived"
)

// Tenant is the unit of isolation for scheduled runs.
type Tenant struct {
	ID     id.TenantID
	Name   string
	Status string
}

func (t Tenant) IsActive() bool { return t.Status == "active" }

// User resolves notification recipients by role membership.
type User struct {
	ID       id.UserID
	TenantID id.TenantID
	Email    string
	Role     string
}

// Client is the subject of compliance evaluation.
type Client struct {
	ID        id.ClientID
	TenantID  id.TenantID
	Name      string
	Type      string
	Sector    string
	RiskLevel string
}

// DocumentVersion carries the dates the expiry logic runs on. Only the
// active version of a document participates in evaluation.
type DocumentVersion struct {
	IssueDate  *time.Time
	ExpiryDate *time.Time
}

// Document is a client's compliance document with its active version.
type Document struct {
	ID            id.DocumentID
	TenantID      id.TenantID
	ClientID      id.ClientID
	CategoryID    id.CategoryID
	Name          string
	Status        DocumentStatus
	ActiveVersion *DocumentVersion
	CreatedAt     time.Time
}

// ExpiryDate returns the active version's expiry date, or nil when the
// document has no active version or no expiry.
func (d Document) ExpiryDate() *time.Time {
	if d.ActiveVersion == nil {
		return nil
	}
	return d.ActiveVersion.ExpiryDate
}

// Filing is a client's regulatory filing.
type Filing struct {
	ID         id.FilingID
	TenantID   id.TenantID
	ClientID   id.ClientID
	CategoryID id.CategoryID
	Status     FilingStatus
	PeriodEnd  *time.Time
	CreatedAt  time.Time
}
