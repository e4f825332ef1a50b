// Package domain holds typed identifiers and small value types shared across
// the engine. IDs are distinct uuid-backed types so a TenantID can never be
// passed where a ClientID is expected; construct them via the Parse functions
// at trust boundaries.
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID is returned by the Parse functions for empty, malformed, or
// nil UUIDs.
var ErrInvalidID = errors.New("invalid id")

type (
	TenantID       uuid.UUID
	ClientID       uuid.UUID
	UserID         uuid.UUID
	DocumentID     uuid.UUID
	FilingID       uuid.UUID
	CategoryID     uuid.UUID
	RuleSetID      uuid.UUID
	RuleID         uuid.UUID
	BundleID       uuid.UUID
	BundleItemID   uuid.UUID
	NotificationID uuid.UUID
	RunID          uuid.UUID
)

func parseUUID(kind, s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("%w: %s cannot be empty", ErrInvalidID, kind)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s is not a valid uuid", ErrInvalidID, kind)
	}
	if u == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: %s cannot be the nil uuid", ErrInvalidID, kind)
	}
	return u, nil
}

func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID("tenant id", s)
	return TenantID(u), err
}

func ParseClientID(s string) (ClientID, error) {
	u, err := parseUUID("client id", s)
	return ClientID(u), err
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID("user id", s)
	return UserID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID("document id", s)
	return DocumentID(u), err
}

func ParseFilingID(s string) (FilingID, error) {
	u, err := parseUUID("filing id", s)
	return FilingID(u), err
}

func ParseCategoryID(s string) (CategoryID, error) {
	u, err := parseUUID("category id", s)
	return CategoryID(u), err
}

func NewTenantID() TenantID             { return TenantID(uuid.New()) }
func NewClientID() ClientID             { return ClientID(uuid.New()) }
func NewUserID() UserID                 { return UserID(uuid.New()) }
func NewDocumentID() DocumentID         { return DocumentID(uuid.New()) }
func NewFilingID() FilingID             { return FilingID(uuid.New()) }
func NewCategoryID() CategoryID         { return CategoryID(uuid.New()) }
func NewRuleSetID() RuleSetID           { return RuleSetID(uuid.New()) }
func NewRuleID() RuleID                 { return RuleID(uuid.New()) }
func NewBundleID() BundleID             { return BundleID(uuid.New()) }
func NewBundleItemID() BundleItemID     { return BundleItemID(uuid.New()) }
func NewNotificationID() NotificationID { return NotificationID(uuid.New()) }
func NewRunID() RunID                   { return RunID(uuid.New()) }

func (id TenantID) String() string       { return uuid.UUID(id).String() }
func (id ClientID) String() string       { return uuid.UUID(id).String() }
func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }
func (id FilingID) String() string       { return uuid.UUID(id).String() }
func (id CategoryID) String() string     { return uuid.UUID(id).String() }
func (id RuleSetID) String() string      { return uuid.UUID(id).String() }
func (id RuleID) String() string         { return uuid.UUID(id).String() }
func (id BundleID) String() string       { return uuid.UUID(id).String() }
func (id BundleItemID) String() string   { return uuid.UUID(id).String() }
func (id NotificationID) String() string { return uuid.UUID(id).String() }
func (id RunID) String() string          { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ClientID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id NotificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
