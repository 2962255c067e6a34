package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	AuditCheckout = "checkout"
	AuditCheckin  = "checkin"
	AuditDeny     = "deny"
	AuditExpire   = "expire"
	AuditAllocate = "allocate"
)

// AuditEvent is append-only; rows are never updated or deleted.
type AuditEvent struct {
	ID            int64      `json:"id"`
	SoftwareID    *string    `json:"software_id,omitempty"`
	UserID        *int64     `json:"user_id,omitempty"`
	Action        string     `json:"action"`
	EventTime     time.Time  `json:"event_time"`
	ClientAddress *string    `json:"client_address,omitempty"`
	SessionID     *uuid.UUID `json:"session_id,omitempty"`
	Detail        *string    `json:"detail,omitempty"`
}
