package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	SessionActive  = "active"
	SessionClosed  = "closed"
	SessionExpired = "expired"
	SessionCrashed = "crashed"
)

type Session struct {
	SessionID      uuid.UUID  `json:"session_id"`
	AllocationID   string     `json:"allocation_id"`
	CheckoutTime   time.Time  `json:"checkout_time"`
	CheckinTime    *time.Time `json:"checkin_time,omitempty"`
	ClientHostname string     `json:"client_hostname"`
	ClientAddress  string     `json:"client_address"`
	LastHeartbeat  time.Time  `json:"last_heartbeat"`
	Status         string     `json:"session_status"`
}
