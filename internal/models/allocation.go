package models

import "time"

type Allocation struct {
	AllocationID   string     `json:"allocation_id"`
	SoftwareID     string     `json:"software_id"`
	UserID         int64      `json:"user_id"`
	AllocationDate time.Time  `json:"allocation_date"`
	ExpiryDate     *time.Time `json:"expiry_date,omitempty"`
	IsActive       bool       `json:"is_active"`
}
