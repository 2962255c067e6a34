package models

type Software struct {
	SoftwareID string `json:"software_id"`
	Name       string `json:"software_name"`
	Version    string `json:"version"`
	MaxSeats   int    `json:"max_seats"`
}

type SoftwareUsage struct {
	SoftwareID     string `json:"software_id"`
	Name           string `json:"software_name"`
	Version        string `json:"version"`
	MaxSeats       int    `json:"max_seats"`
	ActiveSessions int    `json:"active_sessions"`
	Available      int    `json:"available"`
}
