package faults

import "time"

// Fault severities.
const (
	SeverityLow      = "LOW"
	SeverityModerate = "MODERATE"
	SeverityCritical = "CRITICAL"
)

// VehicleError is a reported diagnostic fault. Resolved flips true exactly
// once, when the service job linked to it completes.
type VehicleError struct {
	ID           string    `json:"id"`
	VehicleID    string    `json:"vehicle_id"`
	Code         string    `json:"code"`
	Severity     string    `json:"severity"`
	Resolved     bool      `json:"resolved"`
	ServiceJobID *string   `json:"service_job_id,omitempty"`
	ReportedAt   time.Time `json:"reported_at"`
}

// ReportRequest is the body for POST /faults (and the shape of the
// vehicle.fault.reported payload).
type ReportRequest struct {
	VehicleID string `json:"vehicle_id"`
	Code      string `json:"code"`
	Severity  string `json:"severity"`
}

// ValidSeverity reports whether s is one of the three severity levels.
func ValidSeverity(s string) bool {
	return s == SeverityLow || s == SeverityModerate || s == SeverityCritical
}
