package events

// FaultReportedEvent arrives on vehicle.fault.reported from the telemetry
// ingestion pipeline.
type FaultReportedEvent struct {
	FaultID    string `json:"fault_id,omitempty"`
	VehicleID  string `json:"vehicle_id"`
	Code       string `json:"code"`
	Severity   string `json:"severity"`
	ReportedAt string `json:"reported_at,omitempty"`
}

// JobCreatedEvent is published to job.created.
type JobCreatedEvent struct {
	JobID     string  `json:"job_id"`
	JobNumber string  `json:"job_number"`
	VehicleID string  `json:"vehicle_id"`
	Priority  string  `json:"priority"`
	FaultID   string  `json:"fault_id,omitempty"`
	Estimated float64 `json:"estimated_cost"`
	CreatedAt string  `json:"created_at"`
}

// JobStatusChangedEvent is published to job.status.changed on every
// transition (start, complete, cancel).
type JobStatusChangedEvent struct {
	JobID     string `json:"job_id"`
	VehicleID string `json:"vehicle_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ChangedAt string `json:"changed_at"`
}

// JobCompletedEvent is published to job.completed.
type JobCompletedEvent struct {
	JobID           string  `json:"job_id"`
	VehicleID       string  `json:"vehicle_id"`
	ActualCost      float64 `json:"actual_cost"`
	ResolvedFaultID string  `json:"resolved_fault_id,omitempty"`
	CompletedAt     string  `json:"completed_at"`
}

// HubAssignedEvent is published to hub.assigned on both assign and unassign
// (VehicleID empty on unassign).
type HubAssignedEvent struct {
	HubID     string `json:"hub_id"`
	VehicleID string `json:"vehicle_id,omitempty"`
}
