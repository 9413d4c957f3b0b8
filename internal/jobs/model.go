package jobs

import "time"

// Job statuses.
const (
	StatusPending    = "PENDING"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
)

// Job priorities.
const (
	PriorityLow    = "LOW"
	PriorityMedium = "MEDIUM"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// ServiceJob is one unit of maintenance work against a vehicle, optionally
// created from a reported fault.
type ServiceJob struct {
	ID              string     `json:"id"`
	JobNumber       string     `json:"job_number"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	Instructions    string     `json:"instructions"`
	Status          string     `json:"status"`
	Priority        string     `json:"priority"`
	VehicleID       string     `json:"vehicle_id"`
	FaultID         *string    `json:"fault_id,omitempty"`
	ScheduledDate   time.Time  `json:"scheduled_date"`
	EstimatedCost   float64    `json:"estimated_cost"`
	ActualCost      *float64   `json:"actual_cost,omitempty"`
	CompletionNotes string     `json:"completion_notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`

	Mechanics []MechanicAssignment `json:"mechanics"`
	Parts     []RequiredPart       `json:"parts"`
}

// MechanicAssignment records one mechanic offered a job. Accepted never
// reverts to false; a decline deletes the record instead.
type MechanicAssignment struct {
	ID         string     `json:"id"`
	JobID      string     `json:"job_id"`
	MechanicID string     `json:"mechanic_id"`
	AssignedAt time.Time  `json:"assigned_at"`
	Accepted   bool       `json:"accepted"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// RequiredPart is a parts line item. TotalPrice is derived from quantity and
// unit price on every read, never stored.
type RequiredPart struct {
	ID           string  `json:"id"`
	JobID        string  `json:"job_id"`
	Name         string  `json:"name"`
	PartNumber   string  `json:"part_number"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Supplier     string  `json:"supplier,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
	TotalPrice   float64 `json:"total_price"`
	Ordered      bool    `json:"ordered"`
	Received     bool    `json:"received"`
}

// Total recomputes the line total from its inputs.
func (p *RequiredPart) Total() float64 {
	return float64(p.Quantity) * p.UnitPrice
}

// assignment returns the job's assignment for a mechanic, or nil.
func (j *ServiceJob) assignment(mechanicID string) *MechanicAssignment {
	for i := range j.Mechanics {
		if j.Mechanics[i].MechanicID == mechanicID {
			return &j.Mechanics[i]
		}
	}
	return nil
}

// acceptedCount counts assignments with accepted = true.
func (j *ServiceJob) acceptedCount() int {
	n := 0
	for i := range j.Mechanics {
		if j.Mechanics[i].Accepted {
			n++
		}
	}
	return n
}

// PartInput is a parts line item as submitted by the caller; the total is
// never taken from the client.
type PartInput struct {
	Name         string  `json:"name"`
	PartNumber   string  `json:"part_number"`
	Manufacturer string  `json:"manufacturer,omitempty"`
	Supplier     string  `json:"supplier,omitempty"`
	Quantity     int     `json:"quantity"`
	UnitPrice    float64 `json:"unit_price"`
}

// CreateJobRequest is the body for POST /jobs.
type CreateJobRequest struct {
	Title         string      `json:"title"`
	Description   string      `json:"description"`
	Instructions  string      `json:"instructions"`
	Priority      string      `json:"priority"`
	VehicleID     string      `json:"vehicle_id"`
	FaultID       *string     `json:"fault_id,omitempty"`
	ScheduledDate time.Time   `json:"scheduled_date"`
	EstimatedCost float64     `json:"estimated_cost"`
	MechanicIDs   []string    `json:"mechanic_ids"`
	RequiredParts []PartInput `json:"required_parts,omitempty"`
}

// AssignmentRequest is the body for POST /jobs/{id}/accept and /decline.
type AssignmentRequest struct {
	MechanicID string `json:"mechanic_id"`
	Notes      string `json:"notes,omitempty"`
}

// AssignMechanicsRequest is the body for POST /jobs/{id}/mechanics.
type AssignMechanicsRequest struct {
	MechanicIDs []string `json:"mechanic_ids"`
}

// CompleteJobRequest is the body for POST /jobs/{id}/complete.
type CompleteJobRequest struct {
	CompletionNotes string   `json:"completion_notes,omitempty"`
	ActualCost      *float64 `json:"actual_cost,omitempty"`
}

// AddPartsRequest is the body for POST /jobs/{id}/parts.
type AddPartsRequest struct {
	Parts []PartInput `json:"parts"`
}

// ListFilter narrows job listings.
type ListFilter struct {
	Status    string
	VehicleID string
	Limit     int
	Offset    int
}

// Summary is the read-side aggregate over all jobs. It is recomputed from
// the authoritative rows on every call; nothing here is cached.
type Summary struct {
	TotalJobs          int            `json:"total_jobs"`
	ByStatus           map[string]int `json:"by_status"`
	MechanicsAssigned  int            `json:"mechanics_assigned"`
	PartsOrdered       int            `json:"parts_ordered"`
	EstimatedCostTotal float64        `json:"estimated_cost_total"`
	ActualCostTotal    float64        `json:"actual_cost_total"`
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}
