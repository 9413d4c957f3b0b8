package jobs

import (
	"context"
	"time"
)

// VehicleDirectory is the slice of the registry the job engine needs.
type VehicleDirectory interface {
	VehicleExists(ctx context.Context, id string) (bool, error)
}

// Store is the authoritative record of service jobs and their child
// collections. Every mutating method is a single atomic unit: it loads the
// job, applies the shared mutation rules, and persists the result — or
// fails with a typed error and no partial write. Methods that change a job
// return the authoritative post-mutation entity so callers never re-fetch.
type Store interface {
	// CreateJob persists the job with its seeded assignments and parts,
	// issues its job number, and links the originating fault if any.
	CreateJob(ctx context.Context, j *ServiceJob) error
	GetJob(ctx context.Context, id string) (*ServiceJob, error)
	ListJobs(ctx context.Context, f ListFilter) ([]ServiceJob, error)

	AcceptAssignment(ctx context.Context, jobID, mechanicID, notes string, now time.Time) (*ServiceJob, error)
	DeclineAssignment(ctx context.Context, jobID, mechanicID string, now time.Time) (*ServiceJob, error)
	AddAssignments(ctx context.Context, jobID string, mechanicIDs []string, now time.Time) (*ServiceJob, error)

	StartJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error)
	// CompleteJob also resolves the originating fault, in the same atomic
	// step as the status change.
	CompleteJob(ctx context.Context, jobID, notes string, actualCost *float64, now time.Time) (*ServiceJob, error)
	CancelJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error)

	AddParts(ctx context.Context, jobID string, parts []PartInput, now time.Time) (*ServiceJob, error)
	SetPartOrdered(ctx context.Context, partID string) (*RequiredPart, error)
	SetPartReceived(ctx context.Context, partID string) (*RequiredPart, error)

	// Summarize recomputes the aggregate from the stored rows.
	Summarize(ctx context.Context) (*Summary, error)
}
