package faults

import "context"

// Store is the authoritative fault ledger. Linking a fault to a job and
// resolving it are owned by the job lifecycle: the Postgres job store does
// both inside its own transactions, the in-memory job store goes through
// the MemoryStore's LinkJob/Resolve methods.
type Store interface {
	Create(ctx context.Context, f *VehicleError) error
	Get(ctx context.Context, id string) (*VehicleError, error)
	// List filters by vehicle (empty for all) and optionally to
	// unresolved faults only.
	List(ctx context.Context, vehicleID string, unresolvedOnly bool, limit, offset int) ([]VehicleError, error)
}
