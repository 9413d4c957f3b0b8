package fleet

import "context"

// Store is the authoritative record of vehicles, hubs and drivers. Every
// mutating method is atomic: it either fully applies or returns a typed
// error with nothing written. Exclusivity conflicts surface as
// apperr.ErrConflict, missing references as apperr.ErrNotFound.
type Store interface {
	CreateVehicle(ctx context.Context, v *Vehicle) error
	GetVehicle(ctx context.Context, id string) (*Vehicle, error)
	ListVehicles(ctx context.Context, limit, offset int) ([]Vehicle, error)
	VehicleExists(ctx context.Context, id string) (bool, error)

	CreateHub(ctx context.Context, h *Hub) error
	GetHub(ctx context.Context, id string) (*Hub, error)
	ListHubs(ctx context.Context, limit, offset int) ([]Hub, error)
	// AssignHub links hub and vehicle in one atomic step. The hub must be
	// unassigned and the vehicle must not already hold a hub.
	AssignHub(ctx context.Context, hubID, vehicleID string) (*Hub, error)
	// UnassignHub clears the link. NotFound if the hub does not exist or
	// carries no vehicle.
	UnassignHub(ctx context.Context, hubID string) (*Hub, error)

	CreateDriver(ctx context.Context, d *Driver) error
	GetDriver(ctx context.Context, id string) (*Driver, error)
	ListDrivers(ctx context.Context, limit, offset int) ([]Driver, error)
	// AssignDriver links driver and vehicle in one atomic step. The driver
	// must be available and unassigned; the vehicle must not already hold
	// a driver.
	AssignDriver(ctx context.Context, vehicleID, driverID string) (*Driver, error)
	// RemoveDriver clears whatever driver the vehicle holds.
	RemoveDriver(ctx context.Context, vehicleID string) (*Driver, error)
	SetDriverAvailability(ctx context.Context, driverID string, available bool) (*Driver, error)
}
