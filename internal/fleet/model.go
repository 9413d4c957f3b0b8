package fleet

import "time"

// Vehicle statuses.
const (
	VehicleActive    = "ACTIVE"
	VehicleInService = "IN_SERVICE"
	VehicleInactive  = "INACTIVE"
)

// Vehicle is a fleet vehicle. DriverID and HubID are derived on read from
// the driver/hub side of each link; they are never written directly.
type Vehicle struct {
	ID                string    `json:"id"`
	PlateNumber       string    `json:"plate_number"`
	Status            string    `json:"status"`
	Mileage           int64     `json:"mileage"`
	ServiceDueMileage int64     `json:"service_due_mileage"`
	DriverID          *string   `json:"driver_id,omitempty"`
	HubID             *string   `json:"hub_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Hub is a physical OBD diagnostic device. At most one hub per vehicle.
type Hub struct {
	ID           string    `json:"id"`
	SerialNumber string    `json:"serial_number"`
	AuthKey      string    `json:"-"`
	VehicleID    *string   `json:"vehicle_id,omitempty"`
	Online       bool      `json:"online"` // derived from the heartbeat key, never stored
	CreatedAt    time.Time `json:"created_at"`
}

// Driver is a fleet driver. At most one vehicle per driver, and an
// unavailable driver cannot be newly assigned.
type Driver struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Available bool      `json:"available"`
	VehicleID *string   `json:"vehicle_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateVehicleRequest is the body for POST /fleet/vehicles.
type CreateVehicleRequest struct {
	PlateNumber       string `json:"plate_number"`
	Status            string `json:"status"`
	Mileage           int64  `json:"mileage"`
	ServiceDueMileage int64  `json:"service_due_mileage"`
}

// CreateHubRequest is the body for POST /fleet/hubs.
type CreateHubRequest struct {
	SerialNumber string `json:"serial_number"`
	AuthKey      string `json:"auth_key,omitempty"` // generated when empty
}

// CreateDriverRequest is the body for POST /fleet/drivers.
type CreateDriverRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// AssignHubRequest is the body for POST /fleet/hubs/{id}/assign.
type AssignHubRequest struct {
	VehicleID string `json:"vehicle_id"`
}

// AssignDriverRequest is the body for POST /fleet/vehicles/{id}/driver.
type AssignDriverRequest struct {
	DriverID string `json:"driver_id"`
}

// AvailabilityRequest is the body for PATCH /fleet/drivers/{id}/availability.
type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// LocationUpdate is the body for PATCH /fleet/drivers/{id}/location.
type LocationUpdate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
