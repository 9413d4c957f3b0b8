package fleet

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-service/pkg/apperr"
)

// PostgresStore implements Store on a pgx pool. Exclusivity is enforced by
// single conditional UPDATEs plus the UNIQUE indexes on hubs.vehicle_id and
// drivers.vehicle_id, so an assignment either fully lands or fails with no
// half-written link.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	pgUniqueViolation = "23505"
	pgFKViolation     = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func (s *PostgresStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO vehicles (id, plate_number, status, mileage, service_due_mileage)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING created_at, updated_at`,
		v.ID, v.PlateNumber, v.Status, v.Mileage, v.ServiceDueMileage,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if pgCode(err) == pgUniqueViolation {
		return apperr.Conflictf("plate number %s already registered", v.PlateNumber)
	}
	if err != nil {
		return fmt.Errorf("create vehicle: %w", err)
	}
	return nil
}

const vehicleSelect = `
	SELECT v.id, v.plate_number, v.status, v.mileage, v.service_due_mileage,
	       d.id, h.id, v.created_at, v.updated_at
	FROM vehicles v
	LEFT JOIN drivers d ON d.vehicle_id = v.id
	LEFT JOIN hubs    h ON h.vehicle_id = v.id`

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.PlateNumber, &v.Status, &v.Mileage, &v.ServiceDueMileage,
		&v.DriverID, &v.HubID, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	v, err := scanVehicle(s.db.QueryRow(ctx, vehicleSelect+` WHERE v.id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("vehicle %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle: %w", err)
	}
	return v, nil
}

func (s *PostgresStore) ListVehicles(ctx context.Context, limit, offset int) ([]Vehicle, error) {
	rows, err := s.db.Query(ctx, vehicleSelect+` ORDER BY v.created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list vehicles: %w", err)
	}
	defer rows.Close()

	out := []Vehicle{}
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) VehicleExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vehicles WHERE id=$1)`, id).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) CreateHub(ctx context.Context, h *Hub) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO hubs (id, serial_number, auth_key) VALUES ($1,$2,$3)
		 RETURNING created_at`,
		h.ID, h.SerialNumber, h.AuthKey,
	).Scan(&h.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return apperr.Conflictf("serial number %s already registered", h.SerialNumber)
	}
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetHub(ctx context.Context, id string) (*Hub, error) {
	var h Hub
	err := s.db.QueryRow(ctx,
		`SELECT id, serial_number, auth_key, vehicle_id, created_at FROM hubs WHERE id=$1`, id,
	).Scan(&h.ID, &h.SerialNumber, &h.AuthKey, &h.VehicleID, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("hub %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get hub: %w", err)
	}
	return &h, nil
}

func (s *PostgresStore) ListHubs(ctx context.Context, limit, offset int) ([]Hub, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, serial_number, auth_key, vehicle_id, created_at
		 FROM hubs ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list hubs: %w", err)
	}
	defer rows.Close()

	out := []Hub{}
	for rows.Next() {
		var h Hub
		if err := rows.Scan(&h.ID, &h.SerialNumber, &h.AuthKey, &h.VehicleID, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan hub: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AssignHub(ctx context.Context, hubID, vehicleID string) (*Hub, error) {
	// Single-statement compare-and-swap: only an unassigned hub row matches.
	// The UNIQUE index on vehicle_id rejects a vehicle that already holds a
	// hub, the FK rejects a vehicle that does not exist.
	tag, err := s.db.Exec(ctx,
		`UPDATE hubs SET vehicle_id=$1 WHERE id=$2 AND vehicle_id IS NULL`,
		vehicleID, hubID)
	switch pgCode(err) {
	case pgUniqueViolation:
		return nil, apperr.Conflictf("vehicle %s already has a hub", vehicleID)
	case pgFKViolation:
		return nil, apperr.NotFoundf("vehicle %s", vehicleID)
	}
	if err != nil {
		return nil, fmt.Errorf("assign hub: %w", err)
	}
	if tag.RowsAffected() == 0 {
		h, err := s.GetHub(ctx, hubID)
		if err != nil {
			return nil, err
		}
		if h.VehicleID != nil {
			return nil, apperr.Conflictf("hub %s already assigned to vehicle %s", hubID, *h.VehicleID)
		}
		return nil, apperr.Conflictf("hub %s lost a concurrent assignment", hubID)
	}
	return s.GetHub(ctx, hubID)
}

func (s *PostgresStore) UnassignHub(ctx context.Context, hubID string) (*Hub, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE hubs SET vehicle_id=NULL WHERE id=$1 AND vehicle_id IS NOT NULL`, hubID)
	if err != nil {
		return nil, fmt.Errorf("unassign hub: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetHub(ctx, hubID); err != nil {
			return nil, err
		}
		return nil, apperr.NotFoundf("hub %s is not assigned", hubID)
	}
	return s.GetHub(ctx, hubID)
}

func (s *PostgresStore) CreateDriver(ctx context.Context, d *Driver) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO drivers (id, name, email, available) VALUES ($1,$2,$3,$4)
		 RETURNING created_at`,
		d.ID, d.Name, d.Email, d.Available,
	).Scan(&d.CreatedAt)
	if pgCode(err) == pgUniqueViolation {
		return apperr.Conflictf("email %s already registered", d.Email)
	}
	if err != nil {
		return fmt.Errorf("create driver: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDriver(ctx context.Context, id string) (*Driver, error) {
	var d Driver
	err := s.db.QueryRow(ctx,
		`SELECT id, name, email, available, vehicle_id, created_at FROM drivers WHERE id=$1`, id,
	).Scan(&d.ID, &d.Name, &d.Email, &d.Available, &d.VehicleID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("driver %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get driver: %w", err)
	}
	return &d, nil
}

func (s *PostgresStore) ListDrivers(ctx context.Context, limit, offset int) ([]Driver, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, email, available, vehicle_id, created_at
		 FROM drivers ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list drivers: %w", err)
	}
	defer rows.Close()

	out := []Driver{}
	for rows.Next() {
		var d Driver
		if err := rows.Scan(&d.ID, &d.Name, &d.Email, &d.Available, &d.VehicleID, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan driver: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AssignDriver(ctx context.Context, vehicleID, driverID string) (*Driver, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE drivers SET vehicle_id=$1 WHERE id=$2 AND vehicle_id IS NULL AND available`,
		vehicleID, driverID)
	switch pgCode(err) {
	case pgUniqueViolation:
		return nil, apperr.Conflictf("vehicle %s already has a driver", vehicleID)
	case pgFKViolation:
		return nil, apperr.NotFoundf("vehicle %s", vehicleID)
	}
	if err != nil {
		return nil, fmt.Errorf("assign driver: %w", err)
	}
	if tag.RowsAffected() == 0 {
		d, err := s.GetDriver(ctx, driverID)
		if err != nil {
			return nil, err
		}
		if !d.Available {
			return nil, apperr.Conflictf("driver %s is unavailable", driverID)
		}
		if d.VehicleID != nil {
			return nil, apperr.Conflictf("driver %s already assigned to vehicle %s", driverID, *d.VehicleID)
		}
		return nil, apperr.Conflictf("driver %s lost a concurrent assignment", driverID)
	}
	return s.GetDriver(ctx, driverID)
}

func (s *PostgresStore) RemoveDriver(ctx context.Context, vehicleID string) (*Driver, error) {
	var id string
	err := s.db.QueryRow(ctx,
		`UPDATE drivers SET vehicle_id=NULL WHERE vehicle_id=$1 RETURNING id`, vehicleID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("vehicle %s has no driver", vehicleID)
	}
	if err != nil {
		return nil, fmt.Errorf("remove driver: %w", err)
	}
	return s.GetDriver(ctx, id)
}

func (s *PostgresStore) SetDriverAvailability(ctx context.Context, driverID string, available bool) (*Driver, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE drivers SET available=$1 WHERE id=$2`, available, driverID)
	if err != nil {
		return nil, fmt.Errorf("set driver availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.NotFoundf("driver %s", driverID)
	}
	return s.GetDriver(ctx, driverID)
}
