package faults

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-service/pkg/apperr"
)

// PostgresStore implements Store on the vehicle_errors table.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, f *VehicleError) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO vehicle_errors (id, vehicle_id, code, severity, reported_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		f.ID, f.VehicleID, f.Code, f.Severity, f.ReportedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return apperr.NotFoundf("vehicle %s", f.VehicleID)
	}
	if err != nil {
		return fmt.Errorf("create fault: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*VehicleError, error) {
	var f VehicleError
	err := s.db.QueryRow(ctx,
		`SELECT id, vehicle_id, code, severity, resolved, service_job_id, reported_at
		 FROM vehicle_errors WHERE id=$1`, id,
	).Scan(&f.ID, &f.VehicleID, &f.Code, &f.Severity, &f.Resolved, &f.ServiceJobID, &f.ReportedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("fault %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get fault: %w", err)
	}
	return &f, nil
}

func (s *PostgresStore) List(ctx context.Context, vehicleID string, unresolvedOnly bool, limit, offset int) ([]VehicleError, error) {
	q := `SELECT id, vehicle_id, code, severity, resolved, service_job_id, reported_at
	      FROM vehicle_errors
	      WHERE ($1 = '' OR vehicle_id = $1)
	        AND (NOT $2 OR NOT resolved)
	      ORDER BY reported_at DESC
	      LIMIT $3 OFFSET $4`
	rows, err := s.db.Query(ctx, q, vehicleID, unresolvedOnly, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list faults: %w", err)
	}
	defer rows.Close()

	out := []VehicleError{}
	for rows.Next() {
		var f VehicleError
		if err := rows.Scan(&f.ID, &f.VehicleID, &f.Code, &f.Severity, &f.Resolved, &f.ServiceJobID, &f.ReportedAt); err != nil {
			return nil, fmt.Errorf("scan fault: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
