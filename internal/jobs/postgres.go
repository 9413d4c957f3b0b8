package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"fleet-service/pkg/apperr"
)

// PostgresStore implements Store on a pgx pool. Every mutation runs inside
// a transaction that locks the job row FOR UPDATE, replays the shared
// mutation rules against the loaded state, and persists only what changed,
// so concurrent writers serialize per job.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore wraps the pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const pgUniqueViolation = "23505"

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// querier covers both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) CreateJob(ctx context.Context, j *ServiceJob) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM vehicles WHERE id=$1)`, j.VehicleID).Scan(&exists); err != nil {
		return fmt.Errorf("check vehicle: %w", err)
	}
	if !exists {
		return apperr.NotFoundf("vehicle %s", j.VehicleID)
	}

	if j.FaultID != nil {
		if err := linkFault(ctx, tx, *j.FaultID, j.VehicleID, j.ID); err != nil {
			return err
		}
	}

	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('job_number_seq')`).Scan(&seq); err != nil {
		return fmt.Errorf("job number: %w", err)
	}
	j.JobNumber = fmt.Sprintf("SJ-%06d", seq)

	err = tx.QueryRow(ctx,
		`INSERT INTO service_jobs
		   (id, job_number, title, description, instructions, status, priority,
		    vehicle_id, fault_id, scheduled_date, estimated_cost, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)
		 RETURNING created_at, updated_at`,
		j.ID, j.JobNumber, j.Title, j.Description, j.Instructions, j.Status, j.Priority,
		j.VehicleID, j.FaultID, j.ScheduledDate, j.EstimatedCost, j.CreatedAt,
	).Scan(&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if err := insertAssignments(ctx, tx, j.Mechanics); err != nil {
		return err
	}
	if err := insertParts(ctx, tx, j.Parts); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// linkFault claims a fault for a job with one conditional UPDATE. Zero rows
// means one of the preconditions failed; the follow-up read names which.
func linkFault(ctx context.Context, tx pgx.Tx, faultID, vehicleID, jobID string) error {
	tag, err := tx.Exec(ctx,
		`UPDATE vehicle_errors SET service_job_id=$1
		 WHERE id=$2 AND vehicle_id=$3 AND NOT resolved AND service_job_id IS NULL`,
		jobID, faultID, vehicleID)
	if err != nil {
		return fmt.Errorf("link fault: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var (
		faultVehicle string
		resolved     bool
		linkedJob    *string
	)
	err = tx.QueryRow(ctx,
		`SELECT vehicle_id, resolved, service_job_id FROM vehicle_errors WHERE id=$1`,
		faultID).Scan(&faultVehicle, &resolved, &linkedJob)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFoundf("fault %s", faultID)
	}
	if err != nil {
		return fmt.Errorf("inspect fault: %w", err)
	}
	switch {
	case faultVehicle != vehicleID:
		return apperr.Validationf("fault %s belongs to vehicle %s", faultID, faultVehicle)
	case resolved:
		return apperr.Conflictf("fault %s is already resolved", faultID)
	case linkedJob != nil:
		return apperr.Conflictf("fault %s already linked to job %s", faultID, *linkedJob)
	}
	return apperr.Conflictf("fault %s could not be linked", faultID)
}

func insertAssignments(ctx context.Context, tx pgx.Tx, rows []MechanicAssignment) error {
	for i := range rows {
		a := &rows[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO mechanic_assignments (id, job_id, mechanic_id, assigned_at, accepted, accepted_at, notes)
			 VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			a.ID, a.JobID, a.MechanicID, a.AssignedAt, a.Accepted, a.AcceptedAt, a.Notes)
		if pgCode(err) == pgUniqueViolation {
			return apperr.Conflictf("mechanic %s already assigned to job %s", a.MechanicID, a.JobID)
		}
		if err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	return nil
}

func insertParts(ctx context.Context, tx pgx.Tx, rows []RequiredPart) error {
	for i := range rows {
		p := &rows[i]
		_, err := tx.Exec(ctx,
			`INSERT INTO required_parts (id, job_id, name, part_number, manufacturer, supplier, quantity, unit_price, ordered, received)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			p.ID, p.JobID, p.Name, p.PartNumber, p.Manufacturer, p.Supplier, p.Quantity, p.UnitPrice, p.Ordered, p.Received)
		if err != nil {
			return fmt.Errorf("insert part: %w", err)
		}
	}
	return nil
}

const jobSelect = `
	SELECT id, job_number, title, description, instructions, status, priority,
	       vehicle_id, fault_id, scheduled_date, estimated_cost, actual_cost,
	       COALESCE(completion_notes, ''), created_at, updated_at, completed_at, cancelled_at
	FROM service_jobs`

func scanJob(row pgx.Row) (*ServiceJob, error) {
	var j ServiceJob
	err := row.Scan(&j.ID, &j.JobNumber, &j.Title, &j.Description, &j.Instructions,
		&j.Status, &j.Priority, &j.VehicleID, &j.FaultID, &j.ScheduledDate,
		&j.EstimatedCost, &j.ActualCost, &j.CompletionNotes,
		&j.CreatedAt, &j.UpdatedAt, &j.CompletedAt, &j.CancelledAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id string) (*ServiceJob, error) {
	return loadJob(ctx, s.db, id, false)
}

func loadJob(ctx context.Context, q querier, id string, forUpdate bool) (*ServiceJob, error) {
	query := jobSelect + ` WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	j, err := scanJob(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("job %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	if err := loadChildren(ctx, q, map[string]*ServiceJob{j.ID: j}); err != nil {
		return nil, err
	}
	return j, nil
}

func loadChildren(ctx context.Context, q querier, jobs map[string]*ServiceJob) error {
	ids := make([]string, 0, len(jobs))
	for id, j := range jobs {
		ids = append(ids, id)
		j.Mechanics = []MechanicAssignment{}
		j.Parts = []RequiredPart{}
	}

	rows, err := q.Query(ctx,
		`SELECT id, job_id, mechanic_id, assigned_at, accepted, accepted_at, COALESCE(notes, '')
		 FROM mechanic_assignments WHERE job_id = ANY($1) ORDER BY assigned_at`, ids)
	if err != nil {
		return fmt.Errorf("load assignments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var a MechanicAssignment
		if err := rows.Scan(&a.ID, &a.JobID, &a.MechanicID, &a.AssignedAt, &a.Accepted, &a.AcceptedAt, &a.Notes); err != nil {
			return fmt.Errorf("scan assignment: %w", err)
		}
		jobs[a.JobID].Mechanics = append(jobs[a.JobID].Mechanics, a)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	prows, err := q.Query(ctx,
		`SELECT id, job_id, name, part_number, COALESCE(manufacturer, ''), COALESCE(supplier, ''),
		        quantity, unit_price, quantity * unit_price, ordered, received
		 FROM required_parts WHERE job_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("load parts: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p RequiredPart
		if err := prows.Scan(&p.ID, &p.JobID, &p.Name, &p.PartNumber, &p.Manufacturer, &p.Supplier,
			&p.Quantity, &p.UnitPrice, &p.TotalPrice, &p.Ordered, &p.Received); err != nil {
			return fmt.Errorf("scan part: %w", err)
		}
		jobs[p.JobID].Parts = append(jobs[p.JobID].Parts, p)
	}
	return prows.Err()
}

func (s *PostgresStore) ListJobs(ctx context.Context, f ListFilter) ([]ServiceJob, error) {
	rows, err := s.db.Query(ctx,
		jobSelect+` WHERE ($1='' OR status=$1) AND ($2='' OR vehicle_id=$2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		f.Status, f.VehicleID, f.Limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	byID := map[string]*ServiceJob{}
	order := []string{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		byID[j.ID] = j
		order = append(order, j.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(order) == 0 {
		return []ServiceJob{}, nil
	}
	if err := loadChildren(ctx, s.db, byID); err != nil {
		return nil, err
	}
	out := make([]ServiceJob, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// withJob runs a mutation against a row-locked job: load FOR UPDATE, apply
// the rule via fn, persist via fn's writes, commit. fn sees the loaded job
// and the open transaction.
func (s *PostgresStore) withJob(ctx context.Context, jobID string, fn func(tx pgx.Tx, j *ServiceJob) error) (*ServiceJob, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	j, err := loadJob(ctx, tx, jobID, true)
	if err != nil {
		return nil, err
	}
	if err := fn(tx, j); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return j, nil
}

func touchJob(ctx context.Context, tx pgx.Tx, j *ServiceJob) error {
	_, err := tx.Exec(ctx, `UPDATE service_jobs SET updated_at=$1 WHERE id=$2`, j.UpdatedAt, j.ID)
	return err
}

func (s *PostgresStore) AcceptAssignment(ctx context.Context, jobID, mechanicID, notes string, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		changed, err := applyAccept(j, mechanicID, notes, now)
		if err != nil || !changed {
			return err
		}
		a := j.assignment(mechanicID)
		_, err = tx.Exec(ctx,
			`UPDATE mechanic_assignments SET accepted=TRUE, accepted_at=$1, notes=$2
			 WHERE job_id=$3 AND mechanic_id=$4`,
			a.AcceptedAt, a.Notes, jobID, mechanicID)
		if err != nil {
			return fmt.Errorf("accept assignment: %w", err)
		}
		return touchJob(ctx, tx, j)
	})
}

func (s *PostgresStore) DeclineAssignment(ctx context.Context, jobID, mechanicID string, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		if err := applyDecline(j, mechanicID, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`DELETE FROM mechanic_assignments WHERE job_id=$1 AND mechanic_id=$2`,
			jobID, mechanicID)
		if err != nil {
			return fmt.Errorf("decline assignment: %w", err)
		}
		return touchJob(ctx, tx, j)
	})
}

func (s *PostgresStore) AddAssignments(ctx context.Context, jobID string, mechanicIDs []string, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		added, err := applyAssign(j, mechanicIDs, now)
		if err != nil {
			return err
		}
		if err := insertAssignments(ctx, tx, added); err != nil {
			return err
		}
		return touchJob(ctx, tx, j)
	})
}

func (s *PostgresStore) StartJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		if err := applyStart(j, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE service_jobs SET status=$1, updated_at=$2 WHERE id=$3`,
			j.Status, j.UpdatedAt, jobID)
		if err != nil {
			return fmt.Errorf("start job: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID, notes string, actualCost *float64, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		if err := applyComplete(j, notes, actualCost, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE service_jobs
			 SET status=$1, actual_cost=$2, completion_notes=$3, completed_at=$4, updated_at=$5
			 WHERE id=$6`,
			j.Status, j.ActualCost, j.CompletionNotes, j.CompletedAt, j.UpdatedAt, jobID)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if j.FaultID != nil {
			_, err = tx.Exec(ctx,
				`UPDATE vehicle_errors SET resolved=TRUE, service_job_id=$1 WHERE id=$2`,
				jobID, *j.FaultID)
			if err != nil {
				return fmt.Errorf("resolve fault: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) CancelJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		if err := applyCancel(j, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx,
			`UPDATE service_jobs SET status=$1, cancelled_at=$2, updated_at=$3 WHERE id=$4`,
			j.Status, j.CancelledAt, j.UpdatedAt, jobID)
		if err != nil {
			return fmt.Errorf("cancel job: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) AddParts(ctx context.Context, jobID string, parts []PartInput, now time.Time) (*ServiceJob, error) {
	return s.withJob(ctx, jobID, func(tx pgx.Tx, j *ServiceJob) error {
		added, err := applyAddParts(j, parts, now)
		if err != nil {
			return err
		}
		if err := insertParts(ctx, tx, added); err != nil {
			return err
		}
		return touchJob(ctx, tx, j)
	})
}

func (s *PostgresStore) SetPartOrdered(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.setPartFlag(ctx, partID, "ordered")
}

func (s *PostgresStore) SetPartReceived(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.setPartFlag(ctx, partID, "received")
}

func (s *PostgresStore) setPartFlag(ctx context.Context, partID, column string) (*RequiredPart, error) {
	// column is one of two literals chosen by the caller, never user input.
	var p RequiredPart
	err := s.db.QueryRow(ctx,
		`UPDATE required_parts SET `+column+`=TRUE WHERE id=$1
		 RETURNING id, job_id, name, part_number, COALESCE(manufacturer, ''), COALESCE(supplier, ''),
		           quantity, unit_price, quantity * unit_price, ordered, received`,
		partID,
	).Scan(&p.ID, &p.JobID, &p.Name, &p.PartNumber, &p.Manufacturer, &p.Supplier,
		&p.Quantity, &p.UnitPrice, &p.TotalPrice, &p.Ordered, &p.Received)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFoundf("part %s", partID)
	}
	if err != nil {
		return nil, fmt.Errorf("update part: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) Summarize(ctx context.Context) (*Summary, error) {
	sum := &Summary{ByStatus: map[string]int{}}

	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(estimated_cost), 0),
		        COALESCE(SUM(actual_cost) FILTER (WHERE status='COMPLETED'), 0)
		 FROM service_jobs`,
	).Scan(&sum.TotalJobs, &sum.EstimatedCostTotal, &sum.ActualCostTotal)
	if err != nil {
		return nil, fmt.Errorf("summarize jobs: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM service_jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("summarize statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		sum.ByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM mechanic_assignments`).Scan(&sum.MechanicsAssigned)
	if err != nil {
		return nil, fmt.Errorf("summarize assignments: %w", err)
	}
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM required_parts WHERE ordered`).Scan(&sum.PartsOrdered)
	if err != nil {
		return nil, fmt.Errorf("summarize parts: %w", err)
	}
	return sum, nil
}
