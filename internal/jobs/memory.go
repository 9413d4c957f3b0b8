package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"fleet-service/internal/faults"
	"fleet-service/pkg/apperr"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the tests and the
// DATABASE_URL=memory development mode. Fault linking and resolution go
// through the in-memory fault ledger so completion semantics match the
// Postgres implementation.
type MemoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*ServiceJob
	vehicles VehicleDirectory
	faults   *faults.MemoryStore
	seq      int
}

// NewMemoryStore returns an empty in-memory job store.
func NewMemoryStore(vehicles VehicleDirectory, faultLedger *faults.MemoryStore) *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*ServiceJob),
		vehicles: vehicles,
		faults:   faultLedger,
	}
}

func (s *MemoryStore) CreateJob(ctx context.Context, j *ServiceJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.vehicles.VehicleExists(ctx, j.VehicleID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.NotFoundf("vehicle %s", j.VehicleID)
	}
	if j.FaultID != nil {
		if s.faults == nil {
			return apperr.NotFoundf("fault %s", *j.FaultID)
		}
		if err := s.faults.LinkJob(ctx, *j.FaultID, j.VehicleID, j.ID); err != nil {
			return err
		}
	}

	s.seq++
	j.JobNumber = fmt.Sprintf("SJ-%06d", s.seq)
	s.jobs[j.ID] = clone(j)
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*ServiceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(id)
}

func (s *MemoryStore) getLocked(id string) (*ServiceJob, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperr.NotFoundf("job %s", id)
	}
	return clone(j), nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, f ListFilter) ([]ServiceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []ServiceJob{}
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.VehicleID != "" && j.VehicleID != f.VehicleID {
			continue
		}
		out = append(out, *clone(j))
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.After(out[k].CreatedAt) })
	if f.Offset >= len(out) {
		return []ServiceJob{}, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// mutate loads the job, runs fn against it, and keeps the result only if fn
// succeeds. fn receives the stored copy; the apply* helpers enforce the
// lifecycle rules.
func (s *MemoryStore) mutate(jobID string, fn func(*ServiceJob) error) (*ServiceJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[jobID]
	if !ok {
		return nil, apperr.NotFoundf("job %s", jobID)
	}
	work := clone(j)
	if err := fn(work); err != nil {
		return nil, err
	}
	s.jobs[jobID] = work
	return clone(work), nil
}

func (s *MemoryStore) AcceptAssignment(ctx context.Context, jobID, mechanicID, notes string, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		_, err := applyAccept(j, mechanicID, notes, now)
		return err
	})
}

func (s *MemoryStore) DeclineAssignment(ctx context.Context, jobID, mechanicID string, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		return applyDecline(j, mechanicID, now)
	})
}

func (s *MemoryStore) AddAssignments(ctx context.Context, jobID string, mechanicIDs []string, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		_, err := applyAssign(j, mechanicIDs, now)
		return err
	})
}

func (s *MemoryStore) StartJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		return applyStart(j, now)
	})
}

func (s *MemoryStore) CompleteJob(ctx context.Context, jobID, notes string, actualCost *float64, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		if err := applyComplete(j, notes, actualCost, now); err != nil {
			return err
		}
		if j.FaultID != nil && s.faults != nil {
			return s.faults.Resolve(ctx, *j.FaultID, j.ID)
		}
		return nil
	})
}

func (s *MemoryStore) CancelJob(ctx context.Context, jobID string, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		return applyCancel(j, now)
	})
}

func (s *MemoryStore) AddParts(ctx context.Context, jobID string, parts []PartInput, now time.Time) (*ServiceJob, error) {
	return s.mutate(jobID, func(j *ServiceJob) error {
		_, err := applyAddParts(j, parts, now)
		return err
	})
}

func (s *MemoryStore) SetPartOrdered(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.setPartFlag(partID, func(p *RequiredPart) { p.Ordered = true })
}

func (s *MemoryStore) SetPartReceived(ctx context.Context, partID string) (*RequiredPart, error) {
	return s.setPartFlag(partID, func(p *RequiredPart) { p.Received = true })
}

func (s *MemoryStore) setPartFlag(partID string, set func(*RequiredPart)) (*RequiredPart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		for i := range j.Parts {
			if j.Parts[i].ID == partID {
				set(&j.Parts[i])
				cp := j.Parts[i]
				cp.TotalPrice = cp.Total()
				return &cp, nil
			}
		}
	}
	return nil, apperr.NotFoundf("part %s", partID)
}

func (s *MemoryStore) Summarize(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &Summary{ByStatus: map[string]int{}}
	for _, j := range s.jobs {
		sum.TotalJobs++
		sum.ByStatus[j.Status]++
		sum.MechanicsAssigned += len(j.Mechanics)
		sum.EstimatedCostTotal += j.EstimatedCost
		if j.Status == StatusCompleted && j.ActualCost != nil {
			sum.ActualCostTotal += *j.ActualCost
		}
		for i := range j.Parts {
			if j.Parts[i].Ordered {
				sum.PartsOrdered++
			}
		}
	}
	return sum, nil
}

// clone deep-copies a job and rederives every part total.
func clone(j *ServiceJob) *ServiceJob {
	cp := *j
	cp.Mechanics = append([]MechanicAssignment(nil), j.Mechanics...)
	cp.Parts = append([]RequiredPart(nil), j.Parts...)
	for i := range cp.Parts {
		cp.Parts[i].TotalPrice = cp.Parts[i].Total()
	}
	return &cp
}
