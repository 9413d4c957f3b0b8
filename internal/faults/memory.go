package faults

import (
	"context"
	"sort"
	"sync"

	"fleet-service/pkg/apperr"
)

// MemoryStore is a mutex-guarded in-memory fault ledger.
type MemoryStore struct {
	mu     sync.Mutex
	faults map[string]*VehicleError
}

// NewMemoryStore returns an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{faults: make(map[string]*VehicleError)}
}

func (s *MemoryStore) Create(ctx context.Context, f *VehicleError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *f
	s.faults[f.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*VehicleError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[id]
	if !ok {
		return nil, apperr.NotFoundf("fault %s", id)
	}
	cp := *f
	return &cp, nil
}

func (s *MemoryStore) List(ctx context.Context, vehicleID string, unresolvedOnly bool, limit, offset int) ([]VehicleError, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []VehicleError{}
	for _, f := range s.faults {
		if vehicleID != "" && f.VehicleID != vehicleID {
			continue
		}
		if unresolvedOnly && f.Resolved {
			continue
		}
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReportedAt.After(out[j].ReportedAt) })
	if offset >= len(out) {
		return []VehicleError{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// LinkJob stamps the fault with the job created from it. Called by the
// in-memory job store during job creation.
func (s *MemoryStore) LinkJob(ctx context.Context, faultID, vehicleID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[faultID]
	if !ok {
		return apperr.NotFoundf("fault %s", faultID)
	}
	if f.VehicleID != vehicleID {
		return apperr.Validationf("fault %s belongs to vehicle %s", faultID, f.VehicleID)
	}
	if f.Resolved {
		return apperr.Conflictf("fault %s is already resolved", faultID)
	}
	if f.ServiceJobID != nil {
		return apperr.Conflictf("fault %s already linked to job %s", faultID, *f.ServiceJobID)
	}
	id := jobID
	f.ServiceJobID = &id
	return nil
}

// Resolve marks the fault resolved, stamped with the completing job. Called
// by the in-memory job store on completion; idempotent for the same job.
func (s *MemoryStore) Resolve(ctx context.Context, faultID, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faults[faultID]
	if !ok {
		return apperr.NotFoundf("fault %s", faultID)
	}
	f.Resolved = true
	id := jobID
	f.ServiceJobID = &id
	return nil
}
