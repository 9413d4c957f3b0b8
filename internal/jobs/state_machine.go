package jobs

import (
	"time"

	"github.com/google/uuid"

	"fleet-service/pkg/apperr"
)

// allowTransition is the directed graph of permitted status changes.
// Transitions are monotonic: a job never revisits PENDING or IN_PROGRESS,
// and nothing leaves a terminal state.
var allowTransition = map[string][]string{
	StatusPending:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether from -> to is a permitted status change.
// Self-transitions are not permitted.
func CanTransition(from, to string) bool {
	for _, s := range allowTransition[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a job in this status accepts no further changes.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled
}

// ensureMutable rejects mutations against a terminal job. Late-arriving
// requests after completion or cancellation must fail, not apply.
func ensureMutable(j *ServiceJob) error {
	if Terminal(j.Status) {
		return apperr.Transitionf("job %s is %s", j.ID, j.Status)
	}
	return nil
}

// The apply* functions below are the single source of the engine's mutation
// rules. Both store implementations run them on a freshly loaded job —
// the Postgres store inside a row-locked transaction, the memory store
// under its mutex — and then persist exactly what changed.

// applyAccept marks the mechanic's assignment accepted. Re-accepting is a
// no-op (changed = false).
func applyAccept(j *ServiceJob, mechanicID, notes string, now time.Time) (bool, error) {
	if err := ensureMutable(j); err != nil {
		return false, err
	}
	a := j.assignment(mechanicID)
	if a == nil {
		return false, apperr.NotFoundf("no assignment for mechanic %s on job %s", mechanicID, j.ID)
	}
	if a.Accepted {
		return false, nil
	}
	a.Accepted = true
	t := now
	a.AcceptedAt = &t
	if notes != "" {
		a.Notes = notes
	}
	j.UpdatedAt = now
	return true, nil
}

// applyDecline removes the assignment entirely. A job may be left with zero
// assignments; it then stays PENDING until reassigned.
func applyDecline(j *ServiceJob, mechanicID string, now time.Time) error {
	if err := ensureMutable(j); err != nil {
		return err
	}
	for i := range j.Mechanics {
		if j.Mechanics[i].MechanicID == mechanicID {
			j.Mechanics = append(j.Mechanics[:i], j.Mechanics[i+1:]...)
			j.UpdatedAt = now
			return nil
		}
	}
	return apperr.NotFoundf("no assignment for mechanic %s on job %s", mechanicID, j.ID)
}

// applyAssign appends pending assignments for the given mechanics and
// returns the added rows.
func applyAssign(j *ServiceJob, mechanicIDs []string, now time.Time) ([]MechanicAssignment, error) {
	if err := ensureMutable(j); err != nil {
		return nil, err
	}
	added := make([]MechanicAssignment, 0, len(mechanicIDs))
	for _, mid := range mechanicIDs {
		if j.assignment(mid) != nil {
			return nil, apperr.Conflictf("mechanic %s already assigned to job %s", mid, j.ID)
		}
		added = append(added, MechanicAssignment{
			ID:         uuid.NewString(),
			JobID:      j.ID,
			MechanicID: mid,
			AssignedAt: now,
		})
	}
	j.Mechanics = append(j.Mechanics, added...)
	j.UpdatedAt = now
	return added, nil
}

// applyStart moves PENDING -> IN_PROGRESS, requiring at least one accepted
// assignment.
func applyStart(j *ServiceJob, now time.Time) error {
	if !CanTransition(j.Status, StatusInProgress) {
		return apperr.Transitionf("%s -> %s", j.Status, StatusInProgress)
	}
	if j.acceptedCount() == 0 {
		return apperr.Preconditionf("job %s has no accepted mechanic", j.ID)
	}
	j.Status = StatusInProgress
	j.UpdatedAt = now
	return nil
}

// applyComplete moves IN_PROGRESS -> COMPLETED. Missing actual cost
// defaults to the estimate.
func applyComplete(j *ServiceJob, notes string, actualCost *float64, now time.Time) error {
	if !CanTransition(j.Status, StatusCompleted) {
		return apperr.Transitionf("%s -> %s", j.Status, StatusCompleted)
	}
	cost := j.EstimatedCost
	if actualCost != nil {
		cost = *actualCost
	}
	if cost < 0 {
		return apperr.Validationf("actual cost must be >= 0")
	}
	j.Status = StatusCompleted
	j.ActualCost = &cost
	j.CompletionNotes = notes
	t := now
	j.CompletedAt = &t
	j.UpdatedAt = now
	return nil
}

// applyCancel forces a pre-terminal job to CANCELLED. Unconditional: no
// mechanic quorum, no accepted-assignment requirement.
func applyCancel(j *ServiceJob, now time.Time) error {
	if !CanTransition(j.Status, StatusCancelled) {
		return apperr.Transitionf("%s -> %s", j.Status, StatusCancelled)
	}
	j.Status = StatusCancelled
	t := now
	j.CancelledAt = &t
	j.UpdatedAt = now
	return nil
}

// applyAddParts validates and appends part rows, returning the added rows.
func applyAddParts(j *ServiceJob, parts []PartInput, now time.Time) ([]RequiredPart, error) {
	if err := ensureMutable(j); err != nil {
		return nil, err
	}
	added := make([]RequiredPart, 0, len(parts))
	for _, in := range parts {
		p, err := newPart(j.ID, in)
		if err != nil {
			return nil, err
		}
		added = append(added, *p)
	}
	j.Parts = append(j.Parts, added...)
	j.UpdatedAt = now
	return added, nil
}

func newPart(jobID string, in PartInput) (*RequiredPart, error) {
	if in.Name == "" || in.PartNumber == "" {
		return nil, apperr.Validationf("part name and part number required")
	}
	if in.Quantity <= 0 {
		return nil, apperr.Validationf("part %s: quantity must be > 0", in.PartNumber)
	}
	if in.UnitPrice < 0 {
		return nil, apperr.Validationf("part %s: unit price must be >= 0", in.PartNumber)
	}
	p := &RequiredPart{
		ID:           uuid.NewString(),
		JobID:        jobID,
		Name:         in.Name,
		PartNumber:   in.PartNumber,
		Manufacturer: in.Manufacturer,
		Supplier:     in.Supplier,
		Quantity:     in.Quantity,
		UnitPrice:    in.UnitPrice,
	}
	p.TotalPrice = p.Total()
	return p, nil
}
