package jobs

import (
	"errors"
	"testing"
	"time"

	"fleet-service/pkg/apperr"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to string
		want     bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusPending, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusCancelled, true},
		{StatusInProgress, StatusPending, false},
		{StatusInProgress, StatusInProgress, false},
		{StatusCompleted, StatusPending, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusInProgress, false},
		{StatusCancelled, StatusCompleted, false},
	}
	for _, c := range cases {
		if got := CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func pendingJob(mechanics ...string) *ServiceJob {
	j := &ServiceJob{
		ID:            "job-1",
		Status:        StatusPending,
		EstimatedCost: 100,
	}
	for _, m := range mechanics {
		j.Mechanics = append(j.Mechanics, MechanicAssignment{
			ID: "asg-" + m, JobID: j.ID, MechanicID: m,
		})
	}
	return j
}

func TestStartRequiresAcceptedMechanic(t *testing.T) {
	now := time.Now()
	j := pendingJob("m1")

	err := applyStart(j, now)
	if !errors.Is(err, apperr.ErrPreconditionFailed) {
		t.Fatalf("start without acceptance: got %v, want precondition failure", err)
	}
	if j.Status != StatusPending {
		t.Fatalf("status changed on failed start: %s", j.Status)
	}

	if _, err := applyAccept(j, "m1", "", now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := applyStart(j, now); err != nil {
		t.Fatalf("start after acceptance: %v", err)
	}
	if j.Status != StatusInProgress {
		t.Fatalf("status = %s, want %s", j.Status, StatusInProgress)
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	now := time.Now()
	j := pendingJob("m1")

	changed, err := applyAccept(j, "m1", "on it", now)
	if err != nil || !changed {
		t.Fatalf("first accept: changed=%v err=%v", changed, err)
	}
	first := *j.Mechanics[0].AcceptedAt

	changed, err = applyAccept(j, "m1", "again", now.Add(time.Hour))
	if err != nil || changed {
		t.Fatalf("re-accept: changed=%v err=%v", changed, err)
	}
	if !j.Mechanics[0].AcceptedAt.Equal(first) {
		t.Fatal("re-accept moved the acceptance timestamp")
	}
	if j.Mechanics[0].Notes != "on it" {
		t.Fatalf("re-accept overwrote notes: %q", j.Mechanics[0].Notes)
	}
}

func TestDeclineRemovesAssignment(t *testing.T) {
	now := time.Now()
	j := pendingJob("m1")

	if err := applyDecline(j, "m1", now); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if len(j.Mechanics) != 0 {
		t.Fatalf("assignment not removed: %d left", len(j.Mechanics))
	}
	if j.Status != StatusPending {
		t.Fatalf("decline changed status to %s", j.Status)
	}

	if err := applyDecline(j, "m1", now); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second decline: got %v, want not found", err)
	}
}

func TestCompleteDefaultsActualCost(t *testing.T) {
	now := time.Now()
	j := pendingJob("m1")
	j.Status = StatusInProgress

	if err := applyComplete(j, "done", nil, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if j.ActualCost == nil || *j.ActualCost != j.EstimatedCost {
		t.Fatalf("actual cost = %v, want estimate %v", j.ActualCost, j.EstimatedCost)
	}
	if j.CompletedAt == nil {
		t.Fatal("completed_at not set")
	}
}

func TestCompleteRejectsNegativeCost(t *testing.T) {
	j := pendingJob("m1")
	j.Status = StatusInProgress
	bad := -1.0
	if err := applyComplete(j, "", &bad, time.Now()); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("negative cost: got %v, want validation error", err)
	}
	if j.Status != StatusInProgress {
		t.Fatalf("status changed on failed complete: %s", j.Status)
	}
}

func TestTerminalJobsRejectEverything(t *testing.T) {
	now := time.Now()
	for _, status := range []string{StatusCompleted, StatusCancelled} {
		j := pendingJob("m1")
		j.Status = status

		if _, err := applyAccept(j, "m1", "", now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s accept: got %v", status, err)
		}
		if err := applyDecline(j, "m1", now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s decline: got %v", status, err)
		}
		if _, err := applyAssign(j, []string{"m2"}, now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s assign: got %v", status, err)
		}
		if err := applyStart(j, now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s start: got %v", status, err)
		}
		if err := applyComplete(j, "", nil, now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s complete: got %v", status, err)
		}
		if err := applyCancel(j, now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s cancel: got %v", status, err)
		}
		if _, err := applyAddParts(j, []PartInput{{Name: "pad", PartNumber: "P-1", Quantity: 1}}, now); !errors.Is(err, apperr.ErrInvalidTransition) {
			t.Errorf("%s parts: got %v", status, err)
		}
	}
}

func TestAssignRejectsDuplicate(t *testing.T) {
	now := time.Now()
	j := pendingJob("m1")
	if _, err := applyAssign(j, []string{"m1"}, now); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("duplicate assign: got %v, want conflict", err)
	}
	added, err := applyAssign(j, []string{"m2", "m3"}, now)
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if len(added) != 2 || len(j.Mechanics) != 3 {
		t.Fatalf("added=%d total=%d", len(added), len(j.Mechanics))
	}
}

func TestNewPartValidation(t *testing.T) {
	if _, err := newPart("j", PartInput{PartNumber: "P-1", Quantity: 1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("missing name: got %v", err)
	}
	if _, err := newPart("j", PartInput{Name: "pad", PartNumber: "P-1", Quantity: 0}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("zero quantity: got %v", err)
	}
	if _, err := newPart("j", PartInput{Name: "pad", PartNumber: "P-1", Quantity: 1, UnitPrice: -5}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("negative price: got %v", err)
	}
	p, err := newPart("j", PartInput{Name: "pad", PartNumber: "P-1", Quantity: 4, UnitPrice: 12.5})
	if err != nil {
		t.Fatalf("valid part: %v", err)
	}
	if p.TotalPrice != 50 {
		t.Fatalf("total = %v, want 50", p.TotalPrice)
	}
}
