package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-service/internal/faults"
	"fleet-service/internal/fleet"
	"fleet-service/pkg/apperr"
)

type testEnv struct {
	svc    *Service
	fleet  *fleet.MemoryStore
	faults *faults.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fl := fleet.NewMemoryStore()
	fa := faults.NewMemoryStore()
	return &testEnv{
		svc:    NewService(NewMemoryStore(fl, fa), nil, zap.NewNop().Sugar()),
		fleet:  fl,
		faults: fa,
	}
}

func (e *testEnv) vehicle(t *testing.T, id, plate string) {
	t.Helper()
	err := e.fleet.CreateVehicle(context.Background(), &fleet.Vehicle{
		ID: id, PlateNumber: plate, Status: fleet.VehicleActive,
	})
	require.NoError(t, err)
}

func (e *testEnv) fault(t *testing.T, id, vehicleID string) {
	t.Helper()
	err := e.faults.Create(context.Background(), &faults.VehicleError{
		ID: id, VehicleID: vehicleID, Code: "P0301", Severity: faults.SeverityCritical,
		ReportedAt: time.Now(),
	})
	require.NoError(t, err)
}

func validCreateRequest(vehicleID string, mechanics ...string) CreateJobRequest {
	return CreateJobRequest{
		Title:         "Replace brake pads",
		Description:   "Front pads worn below limit",
		Instructions:  "Lift, inspect discs, replace pads",
		VehicleID:     vehicleID,
		ScheduledDate: time.Now().Add(24 * time.Hour),
		EstimatedCost: 100,
		MechanicIDs:   mechanics,
	}
}

func TestCreateJobValidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	req := validCreateRequest("v1", "m1")
	req.Title = ""
	_, err := env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation)

	req = validCreateRequest("v1")
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation, "no mechanics")

	req = validCreateRequest("v1", "m1", "m1")
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation, "duplicate mechanics")

	req = validCreateRequest("v1", "m1")
	req.Priority = "WHENEVER"
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation)

	req = validCreateRequest("v1", "m1")
	req.EstimatedCost = -10
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = env.svc.Create(ctx, validCreateRequest("ghost", "m1"))
	require.ErrorIs(t, err, apperr.ErrNotFound, "unknown vehicle")
}

func TestCreateJobNumbersAreSequential(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	j1, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)
	j2, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)

	require.Equal(t, "SJ-000001", j1.JobNumber)
	require.Equal(t, "SJ-000002", j2.JobNumber)
	require.Equal(t, StatusPending, j1.Status)
	require.Equal(t, PriorityMedium, j1.Priority)
}

func TestCreateJobFaultLinking(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")
	env.vehicle(t, "v2", "KA-01-AB-2222")
	env.fault(t, "f1", "v1")

	req := validCreateRequest("v1", "m1")
	fid := "ghost"
	req.FaultID = &fid
	_, err := env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrNotFound, "unknown fault")

	req = validCreateRequest("v2", "m1")
	fid = "f1"
	req.FaultID = &fid
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrValidation, "fault belongs to another vehicle")

	req = validCreateRequest("v1", "m1")
	req.FaultID = &fid
	j, err := env.svc.Create(ctx, req)
	require.NoError(t, err)

	f, err := env.faults.Get(ctx, "f1")
	require.NoError(t, err)
	require.NotNil(t, f.ServiceJobID)
	require.Equal(t, j.ID, *f.ServiceJobID)
	require.False(t, f.Resolved)

	// second job against the same fault
	req = validCreateRequest("v1", "m1")
	req.FaultID = &fid
	_, err = env.svc.Create(ctx, req)
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestFullLifecycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")
	env.fault(t, "f1", "v1")

	req := validCreateRequest("v1", "m1", "m2")
	fid := "f1"
	req.FaultID = &fid
	req.RequiredParts = []PartInput{
		{Name: "Brake pad set", PartNumber: "BP-42", Quantity: 2, UnitPrice: 35},
	}
	j, err := env.svc.Create(ctx, req)
	require.NoError(t, err)
	require.Len(t, j.Mechanics, 2)
	require.Len(t, j.Parts, 1)
	require.Equal(t, 70.0, j.Parts[0].TotalPrice)

	// cannot start before anyone accepts
	_, err = env.svc.Start(ctx, j.ID)
	require.ErrorIs(t, err, apperr.ErrPreconditionFailed)

	j, err = env.svc.Accept(ctx, j.ID, "m1", "taking this")
	require.NoError(t, err)
	require.True(t, j.assignment("m1").Accepted)
	require.False(t, j.assignment("m2").Accepted)

	j, err = env.svc.Start(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, j.Status)

	cost := 120.0
	j, err = env.svc.Complete(ctx, j.ID, CompleteJobRequest{CompletionNotes: "replaced pads", ActualCost: &cost})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, j.Status)
	require.Equal(t, 120.0, *j.ActualCost)
	require.NotNil(t, j.CompletedAt)

	f, err := env.faults.Get(ctx, "f1")
	require.NoError(t, err)
	require.True(t, f.Resolved, "completion resolves the originating fault")

	// late requests against the completed job
	_, err = env.svc.Accept(ctx, j.ID, "m2", "")
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	_, err = env.svc.Cancel(ctx, j.ID)
	require.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestDeclineLeavesJobPending(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	j, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)

	j, err = env.svc.Decline(ctx, j.ID, "m1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, j.Status)
	require.Empty(t, j.Mechanics)

	_, err = env.svc.Start(ctx, j.ID)
	require.ErrorIs(t, err, apperr.ErrPreconditionFailed)

	// reassign and recover
	j, err = env.svc.AssignMechanics(ctx, j.ID, []string{"m3"})
	require.NoError(t, err)
	require.Len(t, j.Mechanics, 1)
	_, err = env.svc.Accept(ctx, j.ID, "m3", "")
	require.NoError(t, err)
	j, err = env.svc.Start(ctx, j.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, j.Status)
}

func TestCancelFromEitherLiveState(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	j1, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)
	j1, err = env.svc.Cancel(ctx, j1.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, j1.Status)
	require.NotNil(t, j1.CancelledAt)

	j2, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)
	_, err = env.svc.Accept(ctx, j2.ID, "m1", "")
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, j2.ID)
	require.NoError(t, err)
	j2, err = env.svc.Cancel(ctx, j2.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, j2.Status)
}

func TestPartsLedger(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	j, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)

	j, err = env.svc.AddParts(ctx, j.ID, []PartInput{
		{Name: "Oil filter", PartNumber: "OF-9", Quantity: 1, UnitPrice: 15.5},
		{Name: "Air filter", PartNumber: "AF-3", Quantity: 2, UnitPrice: 22},
	})
	require.NoError(t, err)
	require.Len(t, j.Parts, 2)
	require.Equal(t, 44.0, j.Parts[1].TotalPrice)

	_, err = env.svc.AddParts(ctx, j.ID, []PartInput{{Name: "x", PartNumber: "X", Quantity: -1}})
	require.ErrorIs(t, err, apperr.ErrValidation)

	p, err := env.svc.MarkPartOrdered(ctx, j.Parts[0].ID)
	require.NoError(t, err)
	require.True(t, p.Ordered)
	require.False(t, p.Received)

	p, err = env.svc.MarkPartReceived(ctx, j.Parts[0].ID)
	require.NoError(t, err)
	require.True(t, p.Received)

	_, err = env.svc.MarkPartOrdered(ctx, "ghost")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// procurement keeps working after the job reaches a terminal state
	_, err = env.svc.Cancel(ctx, j.ID)
	require.NoError(t, err)
	p, err = env.svc.MarkPartOrdered(ctx, j.Parts[1].ID)
	require.NoError(t, err)
	require.True(t, p.Ordered)
}

func TestListAndSummary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")
	env.vehicle(t, "v2", "KA-01-AB-2222")

	j1, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)
	req := validCreateRequest("v2", "m1", "m2")
	req.EstimatedCost = 200
	req.RequiredParts = []PartInput{{Name: "Bulb", PartNumber: "B-1", Quantity: 1, UnitPrice: 5}}
	j2, err := env.svc.Create(ctx, req)
	require.NoError(t, err)

	_, err = env.svc.Accept(ctx, j2.ID, "m1", "")
	require.NoError(t, err)
	_, err = env.svc.Start(ctx, j2.ID)
	require.NoError(t, err)
	cost := 250.0
	j2, err = env.svc.Complete(ctx, j2.ID, CompleteJobRequest{ActualCost: &cost})
	require.NoError(t, err)
	_, err = env.svc.MarkPartOrdered(ctx, j2.Parts[0].ID)
	require.NoError(t, err)

	all, err := env.svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	pending, err := env.svc.List(ctx, ListFilter{Status: "pending"})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, j1.ID, pending[0].ID)

	byVehicle, err := env.svc.List(ctx, ListFilter{VehicleID: "v2"})
	require.NoError(t, err)
	require.Len(t, byVehicle, 1)

	_, err = env.svc.List(ctx, ListFilter{Status: "LIMBO"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	sum, err := env.svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sum.TotalJobs)
	require.Equal(t, 1, sum.ByStatus[StatusPending])
	require.Equal(t, 1, sum.ByStatus[StatusCompleted])
	require.Equal(t, 3, sum.MechanicsAssigned)
	require.Equal(t, 1, sum.PartsOrdered)
	require.Equal(t, 300.0, sum.EstimatedCostTotal)
	require.Equal(t, 250.0, sum.ActualCostTotal)
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.vehicle(t, "v1", "KA-01-AB-1111")

	j, err := env.svc.Create(ctx, validCreateRequest("v1", "m1"))
	require.NoError(t, err)
	_, err = env.svc.Accept(ctx, j.ID, "m1", "")
	require.NoError(t, err)

	const n = 16
	var wg sync.WaitGroup
	results := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = env.svc.Start(ctx, j.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			require.ErrorIs(t, err, apperr.ErrInvalidTransition)
		}
	}
	require.Equal(t, 1, wins, "exactly one start succeeds")
}
