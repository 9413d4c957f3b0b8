package faults

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-service/internal/fleet"
	"fleet-service/pkg/apperr"
)

func newTestService(t *testing.T) (*Service, *fleet.MemoryStore) {
	t.Helper()
	fl := fleet.NewMemoryStore()
	return NewService(NewMemoryStore(), fl, zap.NewNop().Sugar()), fl
}

func TestReportValidation(t *testing.T) {
	ctx := context.Background()
	svc, fl := newTestService(t)
	require.NoError(t, fl.CreateVehicle(ctx, &fleet.Vehicle{ID: "v1", PlateNumber: "KA-01-AB-1111", Status: fleet.VehicleActive}))

	_, err := svc.Report(ctx, ReportRequest{VehicleID: "v1", Severity: SeverityLow})
	require.ErrorIs(t, err, apperr.ErrValidation, "missing code")

	_, err = svc.Report(ctx, ReportRequest{VehicleID: "v1", Code: "P0301", Severity: "SPICY"})
	require.ErrorIs(t, err, apperr.ErrValidation, "unknown severity")

	_, err = svc.Report(ctx, ReportRequest{VehicleID: "ghost", Code: "P0301", Severity: SeverityLow})
	require.ErrorIs(t, err, apperr.ErrNotFound, "unknown vehicle")

	f, err := svc.Report(ctx, ReportRequest{VehicleID: "v1", Code: "P0301", Severity: "critical"})
	require.NoError(t, err)
	require.Equal(t, SeverityCritical, f.Severity, "severity is normalised")
	require.False(t, f.Resolved)
}

func TestListFilters(t *testing.T) {
	ctx := context.Background()
	svc, fl := newTestService(t)
	require.NoError(t, fl.CreateVehicle(ctx, &fleet.Vehicle{ID: "v1", PlateNumber: "KA-01-AB-1111", Status: fleet.VehicleActive}))
	require.NoError(t, fl.CreateVehicle(ctx, &fleet.Vehicle{ID: "v2", PlateNumber: "KA-01-AB-2222", Status: fleet.VehicleActive}))

	f1, err := svc.Report(ctx, ReportRequest{VehicleID: "v1", Code: "P0301", Severity: SeverityCritical})
	require.NoError(t, err)
	_, err = svc.Report(ctx, ReportRequest{VehicleID: "v2", Code: "P0420", Severity: SeverityLow})
	require.NoError(t, err)

	all, err := svc.List(ctx, "", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	byVehicle, err := svc.List(ctx, "v1", false, 0, 0)
	require.NoError(t, err)
	require.Len(t, byVehicle, 1)
	require.Equal(t, f1.ID, byVehicle[0].ID)

	store := svc.store.(*MemoryStore)
	require.NoError(t, store.Resolve(ctx, f1.ID, "job-1"))

	unresolved, err := svc.List(ctx, "", true, 0, 0)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	require.Equal(t, "P0420", unresolved[0].Code)
}
