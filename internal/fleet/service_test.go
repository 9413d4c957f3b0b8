package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fleet-service/pkg/apperr"
)

func newTestService() *Service {
	return NewService(NewMemoryStore(), nil, nil, nil, zap.NewNop().Sugar())
}

func mustVehicle(t *testing.T, svc *Service, plate string) *Vehicle {
	t.Helper()
	v, err := svc.CreateVehicle(context.Background(), CreateVehicleRequest{PlateNumber: plate})
	require.NoError(t, err)
	return v
}

func mustHub(t *testing.T, svc *Service, serial string) *Hub {
	t.Helper()
	h, err := svc.CreateHub(context.Background(), CreateHubRequest{SerialNumber: serial})
	require.NoError(t, err)
	return h
}

func mustDriver(t *testing.T, svc *Service, email string) *Driver {
	t.Helper()
	d, err := svc.CreateDriver(context.Background(), CreateDriverRequest{Name: "Test Driver", Email: email})
	require.NoError(t, err)
	return d
}

func TestCreateVehicleValidation(t *testing.T) {
	svc := newTestService()
	_, err := svc.CreateVehicle(context.Background(), CreateVehicleRequest{PlateNumber: "!!"})
	require.ErrorIs(t, err, apperr.ErrValidation)

	_, err = svc.CreateVehicle(context.Background(), CreateVehicleRequest{PlateNumber: "KA-01-AB-1234", Mileage: -1})
	require.ErrorIs(t, err, apperr.ErrValidation)

	mustVehicle(t, svc, "KA-01-AB-1234")
	_, err = svc.CreateVehicle(context.Background(), CreateVehicleRequest{PlateNumber: "KA-01-AB-1234"})
	require.ErrorIs(t, err, apperr.ErrConflict)
}

func TestAssignHubRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	v1 := mustVehicle(t, svc, "KA-01-AB-1111")
	v2 := mustVehicle(t, svc, "KA-01-AB-2222")
	h1 := mustHub(t, svc, "OBD-0001")
	h2 := mustHub(t, svc, "OBD-0002")

	got, err := svc.AssignHub(ctx, h1.ID, v1.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VehicleID)
	require.Equal(t, v1.ID, *got.VehicleID)

	// both sides of the link agree
	vehicle, err := svc.GetVehicle(ctx, v1.ID)
	require.NoError(t, err)
	require.NotNil(t, vehicle.HubID)
	require.Equal(t, h1.ID, *vehicle.HubID)

	// hub already assigned elsewhere
	_, err = svc.AssignHub(ctx, h1.ID, v2.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)
	hub, err := svc.GetHub(ctx, h1.ID)
	require.NoError(t, err)
	require.Equal(t, v1.ID, *hub.VehicleID) // winner untouched

	// vehicle already has a hub
	_, err = svc.AssignHub(ctx, h2.ID, v1.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// missing references
	_, err = svc.AssignHub(ctx, "nope", v2.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.AssignHub(ctx, h2.ID, "nope")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	// unassign clears both sides, second unassign is NotFound
	_, err = svc.UnassignHub(ctx, h1.ID)
	require.NoError(t, err)
	vehicle, err = svc.GetVehicle(ctx, v1.ID)
	require.NoError(t, err)
	require.Nil(t, vehicle.HubID)
	_, err = svc.UnassignHub(ctx, h1.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestAssignDriverExclusivity(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	v1 := mustVehicle(t, svc, "KA-01-AB-1111")
	v2 := mustVehicle(t, svc, "KA-01-AB-2222")
	d1 := mustDriver(t, svc, "d1@fleet.example.com")
	d2 := mustDriver(t, svc, "d2@fleet.example.com")

	_, err := svc.AssignDriver(ctx, v1.ID, d1.ID)
	require.NoError(t, err)

	// driver already assigned elsewhere
	_, err = svc.AssignDriver(ctx, v2.ID, d1.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// vehicle already has a driver
	_, err = svc.AssignDriver(ctx, v1.ID, d2.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// unavailable driver cannot be newly assigned
	_, err = svc.SetDriverAvailability(ctx, d2.ID, false)
	require.NoError(t, err)
	_, err = svc.AssignDriver(ctx, v2.ID, d2.ID)
	require.ErrorIs(t, err, apperr.ErrConflict)

	// remove, then the vehicle is free again
	removed, err := svc.RemoveDriver(ctx, v1.ID)
	require.NoError(t, err)
	require.Equal(t, d1.ID, removed.ID)
	require.Nil(t, removed.VehicleID)
	_, err = svc.RemoveDriver(ctx, v1.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.AssignDriver(ctx, v1.ID, d1.ID)
	require.NoError(t, err)
}

func TestConcurrentHubAssignExactlyOneWinner(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	hub := mustHub(t, svc, "OBD-RACE")

	const racers = 16
	vehicles := make([]*Vehicle, racers)
	for i := range vehicles {
		vehicles[i] = mustVehicle(t, svc, "KA-99-ZZ-"+string(rune('A'+i))+"000")
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.AssignHub(ctx, hub.ID, vehicles[i].ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			require.True(t, errors.Is(err, apperr.ErrConflict), "loser got %v, want Conflict", err)
		}
	}
	require.Equal(t, 1, wins, "exactly one racer must win the hub")

	got, err := svc.GetHub(ctx, hub.ID)
	require.NoError(t, err)
	require.NotNil(t, got.VehicleID)
}

func TestNearbyDriversValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()

	_, err := svc.NearbyDrivers(ctx, 91, 0, 5, 10)
	require.ErrorIs(t, err, apperr.ErrValidation)
	_, err = svc.NearbyDrivers(ctx, 0, -181, 5, 10)
	require.ErrorIs(t, err, apperr.ErrValidation)

	// no redis wired: valid query yields an empty result, not an error
	ds, err := svc.NearbyDrivers(ctx, 12.97, 77.59, 0, 0)
	require.NoError(t, err)
	require.NotNil(t, ds)
	require.Empty(t, ds)
}

func TestAvailabilityFlipDropsLocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	d := mustDriver(t, svc, "off@duty.test")

	// the location cleanup path must tolerate an unwired redis
	got, err := svc.SetDriverAvailability(ctx, d.ID, false)
	require.NoError(t, err)
	require.False(t, got.Available)

	got, err = svc.SetDriverAvailability(ctx, d.ID, true)
	require.NoError(t, err)
	require.True(t, got.Available)
}

func TestRemoveDriverDropsLocation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService()
	v := mustVehicle(t, svc, "KA-01-AB-7777")
	d := mustDriver(t, svc, "rotate@duty.test")

	_, err := svc.AssignDriver(ctx, v.ID, d.ID)
	require.NoError(t, err)

	got, err := svc.RemoveDriver(ctx, v.ID)
	require.NoError(t, err)
	require.Equal(t, d.ID, got.ID)
	require.Nil(t, got.VehicleID)
}
