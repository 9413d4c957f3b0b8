package fleet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fleet-service/internal/events"
	"fleet-service/pkg/apperr"
	"fleet-service/pkg/kafka"
	rredis "fleet-service/pkg/redis"
	"fleet-service/pkg/validation"
)

// Feed receives live updates for websocket subscribers of a vehicle.
type Feed interface {
	BroadcastVehicle(vehicleID string, payload any)
}

// Service contains registry business logic: record keeping plus the
// hub/driver exclusivity operations.
type Service struct {
	store Store
	redis *rredis.Client
	kafka *kafka.Client
	feed  Feed
	log   *zap.SugaredLogger
}

// NewService creates a registry service. redis, kafka and feed may be nil
// (tests, memory mode); the related side effects are skipped.
func NewService(store Store, redis *rredis.Client, k *kafka.Client, feed Feed, log *zap.SugaredLogger) *Service {
	return &Service{store: store, redis: redis, kafka: k, feed: feed, log: log}
}

func (s *Service) CreateVehicle(ctx context.Context, req CreateVehicleRequest) (*Vehicle, error) {
	plate := strings.ToUpper(strings.TrimSpace(req.PlateNumber))
	if !validation.ValidatePlate(plate) {
		return nil, apperr.Validationf("invalid plate number %q", req.PlateNumber)
	}
	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = VehicleActive
	}
	if status != VehicleActive && status != VehicleInService && status != VehicleInactive {
		return nil, apperr.Validationf("unknown vehicle status %q", req.Status)
	}
	if req.Mileage < 0 || req.ServiceDueMileage < 0 {
		return nil, apperr.Validationf("mileage must be >= 0")
	}

	now := time.Now()
	v := &Vehicle{
		ID:                uuid.NewString(),
		PlateNumber:       plate,
		Status:            status,
		Mileage:           req.Mileage,
		ServiceDueMileage: req.ServiceDueMileage,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateVehicle(ctx, v); err != nil {
		return nil, err
	}
	s.log.Infow("vehicle registered", "vehicle_id", v.ID, "plate", v.PlateNumber)
	return v, nil
}

func (s *Service) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	return s.store.GetVehicle(ctx, id)
}

func (s *Service) ListVehicles(ctx context.Context, limit, offset int) ([]Vehicle, error) {
	return s.store.ListVehicles(ctx, clampLimit(limit), max(offset, 0))
}

func (s *Service) CreateHub(ctx context.Context, req CreateHubRequest) (*Hub, error) {
	serial := strings.TrimSpace(req.SerialNumber)
	if !validation.ValidateSerial(serial) {
		return nil, apperr.Validationf("invalid serial number %q", req.SerialNumber)
	}
	key := strings.TrimSpace(req.AuthKey)
	if key == "" {
		key = uuid.NewString()
	}

	h := &Hub{
		ID:           uuid.NewString(),
		SerialNumber: serial,
		AuthKey:      key,
		CreatedAt:    time.Now(),
	}
	if err := s.store.CreateHub(ctx, h); err != nil {
		return nil, err
	}
	s.log.Infow("hub registered", "hub_id", h.ID, "serial", h.SerialNumber)
	return h, nil
}

func (s *Service) GetHub(ctx context.Context, id string) (*Hub, error) {
	h, err := s.store.GetHub(ctx, id)
	if err != nil {
		return nil, err
	}
	s.fillOnline(ctx, h)
	return h, nil
}

func (s *Service) ListHubs(ctx context.Context, limit, offset int) ([]Hub, error) {
	hubs, err := s.store.ListHubs(ctx, clampLimit(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	for i := range hubs {
		s.fillOnline(ctx, &hubs[i])
	}
	return hubs, nil
}

// AssignHub links a hub to a vehicle; both sides agree or nothing happens.
func (s *Service) AssignHub(ctx context.Context, hubID, vehicleID string) (*Hub, error) {
	if strings.TrimSpace(vehicleID) == "" {
		return nil, apperr.Validationf("vehicle_id required")
	}
	h, err := s.store.AssignHub(ctx, hubID, vehicleID)
	if err != nil {
		return nil, err
	}
	s.log.Infow("hub assigned", "hub_id", hubID, "vehicle_id", vehicleID)
	s.publishHubAssigned(h.ID, vehicleID)
	return h, nil
}

func (s *Service) UnassignHub(ctx context.Context, hubID string) (*Hub, error) {
	h, err := s.store.UnassignHub(ctx, hubID)
	if err != nil {
		return nil, err
	}
	s.log.Infow("hub unassigned", "hub_id", hubID)
	s.publishHubAssigned(h.ID, "")
	return h, nil
}

// Heartbeat records a ping from the device itself, authenticated by the
// hub's key rather than a user JWT.
func (s *Service) Heartbeat(ctx context.Context, hubID, authKey string) error {
	h, err := s.store.GetHub(ctx, hubID)
	if err != nil {
		return err
	}
	if h.AuthKey != authKey {
		// do not leak which of id/key was wrong
		return apperr.NotFoundf("hub %s", hubID)
	}
	if s.redis == nil {
		return nil
	}
	return s.redis.TouchHubHeartbeat(ctx, hubID)
}

func (s *Service) CreateDriver(ctx context.Context, req CreateDriverRequest) (*Driver, error) {
	if !validation.ValidateName(req.Name) {
		return nil, apperr.Validationf("invalid driver name")
	}
	if !validation.ValidateEmail(req.Email) {
		return nil, apperr.Validationf("invalid email %q", req.Email)
	}

	d := &Driver{
		ID:        uuid.NewString(),
		Name:      strings.TrimSpace(req.Name),
		Email:     strings.TrimSpace(req.Email),
		Available: true,
		CreatedAt: time.Now(),
	}
	if err := s.store.CreateDriver(ctx, d); err != nil {
		return nil, err
	}
	s.log.Infow("driver registered", "driver_id", d.ID)
	return d, nil
}

func (s *Service) GetDriver(ctx context.Context, id string) (*Driver, error) {
	return s.store.GetDriver(ctx, id)
}

func (s *Service) ListDrivers(ctx context.Context, limit, offset int) ([]Driver, error) {
	return s.store.ListDrivers(ctx, clampLimit(limit), max(offset, 0))
}

// AssignDriver links a driver to a vehicle with the same exclusivity
// guarantees as AssignHub, plus the availability gate.
func (s *Service) AssignDriver(ctx context.Context, vehicleID, driverID string) (*Driver, error) {
	if strings.TrimSpace(driverID) == "" {
		return nil, apperr.Validationf("driver_id required")
	}
	d, err := s.store.AssignDriver(ctx, vehicleID, driverID)
	if err != nil {
		return nil, err
	}
	s.log.Infow("driver assigned", "driver_id", driverID, "vehicle_id", vehicleID)
	return d, nil
}

func (s *Service) RemoveDriver(ctx context.Context, vehicleID string) (*Driver, error) {
	d, err := s.store.RemoveDriver(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	s.log.Infow("driver removed", "driver_id", d.ID, "vehicle_id", vehicleID)
	s.dropLocation(ctx, d.ID)
	return d, nil
}

func (s *Service) SetDriverAvailability(ctx context.Context, driverID string, available bool) (*Driver, error) {
	d, err := s.store.SetDriverAvailability(ctx, driverID, available)
	if err != nil {
		return nil, err
	}
	if !available {
		s.dropLocation(ctx, driverID)
	}
	return d, nil
}

// dropLocation clears the driver's GEO entry so stale positions don't show
// up in nearby queries. Best effort; the authoritative record is unaffected.
func (s *Service) dropLocation(ctx context.Context, driverID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.RemoveDriverLocation(ctx, driverID); err != nil {
		s.log.Warnf("remove driver location: %v", err)
	}
}

// NearbyDrivers resolves the drivers currently positioned within radiusKm
// of a point, nearest first. Drivers whose GEO entry outlived their record
// are skipped.
func (s *Service) NearbyDrivers(ctx context.Context, lat, lng, radiusKm float64, limit int) ([]Driver, error) {
	if !validation.ValidateCoordinates(lat, lng) {
		return nil, apperr.Validationf("invalid coordinates (%f, %f)", lat, lng)
	}
	if radiusKm <= 0 {
		radiusKm = 5
	}
	limit = clampLimit(limit)

	out := []Driver{}
	if s.redis == nil {
		return out, nil
	}
	ids, err := s.redis.NearbyDrivers(ctx, lat, lng, radiusKm, limit)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		d, err := s.store.GetDriver(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

// UpdateDriverLocation stores the position in Redis and pushes it to live
// subscribers of the driver's vehicle.
func (s *Service) UpdateDriverLocation(ctx context.Context, driverID string, lat, lng float64) error {
	if !validation.ValidateCoordinates(lat, lng) {
		return apperr.Validationf("invalid coordinates (%f, %f)", lat, lng)
	}
	d, err := s.store.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	if s.redis != nil {
		if err := s.redis.SetDriverLocation(ctx, driverID, lat, lng); err != nil {
			return err
		}
	}
	if s.feed != nil && d.VehicleID != nil {
		s.feed.BroadcastVehicle(*d.VehicleID, map[string]any{
			"type":      "driver.location",
			"driver_id": driverID,
			"lat":       lat,
			"lng":       lng,
			"ts":        time.Now().Unix(),
		})
	}
	return nil
}

func (s *Service) publishHubAssigned(hubID, vehicleID string) {
	if s.kafka == nil {
		return
	}
	go func() {
		ev := events.HubAssignedEvent{HubID: hubID, VehicleID: vehicleID}
		if err := s.kafka.Publish(context.Background(), kafka.TopicHubAssigned, hubID, ev); err != nil {
			s.log.Errorf("publish hub.assigned: %v", err)
		}
	}()
}

func (s *Service) fillOnline(ctx context.Context, h *Hub) {
	if s.redis == nil {
		return
	}
	online, err := s.redis.HubOnline(ctx, h.ID)
	if err != nil {
		s.log.Warnf("hub online check: %v", err)
		return
	}
	h.Online = online
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 50
	}
	return limit
}
