package fleet

import (
	"context"
	"sort"
	"sync"

	"fleet-service/pkg/apperr"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs the tests and the
// DATABASE_URL=memory development mode; the exclusivity semantics are
// identical to the Postgres implementation.
type MemoryStore struct {
	mu       sync.Mutex
	vehicles map[string]*Vehicle
	hubs     map[string]*Hub
	drivers  map[string]*Driver
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: make(map[string]*Vehicle),
		hubs:     make(map[string]*Hub),
		drivers:  make(map[string]*Driver),
	}
}

func (s *MemoryStore) CreateVehicle(ctx context.Context, v *Vehicle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.vehicles {
		if other.PlateNumber == v.PlateNumber {
			return apperr.Conflictf("plate number %s already registered", v.PlateNumber)
		}
	}
	cp := *v
	s.vehicles[v.ID] = &cp
	return nil
}

func (s *MemoryStore) GetVehicle(ctx context.Context, id string) (*Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[id]
	if !ok {
		return nil, apperr.NotFoundf("vehicle %s", id)
	}
	return s.vehicleView(v), nil
}

func (s *MemoryStore) ListVehicles(ctx context.Context, limit, offset int) ([]Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Vehicle, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		out = append(out, *s.vehicleView(v))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

func (s *MemoryStore) VehicleExists(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.vehicles[id]
	return ok, nil
}

// vehicleView derives the driver/hub references from the owning side of
// each link. Caller holds the lock.
func (s *MemoryStore) vehicleView(v *Vehicle) *Vehicle {
	cp := *v
	for _, h := range s.hubs {
		if h.VehicleID != nil && *h.VehicleID == v.ID {
			id := h.ID
			cp.HubID = &id
			break
		}
	}
	for _, d := range s.drivers {
		if d.VehicleID != nil && *d.VehicleID == v.ID {
			id := d.ID
			cp.DriverID = &id
			break
		}
	}
	return &cp
}

func (s *MemoryStore) CreateHub(ctx context.Context, h *Hub) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.hubs {
		if other.SerialNumber == h.SerialNumber {
			return apperr.Conflictf("serial number %s already registered", h.SerialNumber)
		}
		if other.AuthKey == h.AuthKey {
			return apperr.Conflictf("auth key already in use")
		}
	}
	cp := *h
	s.hubs[h.ID] = &cp
	return nil
}

func (s *MemoryStore) GetHub(ctx context.Context, id string) (*Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.hubs[id]
	if !ok {
		return nil, apperr.NotFoundf("hub %s", id)
	}
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) ListHubs(ctx context.Context, limit, offset int) ([]Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Hub, 0, len(s.hubs))
	for _, h := range s.hubs {
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

func (s *MemoryStore) AssignHub(ctx context.Context, hubID, vehicleID string) (*Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hubs[hubID]
	if !ok {
		return nil, apperr.NotFoundf("hub %s", hubID)
	}
	if _, ok := s.vehicles[vehicleID]; !ok {
		return nil, apperr.NotFoundf("vehicle %s", vehicleID)
	}
	if h.VehicleID != nil {
		return nil, apperr.Conflictf("hub %s already assigned to vehicle %s", hubID, *h.VehicleID)
	}
	for _, other := range s.hubs {
		if other.VehicleID != nil && *other.VehicleID == vehicleID {
			return nil, apperr.Conflictf("vehicle %s already has hub %s", vehicleID, other.ID)
		}
	}

	vid := vehicleID
	h.VehicleID = &vid
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) UnassignHub(ctx context.Context, hubID string) (*Hub, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.hubs[hubID]
	if !ok {
		return nil, apperr.NotFoundf("hub %s", hubID)
	}
	if h.VehicleID == nil {
		return nil, apperr.NotFoundf("hub %s is not assigned", hubID)
	}
	h.VehicleID = nil
	cp := *h
	return &cp, nil
}

func (s *MemoryStore) CreateDriver(ctx context.Context, d *Driver) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.drivers {
		if other.Email == d.Email {
			return apperr.Conflictf("email %s already registered", d.Email)
		}
	}
	cp := *d
	s.drivers[d.ID] = &cp
	return nil
}

func (s *MemoryStore) GetDriver(ctx context.Context, id string) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drivers[id]
	if !ok {
		return nil, apperr.NotFoundf("driver %s", id)
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDrivers(ctx context.Context, limit, offset int) ([]Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return window(out, limit, offset), nil
}

func (s *MemoryStore) AssignDriver(ctx context.Context, vehicleID, driverID string) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[driverID]
	if !ok {
		return nil, apperr.NotFoundf("driver %s", driverID)
	}
	if _, ok := s.vehicles[vehicleID]; !ok {
		return nil, apperr.NotFoundf("vehicle %s", vehicleID)
	}
	if !d.Available {
		return nil, apperr.Conflictf("driver %s is unavailable", driverID)
	}
	if d.VehicleID != nil {
		return nil, apperr.Conflictf("driver %s already assigned to vehicle %s", driverID, *d.VehicleID)
	}
	for _, other := range s.drivers {
		if other.VehicleID != nil && *other.VehicleID == vehicleID {
			return nil, apperr.Conflictf("vehicle %s already has driver %s", vehicleID, other.ID)
		}
	}

	vid := vehicleID
	d.VehicleID = &vid
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) RemoveDriver(ctx context.Context, vehicleID string) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.drivers {
		if d.VehicleID != nil && *d.VehicleID == vehicleID {
			d.VehicleID = nil
			cp := *d
			return &cp, nil
		}
	}
	return nil, apperr.NotFoundf("vehicle %s has no driver", vehicleID)
}

func (s *MemoryStore) SetDriverAvailability(ctx context.Context, driverID string, available bool) (*Driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drivers[driverID]
	if !ok {
		return nil, apperr.NotFoundf("driver %s", driverID)
	}
	d.Available = available
	cp := *d
	return &cp, nil
}

// window applies limit/offset to an already-sorted slice.
func window[T any](in []T, limit, offset int) []T {
	if offset >= len(in) {
		return []T{}
	}
	in = in[offset:]
	if limit > 0 && limit < len(in) {
		in = in[:limit]
	}
	return in
}
