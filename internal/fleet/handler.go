package fleet

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleet-service/pkg/apperr"
	"fleet-service/pkg/jwt"
)

// Handler exposes registry HTTP endpoints.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the registry service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with all registry routes. Heartbeats are
// authenticated by hub key, everything else by JWT.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Device-facing
	r.Post("/hubs/{id}/heartbeat", h.Heartbeat)

	// Operator-facing
	r.Group(func(r chi.Router) {
		r.Use(jwt.RequireAuth)

		r.Post("/vehicles", h.CreateVehicle)
		r.Get("/vehicles", h.ListVehicles)
		r.Get("/vehicles/{id}", h.GetVehicle)
		r.Post("/vehicles/{id}/driver", h.AssignDriver)
		r.Delete("/vehicles/{id}/driver", h.RemoveDriver)

		r.Post("/hubs", h.CreateHub)
		r.Get("/hubs", h.ListHubs)
		r.Get("/hubs/{id}", h.GetHub)
		r.Post("/hubs/{id}/assign", h.AssignHub)
		r.Post("/hubs/{id}/unassign", h.UnassignHub)

		r.Post("/drivers", h.CreateDriver)
		r.Get("/drivers", h.ListDrivers)
		r.Get("/drivers/nearby", h.NearbyDrivers)
		r.Get("/drivers/{id}", h.GetDriver)
		r.Patch("/drivers/{id}/availability", h.SetAvailability)
		r.Patch("/drivers/{id}/location", h.UpdateLocation)
	})

	return r
}

func (h *Handler) CreateVehicle(w http.ResponseWriter, r *http.Request) {
	var req CreateVehicleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	v, err := h.svc.CreateVehicle(r.Context(), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (h *Handler) ListVehicles(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	vs, err := h.svc.ListVehicles(r.Context(), limit, offset)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (h *Handler) GetVehicle(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.GetVehicle(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) CreateHub(w http.ResponseWriter, r *http.Request) {
	var req CreateHubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	hub, err := h.svc.CreateHub(r.Context(), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	// auth key is returned exactly once, at registration
	writeJSON(w, http.StatusCreated, map[string]any{"hub": hub, "auth_key": hub.AuthKey})
}

func (h *Handler) ListHubs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	hubs, err := h.svc.ListHubs(r.Context(), limit, offset)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hubs)
}

func (h *Handler) GetHub(w http.ResponseWriter, r *http.Request) {
	hub, err := h.svc.GetHub(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hub)
}

func (h *Handler) AssignHub(w http.ResponseWriter, r *http.Request) {
	var req AssignHubRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	hub, err := h.svc.AssignHub(r.Context(), chi.URLParam(r, "id"), req.VehicleID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hub)
}

func (h *Handler) UnassignHub(w http.ResponseWriter, r *http.Request) {
	hub, err := h.svc.UnassignHub(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hub)
}

func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Heartbeat(r.Context(), chi.URLParam(r, "id"), r.Header.Get("X-Hub-Key")); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) CreateDriver(w http.ResponseWriter, r *http.Request) {
	var req CreateDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	d, err := h.svc.CreateDriver(r.Context(), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) ListDrivers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pageParams(r)
	ds, err := h.svc.ListDrivers(r.Context(), limit, offset)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *Handler) GetDriver(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) AssignDriver(w http.ResponseWriter, r *http.Request) {
	var req AssignDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	d, err := h.svc.AssignDriver(r.Context(), chi.URLParam(r, "id"), req.DriverID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) RemoveDriver(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.RemoveDriver(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req AvailabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	d, err := h.svc.SetDriverAvailability(r.Context(), chi.URLParam(r, "id"), req.Available)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) UpdateLocation(w http.ResponseWriter, r *http.Request) {
	var req LocationUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	if err := h.svc.UpdateDriverLocation(r.Context(), chi.URLParam(r, "id"), req.Lat, req.Lng); err != nil {
		apperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) NearbyDrivers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		apperr.Write(w, apperr.Validationf("lat and lng required"))
		return
	}
	radiusKm, _ := strconv.ParseFloat(q.Get("radius_km"), 64)
	limit, _ := strconv.Atoi(q.Get("limit"))

	ds, err := h.svc.NearbyDrivers(r.Context(), lat, lng, radiusKm, limit)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func pageParams(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
