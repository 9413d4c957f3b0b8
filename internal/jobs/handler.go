package jobs

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"fleet-service/pkg/apperr"
	"fleet-service/pkg/jwt"
)

// Handler exposes the job lifecycle HTTP endpoints.
type Handler struct{ svc *Service }

// NewHandler wires a handler to the job service.
func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Routes returns a chi.Router with all job routes.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwt.RequireAuth)

	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/summary", h.Summary)
	r.Get("/{id}", h.Get)

	r.Post("/{id}/accept", h.Accept)
	r.Post("/{id}/decline", h.Decline)
	r.Post("/{id}/mechanics", h.AssignMechanics)

	r.Post("/{id}/start", h.Start)
	r.Post("/{id}/complete", h.Complete)
	r.Post("/{id}/cancel", h.Cancel)

	r.Post("/{id}/parts", h.AddParts)
	r.Post("/parts/{partId}/ordered", h.PartOrdered)
	r.Post("/parts/{partId}/received", h.PartReceived)

	return r
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	j, err := h.svc.Create(r.Context(), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	jobs, err := h.svc.List(r.Context(), ListFilter{
		Status:    q.Get("status"),
		VehicleID: q.Get("vehicle_id"),
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	req, err := assignmentBody(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	j, err := h.svc.Accept(r.Context(), chi.URLParam(r, "id"), req.MechanicID, req.Notes)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	req, err := assignmentBody(r)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	j, err := h.svc.Decline(r.Context(), chi.URLParam(r, "id"), req.MechanicID)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// assignmentBody decodes an accept/decline body. A mechanic calling with
// their own token may omit mechanic_id; it defaults from the claims.
func assignmentBody(r *http.Request) (AssignmentRequest, error) {
	var req AssignmentRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, apperr.Validationf("invalid body")
		}
	}
	if req.MechanicID == "" {
		if c := jwt.GetClaims(r.Context()); c != nil && c.Role == "mechanic" {
			req.MechanicID = c.UserID
		}
	}
	return req, nil
}

func (h *Handler) AssignMechanics(w http.ResponseWriter, r *http.Request) {
	var req AssignMechanicsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	j, err := h.svc.AssignMechanics(r.Context(), chi.URLParam(r, "id"), req.MechanicIDs)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			apperr.Write(w, apperr.Validationf("invalid body"))
			return
		}
	}
	j, err := h.svc.Complete(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	j, err := h.svc.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) AddParts(w http.ResponseWriter, r *http.Request) {
	var req AddPartsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.Write(w, apperr.Validationf("invalid body"))
		return
	}
	j, err := h.svc.AddParts(r.Context(), chi.URLParam(r, "id"), req.Parts)
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *Handler) PartOrdered(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.MarkPartOrdered(r.Context(), chi.URLParam(r, "partId"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) PartReceived(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.MarkPartReceived(r.Context(), chi.URLParam(r, "partId"))
	if err != nil {
		apperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
