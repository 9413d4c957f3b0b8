package tracking

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleet-service/internal/events"
	"fleet-service/pkg/kafka"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// safeConn wraps a websocket.Conn with a write mutex.
// gorilla/websocket allows one concurrent writer; this enforces that.
type safeConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *safeConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *safeConn) readMessage() (int, []byte, error) {
	return c.ws.ReadMessage()
}

func (c *safeConn) close() { c.ws.Close() }

// Hub manages WebSocket subscriptions per vehicle. Subscribers receive live
// driver locations and job status changes for the vehicle they watch.
type Hub struct {
	mu    sync.RWMutex
	conns map[string][]*safeConn
	log   *zap.SugaredLogger
}

// NewHub creates a live-feed hub.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{conns: make(map[string][]*safeConn), log: log}
}

// Routes returns a chi.Router for the /ws mount point.
func (h *Hub) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/vehicles/{id}", h.HandleWS)
	return r
}

// HandleWS upgrades the connection and subscribes it to a vehicle.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	vehicleID := chi.URLParam(r, "id")
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("ws upgrade: %v", err)
		return
	}

	conn := &safeConn{ws: ws}

	h.mu.Lock()
	h.conns[vehicleID] = append(h.conns[vehicleID], conn)
	h.mu.Unlock()

	h.log.Infow("ws client connected", "vehicle_id", vehicleID)

	// Block until the client disconnects
	for {
		if _, _, err := conn.readMessage(); err != nil {
			break
		}
	}

	h.removeConn(vehicleID, conn)
	conn.close()
	h.log.Infow("ws client disconnected", "vehicle_id", vehicleID)
}

// BroadcastVehicle pushes a payload to all subscribers of a vehicle.
// Safe for concurrent calls; each safeConn serialises its own writes.
func (h *Hub) BroadcastVehicle(vehicleID string, payload any) {
	h.mu.RLock()
	conns := h.conns[vehicleID]
	h.mu.RUnlock()

	for _, c := range conns {
		if err := c.writeJSON(payload); err != nil {
			h.log.Errorf("ws write: %v", err)
		}
	}
}

// StartJobFeedConsumer relays job status changes from Kafka onto the
// websocket feed of the affected vehicle.
func (h *Hub) StartJobFeedConsumer(ctx context.Context, k *kafka.Client) {
	k.Subscribe(ctx, kafka.TopicJobStatusChanged, "ws-feed", func(data []byte) error {
		var ev events.JobStatusChangedEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		h.BroadcastVehicle(ev.VehicleID, map[string]any{
			"type":       "job.status",
			"job_id":     ev.JobID,
			"vehicle_id": ev.VehicleID,
			"from":       ev.From,
			"to":         ev.To,
			"changed_at": ev.ChangedAt,
		})
		return nil
	})
}

func (h *Hub) removeConn(vehicleID string, conn *safeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Copy on remove: a concurrent BroadcastVehicle may still be walking
	// the old slice after releasing the read lock.
	old := h.conns[vehicleID]
	conns := make([]*safeConn, 0, len(old))
	for _, c := range old {
		if c != conn {
			conns = append(conns, c)
		}
	}
	if len(conns) == 0 {
		delete(h.conns, vehicleID)
		return
	}
	h.conns[vehicleID] = conns
}
