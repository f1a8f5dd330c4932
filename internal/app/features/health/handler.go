package health

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dalemusser/groupsnap/internal/app/system/httpjson"
	"github.com/dalemusser/groupsnap/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

var errNoDatabase = errors.New("health: no database configured")

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// RoomCounter reports how many realtime rooms are open. Optional.
type RoomCounter interface {
	Rooms() int
}

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB      Pinger
	Rooms   RoomCounter
	Started time.Time
	Log     *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(db Pinger, rooms RoomCounter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{DB: db, Rooms: rooms, Started: time.Now(), Log: logger}
}

type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
	Rooms    *int   `json:"rooms,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "uptime":"1h2m3s" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "database":"disconnected", "message":"Database unavailable" }
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
		Uptime:   time.Since(h.Started).Truncate(time.Second).String(),
	}
	if h.Rooms != nil {
		n := h.Rooms.Rooms()
		resp.Rooms = &n
	}

	err := errNoDatabase
	if h.DB != nil {
		err = h.DB.Ping(ctx, readpref.Primary())
	}
	if err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		httpjson.WriteJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	httpjson.WriteJSON(w, http.StatusOK, resp)
}
