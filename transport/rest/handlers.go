package rest

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/usecase"
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)
	RoomStatsHandler(w http.ResponseWriter, r *http.Request)
}

type roomStats interface {
	RoomCounters(ctx context.Context) (usecase.RoomCounters, error)
}

type handlers struct {
	logger    *slog.Logger
	roomStats roomStats
}

func NewHandlers(logger *slog.Logger, roomStats roomStats) Handlers {
	return &handlers{
		logger:    logger.With("component", "rest-handlers"),
		roomStats: roomStats,
	}
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

type roomStatsResponse struct {
	Created       map[entity.RoomType]int64 `json:"created"`
	Active        map[entity.RoomType]int64 `json:"active"`
	QueuedTickets int64                     `json:"queued_tickets"`
}

// RoomStatsHandler reports created and live rooms per room type.
func (that *handlers) RoomStatsHandler(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "RoomStatsHandler")

	counters, err := that.roomStats.RoomCounters(r.Context())
	if err != nil {
		log.Error("failed to read room counters", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err = json.NewEncoder(w).Encode(roomStatsResponse{
		Created:       counters.Created,
		Active:        counters.Active,
		QueuedTickets: counters.Queued,
	}); err != nil {
		log.Error("failed to write room counters", "error", err)
	}
}
