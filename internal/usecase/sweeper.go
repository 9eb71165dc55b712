package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/metrics"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository"
)

const (
	DefaultSweepBatchSize = 200
	DefaultSweepInterval  = 5 * time.Second
)

type expiredTicketStore interface {
	ListExpiredQueued(ctx context.Context, now time.Time, limit int) ([]*entity.Ticket, error)
	TryMarkExpired(ctx context.Context, ticketID string) (bool, error)
}

type expiredRoomStore interface {
	ListExpiredHalfFull(ctx context.Context, now time.Time, limit int) ([]*entity.Room, error)
	Delete(ctx context.Context, roomID string) error
}

type SweeperConfig struct {
	BatchSize int
	Interval  time.Duration
}

type SweepResult struct {
	TicketsExpired int
	RoomsExpired   int
}

// ExpirySweeper expires queued tickets and half-full waiting rooms past their TTL.
type ExpirySweeper struct {
	logger *slog.Logger

	tickets  expiredTicketStore
	rooms    expiredRoomStore
	notifier Notifier
	metrics  *metrics.Metrics

	batchSize int
	interval  time.Duration

	now func() time.Time
}

func NewExpirySweeper(
	logger *slog.Logger,
	tickets expiredTicketStore,
	rooms expiredRoomStore,
	notifier Notifier,
	metrics *metrics.Metrics,
	conf SweeperConfig,
) *ExpirySweeper {
	batchSize := conf.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultSweepBatchSize
	}

	interval := conf.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &ExpirySweeper{
		logger: logger.With("component", "expiry-sweeper"),

		tickets:  tickets,
		rooms:    rooms,
		notifier: notifier,
		metrics:  metrics,

		batchSize: batchSize,
		interval:  interval,

		now: func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps every interval until ctx is done.
func (that *ExpirySweeper) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")
	log.Info("sweeper started", "interval", that.interval, "batch_size", that.batchSize)

	ticker := time.NewTicker(that.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper stopped")

			return nil
		case <-ticker.C:
			result, err := that.SweepOnce(ctx, that.now(), that.batchSize)
			if err != nil {
				that.metrics.SweepErrors.Inc()
				log.Error("sweep failed", "error", err)
			}

			if result.TicketsExpired > 0 || result.RoomsExpired > 0 {
				log.Info("sweep done", "tickets_expired", result.TicketsExpired, "rooms_expired", result.RoomsExpired)
			}
		}
	}
}

// SweepOnce expires at most batch tickets and batch rooms. A ticket is announced only by the sweep
// that moved it out of the queue. Failures on single items don't stop the rest of the batch.
func (that *ExpirySweeper) SweepOnce(ctx context.Context, now time.Time, batch int) (SweepResult, error) {
	if batch <= 0 {
		batch = that.batchSize
	}

	var result SweepResult

	ticketsExpired, ticketsErr := that.sweepTickets(ctx, now, batch)
	result.TicketsExpired = ticketsExpired

	roomsExpired, roomsErr := that.sweepRooms(ctx, now, batch)
	result.RoomsExpired = roomsExpired

	that.metrics.TicketsExpired.Add(float64(ticketsExpired))
	that.metrics.RoomsExpired.Add(float64(roomsExpired))

	return result, errors.Join(ticketsErr, roomsErr)
}

func (that *ExpirySweeper) sweepTickets(ctx context.Context, now time.Time, batch int) (int, error) {
	tickets, err := that.tickets.ListExpiredQueued(ctx, now, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired tickets: %w", err)
	}

	var errs []error

	expired := 0
	for _, ticket := range tickets {
		marked, err := that.tickets.TryMarkExpired(ctx, ticket.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to expire ticket %s: %w", ticket.ID, err))
			continue
		}

		if !marked {
			continue
		}

		expired++

		if err = that.notifier.QueueExpired(ctx, entity.QueueExpiredNotification{
			TicketID: ticket.ID,
			UserID:   ticket.UserID,
		}); err != nil {
			that.logger.Warn("failed to notify queue expired", "ticket_id", ticket.ID, "error", err)
			that.metrics.NotifyFailures.WithLabelValues("queue_expired").Inc()
		}
	}

	return expired, errors.Join(errs...)
}

func (that *ExpirySweeper) sweepRooms(ctx context.Context, now time.Time, batch int) (int, error) {
	rooms, err := that.rooms.ListExpiredHalfFull(ctx, now, batch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired rooms: %w", err)
	}

	var errs []error

	expired := 0
	for _, room := range rooms {
		if err = that.notifier.RoomExpired(ctx, entity.RoomExpiredNotification{
			RoomID: room.ID,
			UserID: room.Owner(),
			Type:   room.Type,
		}); err != nil {
			that.logger.Warn("failed to notify room expired", "room_id", room.ID, "error", err)
			that.metrics.NotifyFailures.WithLabelValues("room_expired").Inc()
		}

		err = that.rooms.Delete(ctx, room.ID)
		if errors.Is(err, repository.ErrRoomNotFound) {
			continue
		}

		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete room %s: %w", room.ID, err))
			continue
		}

		expired++
	}

	return expired, errors.Join(errs...)
}
