package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/metrics"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository"
)

const (
	// maxJoinAttempts bounds how many abandoned waiting rooms one queue request discards before creating its own.
	maxJoinAttempts = 3
	// maxJoinCodeAttempts bounds retries on a join code collision.
	maxJoinCodeAttempts = 5
)

type roomStore interface {
	CountActive(ctx context.Context, roomType entity.RoomType) (int64, error)
	CreatePrivate(ctx context.Context, userID, code string, ttl time.Duration, now time.Time) (*entity.Room, error)
	CreateWaitingRegular(ctx context.Context, userID, ticketID string, ttl time.Duration, now time.Time) (*entity.Room, error)
	TryJoinPrivate(ctx context.Context, userID, code string, now time.Time) (*entity.Room, error)
	TryJoinWaitingRegular(ctx context.Context, userID, ticketID string, now time.Time) (*entity.Room, error)
	Delete(ctx context.Context, roomID string) error
}

type ticketStore interface {
	CountQueued(ctx context.Context) (int64, error)
	CreateQueued(ctx context.Context, userID string, ttl time.Duration, now time.Time) (*entity.Ticket, error)
	TryMarkMatched(ctx context.Context, ticketID, roomID, gameID string) (bool, error)
	TryCancel(ctx context.Context, ticketID, userID string) (bool, error)
	GetByID(ctx context.Context, ticketID string) (*entity.Ticket, error)
}

type roomMetricsStore interface {
	IncrementCreated(ctx context.Context, roomType entity.RoomType) error
	CreatedCounters(ctx context.Context) (map[entity.RoomType]int64, error)
}

type gameStarter interface {
	CheckCapacity() error
	StartGameForPlayers(ctx context.Context, playerXID, playerOID string) (GameView, error)
}

type MatchmakingConfig struct {
	RoomTTL         time.Duration
	MaxRegularRooms int
	MaxPrivateRooms int
}

// QueueResult describes a queue ticket. GameID is set when the request was matched right away.
type QueueResult struct {
	TicketID  string
	ExpiresAt time.Time
	RoomID    string
	GameID    string
}

func (that QueueResult) Matched() bool {
	return that.GameID != ""
}

type PrivateRoomResult struct {
	RoomID    string
	JoinCode  string
	ExpiresAt time.Time
}

type MatchResult struct {
	GameID     string
	RoomID     string
	OpponentID string
}

// RoomCounters holds the all-time created rooms and the rooms alive right now, per room type, plus the
// number of tickets waiting in the queue.
type RoomCounters struct {
	Created map[entity.RoomType]int64
	Active  map[entity.RoomType]int64
	Queued  int64
}

// Matchmaking pairs players through regular rooms filled from a queue and private rooms joined by code.
// A room lives until its game starts or it expires.
type Matchmaking struct {
	logger *slog.Logger

	rooms       roomStore
	tickets     ticketStore
	roomMetrics roomMetricsStore
	games       gameStarter
	notifier    Notifier
	metrics     *metrics.Metrics

	conf MatchmakingConfig

	now func() time.Time
}

func NewMatchmaking(
	logger *slog.Logger,
	rooms roomStore,
	tickets ticketStore,
	roomMetrics roomMetricsStore,
	games gameStarter,
	notifier Notifier,
	metrics *metrics.Metrics,
	conf MatchmakingConfig,
) *Matchmaking {
	return &Matchmaking{
		logger: logger.With("component", "matchmaking"),

		rooms:       rooms,
		tickets:     tickets,
		roomMetrics: roomMetrics,
		games:       games,
		notifier:    notifier,
		metrics:     metrics,

		conf: conf,

		now: func() time.Time { return time.Now().UTC() },
	}
}

// Queue puts the user in the regular queue and matches them with a waiting player when there is one.
func (that *Matchmaking) Queue(ctx context.Context, userID string) (QueueResult, error) {
	log := that.logger.With("method", "Queue", "user_id", userID)

	if err := that.admit(ctx, "queue", entity.RoomRegular, that.conf.MaxRegularRooms); err != nil {
		return QueueResult{}, err
	}

	now := that.now()

	ticket, err := that.tickets.CreateQueued(ctx, userID, that.conf.RoomTTL, now)
	if err != nil {
		return QueueResult{}, that.internal(log, "failed to create ticket", err)
	}

	that.notify("queue_joined", that.notifier.QueueJoined(ctx, entity.QueueJoinedNotification{
		TicketID:  ticket.ID,
		UserID:    userID,
		ExpiresAt: ticket.ExpiresAt,
	}))

	result := QueueResult{TicketID: ticket.ID, ExpiresAt: ticket.ExpiresAt}

	for range maxJoinAttempts {
		room, err := that.rooms.TryJoinWaitingRegular(ctx, userID, ticket.ID, now)
		if errors.Is(err, repository.ErrRoomNotFound) {
			break
		}

		if err != nil {
			return QueueResult{}, that.internal(log, "failed to join waiting room", err)
		}

		queued, err := that.ownerQueued(ctx, room)
		if err != nil {
			that.discard(ctx, room.ID)

			return QueueResult{}, that.internal(log, "failed to check room owner ticket", err)
		}

		if !queued {
			log.Info("discarding room of a player who left the queue", "room_id", room.ID)
			that.discard(ctx, room.ID)

			continue
		}

		match, err := that.startMatch(ctx, room)
		if err != nil {
			return QueueResult{}, err
		}

		result.RoomID = match.RoomID
		result.GameID = match.GameID

		return result, nil
	}

	room, err := that.rooms.CreateWaitingRegular(ctx, userID, ticket.ID, that.conf.RoomTTL, now)
	if err != nil {
		return QueueResult{}, that.internal(log, "failed to create waiting room", err)
	}

	that.roomCreated(ctx, entity.RoomRegular)

	result.RoomID = room.ID

	return result, nil
}

// CancelQueue withdraws a queued ticket owned by the user.
func (that *Matchmaking) CancelQueue(ctx context.Context, userID, ticketID string) error {
	log := that.logger.With("method", "CancelQueue", "user_id", userID, "ticket_id", ticketID)

	cancelled, err := that.tickets.TryCancel(ctx, ticketID, userID)
	if err != nil {
		return that.internal(log, "failed to cancel ticket", err)
	}

	if !cancelled {
		that.reject("cancel_queue", apperror.ErrTicketNotFound)

		return apperror.ErrTicketNotFound
	}

	log.Info("ticket cancelled")

	return nil
}

// CreatePrivateRoom opens a room another player can join with the returned code.
func (that *Matchmaking) CreatePrivateRoom(ctx context.Context, userID string) (PrivateRoomResult, error) {
	log := that.logger.With("method", "CreatePrivateRoom", "user_id", userID)

	if err := that.admit(ctx, "create_private_room", entity.RoomPrivate, that.conf.MaxPrivateRooms); err != nil {
		return PrivateRoomResult{}, err
	}

	var room *entity.Room
	for attempt := 1; ; attempt++ {
		code, err := pkg.GenerateJoinCode()
		if err != nil {
			return PrivateRoomResult{}, that.internal(log, "failed to generate join code", err)
		}

		room, err = that.rooms.CreatePrivate(ctx, userID, code, that.conf.RoomTTL, that.now())
		if err == nil {
			break
		}

		if !errors.Is(err, repository.ErrJoinCodeTaken) || attempt == maxJoinCodeAttempts {
			return PrivateRoomResult{}, that.internal(log, "failed to create private room", err)
		}
	}

	that.roomCreated(ctx, entity.RoomPrivate)

	that.notify("private_room_created", that.notifier.PrivateRoomCreated(ctx, entity.PrivateRoomCreatedNotification{
		RoomID:    room.ID,
		UserID:    userID,
		JoinCode:  room.JoinCode,
		ExpiresAt: room.ExpiresAt,
	}))

	log.Info("private room created", "room_id", room.ID)

	return PrivateRoomResult{
		RoomID:    room.ID,
		JoinCode:  room.JoinCode,
		ExpiresAt: room.ExpiresAt,
	}, nil
}

// JoinPrivateRoom joins the waiting private room owning code and starts the game.
func (that *Matchmaking) JoinPrivateRoom(ctx context.Context, userID, code string) (MatchResult, error) {
	log := that.logger.With("method", "JoinPrivateRoom", "user_id", userID)

	if err := that.games.CheckCapacity(); err != nil {
		that.reject("join_private_room", err)

		return MatchResult{}, err
	}

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		that.reject("join_private_room", apperror.ErrJoinCodeRequired)

		return MatchResult{}, apperror.ErrJoinCodeRequired
	}

	room, err := that.rooms.TryJoinPrivate(ctx, userID, code, that.now())
	switch {
	case errors.Is(err, repository.ErrSelfJoin):
		that.reject("join_private_room", apperror.ErrSelfJoin)

		return MatchResult{}, apperror.ErrSelfJoin
	case errors.Is(err, repository.ErrRoomNotFound):
		that.reject("join_private_room", apperror.ErrRoomNotFound)

		return MatchResult{}, apperror.ErrRoomNotFound
	case err != nil:
		return MatchResult{}, that.internal(log, "failed to join private room", err)
	}

	if !room.IsFull() {
		that.reject("join_private_room", apperror.ErrRoomNotFull)

		return MatchResult{}, apperror.ErrRoomNotFull
	}

	match, err := that.startMatch(ctx, room)
	if err != nil {
		return MatchResult{}, err
	}

	match.OpponentID = room.Opponent(userID)

	return match, nil
}

func (that *Matchmaking) RoomCounters(ctx context.Context) (RoomCounters, error) {
	log := that.logger.With("method", "RoomCounters")

	created, err := that.roomMetrics.CreatedCounters(ctx)
	if err != nil {
		return RoomCounters{}, that.internal(log, "failed to read created counters", err)
	}

	active := make(map[entity.RoomType]int64, 2)
	for _, roomType := range []entity.RoomType{entity.RoomRegular, entity.RoomPrivate} {
		count, err := that.rooms.CountActive(ctx, roomType)
		if err != nil {
			return RoomCounters{}, that.internal(log, "failed to count active rooms", err)
		}

		active[roomType] = count
	}

	queued, err := that.tickets.CountQueued(ctx)
	if err != nil {
		return RoomCounters{}, that.internal(log, "failed to count queued tickets", err)
	}

	return RoomCounters{Created: created, Active: active, Queued: queued}, nil
}

// admit applies game backpressure and the room cap of roomType.
func (that *Matchmaking) admit(ctx context.Context, operation string, roomType entity.RoomType, maxRooms int) error {
	if err := that.games.CheckCapacity(); err != nil {
		that.reject(operation, err)

		return err
	}

	active, err := that.rooms.CountActive(ctx, roomType)
	if err != nil {
		return that.internal(that.logger.With("method", operation), "failed to count active rooms", err)
	}

	if active >= int64(maxRooms) {
		that.reject(operation, apperror.ErrRoomsCapReached)

		return apperror.ErrRoomsCapReached
	}

	return nil
}

// startMatch starts the game of a full room, settles the queue tickets, tells both players and
// removes the room. The first occupant plays X.
func (that *Matchmaking) startMatch(ctx context.Context, room *entity.Room) (MatchResult, error) {
	log := that.logger.With("method", "startMatch", "room_id", room.ID)

	playerX, playerO := room.Players[0], room.Players[1]

	game, err := that.games.StartGameForPlayers(ctx, playerX.UserID, playerO.UserID)
	if err != nil {
		log.Warn("failed to start game after match", "error", err)
		that.discard(ctx, room.ID)

		if apperror.KindOf(err) == apperror.KindInternal {
			return MatchResult{}, fmt.Errorf("%w: %w", apperror.ErrInternal, err)
		}

		return MatchResult{}, err
	}

	for _, player := range room.Players {
		if player.TicketID == "" {
			continue
		}

		if _, err = that.tickets.TryMarkMatched(ctx, player.TicketID, room.ID, game.ID); err != nil {
			log.Error("failed to mark ticket matched", "ticket_id", player.TicketID, "error", err)
		}
	}

	that.notify("match_found", that.notifier.MatchFound(ctx, entity.MatchFoundNotification{
		GameID:     game.ID,
		RoomID:     room.ID,
		UserID:     playerX.UserID,
		OpponentID: playerO.UserID,
		Mark:       entity.PlayerX,
	}))
	that.notify("match_found", that.notifier.MatchFound(ctx, entity.MatchFoundNotification{
		GameID:     game.ID,
		RoomID:     room.ID,
		UserID:     playerO.UserID,
		OpponentID: playerX.UserID,
		Mark:       entity.PlayerO,
	}))

	that.discard(ctx, room.ID)
	that.metrics.Matches.WithLabelValues(string(room.Type)).Inc()

	log.Info("match started", "game_id", game.ID, "player_x", playerX.UserID, "player_o", playerO.UserID)

	return MatchResult{GameID: game.ID, RoomID: room.ID}, nil
}

// ownerQueued reports whether the first occupant of a regular room is still waiting in the queue.
func (that *Matchmaking) ownerQueued(ctx context.Context, room *entity.Room) (bool, error) {
	ticketID := room.Players[0].TicketID
	if ticketID == "" {
		return true, nil
	}

	ticket, err := that.tickets.GetByID(ctx, ticketID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return false, nil
	}

	if err != nil {
		return false, err
	}

	return !ticket.IsTerminal(), nil
}

func (that *Matchmaking) roomCreated(ctx context.Context, roomType entity.RoomType) {
	if err := that.roomMetrics.IncrementCreated(ctx, roomType); err != nil {
		that.logger.Warn("failed to count created room", "type", roomType, "error", err)
	}

	that.metrics.RoomsCreated.WithLabelValues(string(roomType)).Inc()
}

func (that *Matchmaking) discard(ctx context.Context, roomID string) {
	err := that.rooms.Delete(context.WithoutCancel(ctx), roomID)
	if err != nil && !errors.Is(err, repository.ErrRoomNotFound) {
		that.logger.Error("failed to delete room", "room_id", roomID, "error", err)
	}
}

func (that *Matchmaking) notify(kind string, err error) {
	if err == nil {
		return
	}

	that.logger.Warn("failed to notify", "kind", kind, "error", err)
	that.metrics.NotifyFailures.WithLabelValues(kind).Inc()
}

func (that *Matchmaking) reject(operation string, err error) {
	that.metrics.Rejections.WithLabelValues(operation, apperror.ReasonOf(err)).Inc()
}

func (that *Matchmaking) internal(log *slog.Logger, msg string, err error) error {
	log.Error(msg, "error", err)

	return fmt.Errorf("%w: %s: %w", apperror.ErrInternal, msg, err)
}
