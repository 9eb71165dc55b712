package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
)

var ErrTicketNotFound = errors.New("ticket not found")

const queuedTicketsKey = "tickets:queued"

type TicketRepository interface {
	CountQueued(ctx context.Context) (int64, error)
	CreateQueued(ctx context.Context, userID string, ttl time.Duration, now time.Time) (*entity.Ticket, error)
	TryMarkMatched(ctx context.Context, ticketID, roomID, gameID string) (bool, error)
	TryCancel(ctx context.Context, ticketID, userID string) (bool, error)
	TryMarkExpired(ctx context.Context, ticketID string) (bool, error)
	ListExpiredQueued(ctx context.Context, now time.Time, limit int) ([]*entity.Ticket, error)
	GetByID(ctx context.Context, ticketID string) (*entity.Ticket, error)
}

type dbTicket struct {
	client *redis.Client
}

// NewTicketRepository stores tickets as hashes; queued tickets are indexed by expiry.
func NewTicketRepository(client *redis.Client) TicketRepository {
	return &dbTicket{
		client: client,
	}
}

func ticketKey(ticketID string) string {
	return "ticket:" + ticketID
}

// transitionTicketScript moves a queued ticket to ARGV[2]. A non-empty ARGV[3] must own the ticket.
// Remaining arguments are field/value pairs written with the transition.
var transitionTicketScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') ~= 'queued' then
	return 0
end
if ARGV[3] ~= '' and redis.call('HGET', KEYS[1], 'user_id') ~= ARGV[3] then
	return 0
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
if #ARGV > 3 then
	redis.call('HSET', KEYS[1], unpack(ARGV, 4))
end
redis.call('ZREM', KEYS[2], ARGV[1])
return 1
`)

func (that *dbTicket) CountQueued(ctx context.Context) (int64, error) {
	count, err := that.client.ZCard(ctx, queuedTicketsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count queued tickets: %w", err)
	}

	return count, nil
}

func (that *dbTicket) CreateQueued(ctx context.Context, userID string, ttl time.Duration, now time.Time) (*entity.Ticket, error) {
	now = now.Truncate(time.Millisecond).UTC()

	ticket := &entity.Ticket{
		ID:        pkg.GenerateID(),
		UserID:    userID,
		Status:    entity.TicketQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}

	_, err := that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ticketKey(ticket.ID),
			"id", ticket.ID,
			"user_id", ticket.UserID,
			"status", string(ticket.Status),
			"created_at", unixMilli(ticket.CreatedAt),
			"expires_at", unixMilli(ticket.ExpiresAt),
		)
		pipe.ZAdd(ctx, queuedTicketsKey, redis.Z{Score: float64(ticket.ExpiresAt.UnixMilli()), Member: ticket.ID})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ticket: %w", err)
	}

	return ticket, nil
}

func (that *dbTicket) TryMarkMatched(ctx context.Context, ticketID, roomID, gameID string) (bool, error) {
	return that.transition(ctx, ticketID, entity.TicketMatched, "", "room_id", roomID, "game_id", gameID)
}

func (that *dbTicket) TryCancel(ctx context.Context, ticketID, userID string) (bool, error) {
	return that.transition(ctx, ticketID, entity.TicketCancelled, userID)
}

func (that *dbTicket) TryMarkExpired(ctx context.Context, ticketID string) (bool, error) {
	return that.transition(ctx, ticketID, entity.TicketExpired, "")
}

func (that *dbTicket) transition(ctx context.Context, ticketID string, to entity.TicketStatus, owner string, fields ...any) (bool, error) {
	args := append([]any{ticketID, string(to), owner}, fields...)

	done, err := transitionTicketScript.Run(ctx, that.client, []string{ticketKey(ticketID), queuedTicketsKey}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("failed to mark ticket %s: %w", to, err)
	}

	return done == 1, nil
}

func (that *dbTicket) ListExpiredQueued(ctx context.Context, now time.Time, limit int) ([]*entity.Ticket, error) {
	ids, err := that.client.ZRangeByScore(ctx, queuedTicketsKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   unixMilli(now),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list expired tickets: %w", err)
	}

	tickets := make([]*entity.Ticket, 0, len(ids))
	for _, id := range ids {
		ticket, err := that.GetByID(ctx, id)
		if errors.Is(err, ErrTicketNotFound) {
			continue
		}

		if err != nil {
			return nil, err
		}

		if ticket.IsExpired(now) {
			tickets = append(tickets, ticket)
		}
	}

	return tickets, nil
}

func (that *dbTicket) GetByID(ctx context.Context, ticketID string) (*entity.Ticket, error) {
	fields, err := that.client.HGetAll(ctx, ticketKey(ticketID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	if len(fields) == 0 {
		return nil, ErrTicketNotFound
	}

	createdAt, err := parseUnixMilli(fields["created_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticket %s: %w", ticketID, err)
	}

	expiresAt, err := parseUnixMilli(fields["expires_at"])
	if err != nil {
		return nil, fmt.Errorf("failed to parse ticket %s: %w", ticketID, err)
	}

	return &entity.Ticket{
		ID:            fields["id"],
		UserID:        fields["user_id"],
		Status:        entity.TicketStatus(fields["status"]),
		CreatedAt:     createdAt,
		ExpiresAt:     expiresAt,
		MatchedRoomID: fields["room_id"],
		GameID:        fields["game_id"],
	}, nil
}
