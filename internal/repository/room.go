package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrSelfJoin      = errors.New("user already occupies the room")
	ErrJoinCodeTaken = errors.New("join code already in use")
)

// regularScanLimit bounds how many waiting rooms one join attempt inspects.
const regularScanLimit = 50

type RoomRepository interface {
	CountActive(ctx context.Context, roomType entity.RoomType) (int64, error)
	CreatePrivate(ctx context.Context, userID, code string, ttl time.Duration, now time.Time) (*entity.Room, error)
	CreateWaitingRegular(ctx context.Context, userID, ticketID string, ttl time.Duration, now time.Time) (*entity.Room, error)
	TryJoinPrivate(ctx context.Context, userID, code string, now time.Time) (*entity.Room, error)
	TryJoinWaitingRegular(ctx context.Context, userID, ticketID string, now time.Time) (*entity.Room, error)
	GetByID(ctx context.Context, roomID string) (*entity.Room, error)
	Delete(ctx context.Context, roomID string) error
	ListExpiredHalfFull(ctx context.Context, now time.Time, limit int) ([]*entity.Room, error)
}

type dbRoom struct {
	client *redis.Client
}

// NewRoomRepository stores rooms as hashes. Every room id is in the active set of its type, and
// waiting rooms are indexed by expiry so joins and sweeps never scan the keyspace.
func NewRoomRepository(client *redis.Client) RoomRepository {
	return &dbRoom{
		client: client,
	}
}

const roomKeyPrefix = "room:"

func roomKey(roomID string) string {
	return roomKeyPrefix + roomID
}

func roomCodeKey(code string) string {
	return "room:code:" + code
}

func activeRoomsKey(roomType entity.RoomType) string {
	return "rooms:" + string(roomType)
}

func waitingRoomsKey(roomType entity.RoomType) string {
	return "rooms:" + string(roomType) + ":waiting"
}

func unixMilli(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// createRoomScript writes the room hash and its indexes. With a fourth key it first claims the join code.
var createRoomScript = redis.NewScript(`
if #KEYS == 4 and redis.call('SETNX', KEYS[4], ARGV[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// joinRegularScript takes the first unexpired waiting regular room held by someone else.
// Both join scripts build room keys from ids read inside the script, with roomKeyPrefix passed as the last
// ARGV, instead of declaring them in KEYS. They need a single-node Redis; Redis Cluster would reject them.
var joinRegularScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '(' .. ARGV[2], '+inf', 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
	local key = ARGV[5] .. id
	local room = redis.call('HMGET', key, 'status', 'player1', 'player2', 'type')
	if room[1] == 'waiting' and room[4] == 'regular' and room[2] and room[2] ~= ARGV[1] and not room[3] then
		redis.call('HSET', key, 'status', 'matched', 'player2', ARGV[1], 'player2_joined_at', ARGV[2], 'player2_ticket', ARGV[4])
		redis.call('ZREM', KEYS[1], id)
		return id
	end
end
return false
`)

// joinPrivateScript joins the waiting private room owning the code. It answers {'ok', id},
// {'self'} or {'not_found'}.
var joinPrivateScript = redis.NewScript(`
local id = redis.call('GET', KEYS[1])
if not id then
	return {'not_found'}
end
local key = ARGV[3] .. id
local room = redis.call('HMGET', key, 'status', 'type', 'expires_at', 'player1', 'player2')
if room[1] ~= 'waiting' or room[2] ~= 'private' or tonumber(room[3]) <= tonumber(ARGV[2]) then
	return {'not_found'}
end
if room[4] == ARGV[1] then
	return {'self'}
end
if room[5] then
	return {'not_found'}
end
redis.call('HSET', key, 'status', 'matched', 'player2', ARGV[1], 'player2_joined_at', ARGV[2])
redis.call('ZREM', KEYS[2], id)
return {'ok', id}
`)

func (that *dbRoom) CountActive(ctx context.Context, roomType entity.RoomType) (int64, error) {
	count, err := that.client.SCard(ctx, activeRoomsKey(roomType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count %s rooms: %w", roomType, err)
	}

	return count, nil
}

func (that *dbRoom) CreatePrivate(ctx context.Context, userID, code string, ttl time.Duration, now time.Time) (*entity.Room, error) {
	room := newWaitingRoom(entity.RoomPrivate, userID, "", ttl, now)
	room.JoinCode = code

	if err := that.create(ctx, room); err != nil {
		return nil, err
	}

	return room, nil
}

func (that *dbRoom) CreateWaitingRegular(ctx context.Context, userID, ticketID string, ttl time.Duration, now time.Time) (*entity.Room, error) {
	room := newWaitingRoom(entity.RoomRegular, userID, ticketID, ttl, now)

	if err := that.create(ctx, room); err != nil {
		return nil, err
	}

	return room, nil
}

func newWaitingRoom(roomType entity.RoomType, userID, ticketID string, ttl time.Duration, now time.Time) *entity.Room {
	now = now.Truncate(time.Millisecond).UTC()

	return &entity.Room{
		ID:        pkg.GenerateID(),
		Type:      roomType,
		Status:    entity.RoomWaiting,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Players:   []entity.RoomPlayer{{UserID: userID, TicketID: ticketID, JoinedAt: now}},
	}
}

func (that *dbRoom) create(ctx context.Context, room *entity.Room) error {
	keys := []string{roomKey(room.ID), activeRoomsKey(room.Type), waitingRoomsKey(room.Type)}
	if room.JoinCode != "" {
		keys = append(keys, roomCodeKey(room.JoinCode))
	}

	args := []any{
		room.ID, room.ExpiresAt.UnixMilli(),
		"id", room.ID,
		"type", string(room.Type),
		"status", string(room.Status),
		"code", room.JoinCode,
		"created_at", unixMilli(room.CreatedAt),
		"expires_at", unixMilli(room.ExpiresAt),
		"player1", room.Players[0].UserID,
		"player1_joined_at", unixMilli(room.Players[0].JoinedAt),
		"player1_ticket", room.Players[0].TicketID,
	}

	created, err := createRoomScript.Run(ctx, that.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}

	if created == 0 {
		return ErrJoinCodeTaken
	}

	return nil
}

func (that *dbRoom) TryJoinPrivate(ctx context.Context, userID, code string, now time.Time) (*entity.Room, error) {
	keys := []string{roomCodeKey(code), waitingRoomsKey(entity.RoomPrivate)}

	result, err := joinPrivateScript.Run(ctx, that.client, keys, userID, now.UnixMilli(), roomKeyPrefix).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to join private room: %w", err)
	}

	switch result[0] {
	case "ok":
		return that.GetByID(ctx, result[1])
	case "self":
		return nil, ErrSelfJoin
	default:
		return nil, ErrRoomNotFound
	}
}

func (that *dbRoom) TryJoinWaitingRegular(ctx context.Context, userID, ticketID string, now time.Time) (*entity.Room, error) {
	keys := []string{waitingRoomsKey(entity.RoomRegular)}

	roomID, err := joinRegularScript.Run(ctx, that.client, keys, userID, now.UnixMilli(), regularScanLimit, ticketID, roomKeyPrefix).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrRoomNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to join regular room: %w", err)
	}

	return that.GetByID(ctx, roomID)
}

func (that *dbRoom) GetByID(ctx context.Context, roomID string) (*entity.Room, error) {
	fields, err := that.client.HGetAll(ctx, roomKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	if len(fields) == 0 {
		return nil, ErrRoomNotFound
	}

	room, err := roomFromHash(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to parse room %s: %w", roomID, err)
	}

	return room, nil
}

func (that *dbRoom) Delete(ctx context.Context, roomID string) error {
	fields, err := that.client.HMGet(ctx, roomKey(roomID), "type", "code").Result()
	if err != nil {
		return fmt.Errorf("failed to get room for delete: %w", err)
	}

	roomType, _ := fields[0].(string)
	code, _ := fields[1].(string)

	if roomType == "" {
		return ErrRoomNotFound
	}

	_, err = that.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, roomKey(roomID))
		pipe.SRem(ctx, activeRoomsKey(entity.RoomType(roomType)), roomID)
		pipe.ZRem(ctx, waitingRoomsKey(entity.RoomType(roomType)), roomID)

		if code != "" {
			pipe.Del(ctx, roomCodeKey(code))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	return nil
}

func (that *dbRoom) ListExpiredHalfFull(ctx context.Context, now time.Time, limit int) ([]*entity.Room, error) {
	var rooms []*entity.Room

	for _, roomType := range []entity.RoomType{entity.RoomRegular, entity.RoomPrivate} {
		if len(rooms) >= limit {
			break
		}

		ids, err := that.client.ZRangeByScore(ctx, waitingRoomsKey(roomType), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   unixMilli(now),
			Count: int64(limit - len(rooms)),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list expired %s rooms: %w", roomType, err)
		}

		for _, id := range ids {
			room, err := that.GetByID(ctx, id)
			if errors.Is(err, ErrRoomNotFound) {
				continue
			}

			if err != nil {
				return nil, err
			}

			if room.IsHalfFullExpired(now) {
				rooms = append(rooms, room)
			}
		}
	}

	return rooms, nil
}

func roomFromHash(fields map[string]string) (*entity.Room, error) {
	createdAt, err := parseUnixMilli(fields["created_at"])
	if err != nil {
		return nil, err
	}

	expiresAt, err := parseUnixMilli(fields["expires_at"])
	if err != nil {
		return nil, err
	}

	room := &entity.Room{
		ID:        fields["id"],
		Type:      entity.RoomType(fields["type"]),
		Status:    entity.RoomStatus(fields["status"]),
		JoinCode:  fields["code"],
		CreatedAt: createdAt,
		ExpiresAt: expiresAt,
	}

	for _, slot := range []string{"player1", "player2"} {
		userID := fields[slot]
		if userID == "" {
			continue
		}

		joinedAt, err := parseUnixMilli(fields[slot+"_joined_at"])
		if err != nil {
			return nil, err
		}

		room.Players = append(room.Players, entity.RoomPlayer{
			UserID:   userID,
			TicketID: fields[slot+"_ticket"],
			JoinedAt: joinedAt,
		})
	}

	return room, nil
}

func parseUnixMilli(value string) (time.Time, error) {
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", value, err)
	}

	return time.UnixMilli(ms).UTC(), nil
}
