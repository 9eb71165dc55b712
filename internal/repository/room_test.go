package repository

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/testing/suite"
)

const roomTTL = 5 * time.Minute

func TestRoomRepository_Regular(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)
	now := time.Now().UTC()

	t.Run("No waiting room", func(t *testing.T) {
		_, err := roomRepo.TryJoinWaitingRegular(ctx, "alice", "ticket-alice", now)
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("Create then join", func(t *testing.T) {
		// Given: alice waits in a regular room
		created, err := roomRepo.CreateWaitingRegular(ctx, "alice", "ticket-alice", roomTTL, now)
		require.NoError(t, err)

		count, err := roomRepo.CountActive(ctx, entity.RoomRegular)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// When: alice tries to join a room
		_, err = roomRepo.TryJoinWaitingRegular(ctx, "alice", "ticket-alice", now)

		// Then: her own room is not offered
		require.ErrorIs(t, err, ErrRoomNotFound)

		// When: bob joins
		room, err := roomRepo.TryJoinWaitingRegular(ctx, "bob", "ticket-bob", now)

		// Then: the room is matched with alice first
		require.NoError(t, err)
		assert.Equal(t, created.ID, room.ID)
		assert.Equal(t, entity.RoomMatched, room.Status)
		assert.Equal(t, "alice", room.Owner())
		assert.Equal(t, "bob", room.Opponent("alice"))
		assert.Equal(t, "ticket-alice", room.Players[0].TicketID)
		assert.Equal(t, "ticket-bob", room.Players[1].TicketID)
		assert.True(t, created.CreatedAt.Equal(room.CreatedAt))

		player2, err := st.Storage.HGet(ctx, roomKey(room.ID), "player2").Result()
		require.NoError(t, err)
		assert.Equal(t, "bob", player2)

		// And: carol finds nothing
		_, err = roomRepo.TryJoinWaitingRegular(ctx, "carol", "ticket-carol", now)
		require.ErrorIs(t, err, ErrRoomNotFound)

		// When: the matched room is deleted
		require.NoError(t, roomRepo.Delete(ctx, room.ID))

		// Then: it no longer counts
		count, err = roomRepo.CountActive(ctx, entity.RoomRegular)
		require.NoError(t, err)
		assert.Zero(t, count)

		_, err = roomRepo.GetByID(ctx, room.ID)
		require.ErrorIs(t, err, ErrRoomNotFound)
		require.ErrorIs(t, roomRepo.Delete(ctx, room.ID), ErrRoomNotFound)
	})

	t.Run("Expired room is not joinable", func(t *testing.T) {
		room, err := roomRepo.CreateWaitingRegular(ctx, "dave", "ticket-dave", roomTTL, now)
		require.NoError(t, err)

		_, err = roomRepo.TryJoinWaitingRegular(ctx, "erin", "ticket-erin", now.Add(roomTTL))
		require.ErrorIs(t, err, ErrRoomNotFound)

		require.NoError(t, roomRepo.Delete(ctx, room.ID))
	})

	t.Run("Concurrent joiners, one winner", func(t *testing.T) {
		// Given: one waiting room
		room, err := roomRepo.CreateWaitingRegular(ctx, "owner", "ticket-owner", roomTTL, now)
		require.NoError(t, err)

		// When: ten users race for it
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			winners []string
		)

		for i := range 10 {
			wg.Add(1)

			go func(userID string) {
				defer wg.Done()

				joined, err := roomRepo.TryJoinWaitingRegular(ctx, userID, "ticket-"+userID, now)
				if err == nil {
					mu.Lock()
					winners = append(winners, joined.Opponent("owner"))
					mu.Unlock()
				}
			}(string(rune('a' + i)))
		}

		wg.Wait()

		// Then: exactly one joined
		require.Len(t, winners, 1)
		require.NoError(t, roomRepo.Delete(ctx, room.ID))
	})
}

func TestRoomRepository_Private(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)
	now := time.Now().UTC()

	room, err := roomRepo.CreatePrivate(ctx, "alice", "ABCDEFGHJK", roomTTL, now)
	require.NoError(t, err)

	t.Run("Code is unique", func(t *testing.T) {
		_, err := roomRepo.CreatePrivate(ctx, "bob", "ABCDEFGHJK", roomTTL, now)
		require.ErrorIs(t, err, ErrJoinCodeTaken)

		count, err := roomRepo.CountActive(ctx, entity.RoomPrivate)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("Private rooms are not offered to the queue", func(t *testing.T) {
		_, err := roomRepo.TryJoinWaitingRegular(ctx, "bob", "ticket-bob", now)
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("Self join", func(t *testing.T) {
		_, err := roomRepo.TryJoinPrivate(ctx, "alice", "ABCDEFGHJK", now)
		require.ErrorIs(t, err, ErrSelfJoin)
	})

	t.Run("Unknown code", func(t *testing.T) {
		_, err := roomRepo.TryJoinPrivate(ctx, "bob", "ZZZZZZZZZZ", now)
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("Join", func(t *testing.T) {
		joined, err := roomRepo.TryJoinPrivate(ctx, "bob", "ABCDEFGHJK", now)

		require.NoError(t, err)
		assert.Equal(t, room.ID, joined.ID)
		assert.True(t, joined.IsFull())
		assert.Equal(t, "ABCDEFGHJK", joined.JoinCode)

		status, err := st.Storage.HGet(ctx, roomKey(room.ID), "status").Result()
		require.NoError(t, err)
		assert.Equal(t, "matched", status)

		// And: a third user can't join the full room
		_, err = roomRepo.TryJoinPrivate(ctx, "carol", "ABCDEFGHJK", now)
		require.ErrorIs(t, err, ErrRoomNotFound)
	})

	t.Run("Delete frees the code", func(t *testing.T) {
		require.NoError(t, roomRepo.Delete(ctx, room.ID))

		_, err := roomRepo.CreatePrivate(ctx, "bob", "ABCDEFGHJK", roomTTL, now)
		require.NoError(t, err)
	})
}

func TestRoomRepository_ListExpiredHalfFull(t *testing.T) {
	ctx, st := suite.New(t)

	roomRepo := NewRoomRepository(st.Storage)
	now := time.Now().UTC()

	// Given: two expired rooms, one fresh room and one expired but matched room
	expiredRegular, err := roomRepo.CreateWaitingRegular(ctx, "alice", "ticket-alice", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)

	expiredPrivate, err := roomRepo.CreatePrivate(ctx, "bob", "CODE234567", time.Minute, now.Add(-time.Hour))
	require.NoError(t, err)

	_, err = roomRepo.CreateWaitingRegular(ctx, "carol", "ticket-carol", roomTTL, now)
	require.NoError(t, err)

	matched, err := roomRepo.CreatePrivate(ctx, "dave", "CODE765432", time.Minute, now.Add(-30*time.Second))
	require.NoError(t, err)
	_, err = roomRepo.TryJoinPrivate(ctx, "erin", "CODE765432", now.Add(-30*time.Second))
	require.NoError(t, err)

	t.Run("Lists only half full expired rooms", func(t *testing.T) {
		rooms, err := roomRepo.ListExpiredHalfFull(ctx, now, 10)
		require.NoError(t, err)

		ids := make([]string, 0, len(rooms))
		for _, room := range rooms {
			ids = append(ids, room.ID)
		}

		assert.ElementsMatch(t, []string{expiredRegular.ID, expiredPrivate.ID}, ids)
		assert.NotContains(t, ids, matched.ID)
	})

	t.Run("Respects the limit", func(t *testing.T) {
		rooms, err := roomRepo.ListExpiredHalfFull(ctx, now, 1)
		require.NoError(t, err)
		assert.Len(t, rooms, 1)
	})
}

func TestRoomMetricsRepository(t *testing.T) {
	ctx, st := suite.New(t)

	metricsRepo := NewRoomMetricsRepository(st.Storage)

	// Given: no room was ever created
	counters, err := metricsRepo.CreatedCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[entity.RoomType]int64{entity.RoomRegular: 0, entity.RoomPrivate: 0}, counters)

	// When: three regular and one private rooms are counted
	for range 3 {
		require.NoError(t, metricsRepo.IncrementCreated(ctx, entity.RoomRegular))
	}
	require.NoError(t, metricsRepo.IncrementCreated(ctx, entity.RoomPrivate))

	// Then: the counters reflect it
	counters, err = metricsRepo.CreatedCounters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counters[entity.RoomRegular])
	assert.Equal(t, int64(1), counters[entity.RoomPrivate])
}
