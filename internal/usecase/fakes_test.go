package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/metrics"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/service"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/testing/fixture"
)

var (
	errRedisDown = errors.New("redis down")
	errNatsDown  = errors.New("nats down")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

// --- Events ---

type fakeEventStore struct {
	mu        sync.Mutex
	events    map[string][]entity.Event
	appendErr error

	hold chan struct{}
	held chan struct{}
}

func newFakeEventStore() *fakeEventStore {
	return &fakeEventStore{events: make(map[string][]entity.Event)}
}

func (that *fakeEventStore) failAppends(err error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.appendErr = err
}

// holdAppends parks every following append until release is called. held receives once per parked append.
func (that *fakeEventStore) holdAppends() (held <-chan struct{}, release func()) {
	that.mu.Lock()
	defer that.mu.Unlock()

	hold := make(chan struct{})
	that.hold = hold
	that.held = make(chan struct{}, 16)

	return that.held, sync.OnceFunc(func() { close(hold) })
}

func (that *fakeEventStore) Append(_ context.Context, gameID string, events []entity.Event) error {
	that.mu.Lock()
	hold, held := that.hold, that.held
	that.mu.Unlock()

	if hold != nil {
		held <- struct{}{}
		<-hold
	}

	that.mu.Lock()
	defer that.mu.Unlock()

	if that.appendErr != nil {
		return that.appendErr
	}

	that.events[gameID] = append(that.events[gameID], events...)

	return nil
}

func (that *fakeEventStore) ReadAll(_ context.Context, gameID string) ([]entity.Event, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return slices.Clone(that.events[gameID]), nil
}

func (that *fakeEventStore) ReadAfterVersion(_ context.Context, gameID string, version int) ([]entity.Event, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var tail []entity.Event
	for _, event := range that.events[gameID] {
		if event.Meta().Version > version {
			tail = append(tail, event)
		}
	}

	return tail, nil
}

func (that *fakeEventStore) DeleteAll(_ context.Context, gameID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.events, gameID)

	return nil
}

func (that *fakeEventStore) count(gameID string) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	return len(that.events[gameID])
}

// --- Snapshots ---

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots map[string]entity.Snapshot
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{snapshots: make(map[string]entity.Snapshot)}
}

func (that *fakeSnapshotRepo) Save(_ context.Context, snapshot entity.Snapshot) (bool, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if current, ok := that.snapshots[snapshot.GameID]; ok && current.Version >= snapshot.Version {
		return false, nil
	}

	that.snapshots[snapshot.GameID] = snapshot

	return true, nil
}

func (that *fakeSnapshotRepo) Latest(_ context.Context, gameID string) (entity.Snapshot, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	snapshot, ok := that.snapshots[gameID]
	if !ok {
		return entity.Snapshot{}, repository.ErrSnapshotNotFound
	}

	return snapshot, nil
}

func (that *fakeSnapshotRepo) LatestVersion(ctx context.Context, gameID string) (int, error) {
	snapshot, err := that.Latest(ctx, gameID)
	if err != nil {
		return 0, err
	}

	return snapshot.Version, nil
}

// --- Rooms ---

type fakeRoomStore struct {
	mu             sync.Mutex
	rooms          map[string]*entity.Room
	codes          map[string]string
	codeCollisions int
}

func newFakeRoomStore() *fakeRoomStore {
	return &fakeRoomStore{
		rooms: make(map[string]*entity.Room),
		codes: make(map[string]string),
	}
}

func cloneRoom(room *entity.Room) *entity.Room {
	clone := *room
	clone.Players = slices.Clone(room.Players)

	return &clone
}

func (that *fakeRoomStore) CountActive(_ context.Context, roomType entity.RoomType) (int64, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var count int64
	for _, room := range that.rooms {
		if room.Type == roomType {
			count++
		}
	}

	return count, nil
}

func (that *fakeRoomStore) create(roomType entity.RoomType, userID, ticketID, code string, ttl time.Duration, now time.Time) *entity.Room {
	room := &entity.Room{
		ID:        pkg.GenerateID(),
		Type:      roomType,
		Status:    entity.RoomWaiting,
		JoinCode:  code,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		Players:   []entity.RoomPlayer{{UserID: userID, TicketID: ticketID, JoinedAt: now}},
	}

	that.rooms[room.ID] = room
	if code != "" {
		that.codes[code] = room.ID
	}

	return cloneRoom(room)
}

func (that *fakeRoomStore) CreatePrivate(_ context.Context, userID, code string, ttl time.Duration, now time.Time) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.codeCollisions > 0 {
		that.codeCollisions--

		return nil, repository.ErrJoinCodeTaken
	}

	if _, ok := that.codes[code]; ok {
		return nil, repository.ErrJoinCodeTaken
	}

	return that.create(entity.RoomPrivate, userID, "", code, ttl, now), nil
}

func (that *fakeRoomStore) CreateWaitingRegular(_ context.Context, userID, ticketID string, ttl time.Duration, now time.Time) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.create(entity.RoomRegular, userID, ticketID, "", ttl, now), nil
}

func (that *fakeRoomStore) TryJoinPrivate(_ context.Context, userID, code string, now time.Time) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[that.codes[code]]
	if !ok || room.Status != entity.RoomWaiting || room.Type != entity.RoomPrivate || !room.ExpiresAt.After(now) {
		return nil, repository.ErrRoomNotFound
	}

	if room.Owner() == userID {
		return nil, repository.ErrSelfJoin
	}

	if room.IsFull() {
		return nil, repository.ErrRoomNotFound
	}

	room.Status = entity.RoomMatched
	room.Players = append(room.Players, entity.RoomPlayer{UserID: userID, JoinedAt: now})

	return cloneRoom(room), nil
}

func (that *fakeRoomStore) TryJoinWaitingRegular(_ context.Context, userID, ticketID string, now time.Time) (*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	waiting := make([]*entity.Room, 0, len(that.rooms))
	for _, room := range that.rooms {
		if room.Type == entity.RoomRegular && room.Status == entity.RoomWaiting && room.ExpiresAt.After(now) {
			waiting = append(waiting, room)
		}
	}

	slices.SortFunc(waiting, func(a, b *entity.Room) int { return a.ExpiresAt.Compare(b.ExpiresAt) })

	for _, room := range waiting {
		if len(room.Players) != 1 || room.Owner() == userID {
			continue
		}

		room.Status = entity.RoomMatched
		room.Players = append(room.Players, entity.RoomPlayer{UserID: userID, TicketID: ticketID, JoinedAt: now})

		return cloneRoom(room), nil
	}

	return nil, repository.ErrRoomNotFound
}

func (that *fakeRoomStore) Delete(_ context.Context, roomID string) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[roomID]
	if !ok {
		return repository.ErrRoomNotFound
	}

	delete(that.rooms, roomID)
	delete(that.codes, room.JoinCode)

	return nil
}

func (that *fakeRoomStore) ListExpiredHalfFull(_ context.Context, now time.Time, limit int) ([]*entity.Room, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var rooms []*entity.Room
	for _, room := range that.rooms {
		if len(rooms) == limit {
			break
		}

		if room.IsHalfFullExpired(now) {
			rooms = append(rooms, cloneRoom(room))
		}
	}

	return rooms, nil
}

func (that *fakeRoomStore) get(roomID string) (*entity.Room, bool) {
	that.mu.Lock()
	defer that.mu.Unlock()

	room, ok := that.rooms[roomID]
	if !ok {
		return nil, false
	}

	return cloneRoom(room), true
}

// --- Tickets ---

type fakeTicketStore struct {
	mu      sync.Mutex
	tickets map[string]*entity.Ticket
	listErr error
}

func newFakeTicketStore() *fakeTicketStore {
	return &fakeTicketStore{tickets: make(map[string]*entity.Ticket)}
}

func (that *fakeTicketStore) CountQueued(_ context.Context) (int64, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	var count int64
	for _, ticket := range that.tickets {
		if ticket.Status == entity.TicketQueued {
			count++
		}
	}

	return count, nil
}

func (that *fakeTicketStore) CreateQueued(_ context.Context, userID string, ttl time.Duration, now time.Time) (*entity.Ticket, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	ticket := &entity.Ticket{
		ID:        pkg.GenerateID(),
		UserID:    userID,
		Status:    entity.TicketQueued,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	that.tickets[ticket.ID] = ticket

	clone := *ticket

	return &clone, nil
}

func (that *fakeTicketStore) transition(ticketID, owner string, to entity.TicketStatus, apply func(*entity.Ticket)) bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	ticket, ok := that.tickets[ticketID]
	if !ok || ticket.Status != entity.TicketQueued || (owner != "" && ticket.UserID != owner) {
		return false
	}

	ticket.Status = to
	if apply != nil {
		apply(ticket)
	}

	return true
}

func (that *fakeTicketStore) TryMarkMatched(_ context.Context, ticketID, roomID, gameID string) (bool, error) {
	return that.transition(ticketID, "", entity.TicketMatched, func(ticket *entity.Ticket) {
		ticket.MatchedRoomID = roomID
		ticket.GameID = gameID
	}), nil
}

func (that *fakeTicketStore) TryCancel(_ context.Context, ticketID, userID string) (bool, error) {
	return that.transition(ticketID, userID, entity.TicketCancelled, nil), nil
}

func (that *fakeTicketStore) TryMarkExpired(_ context.Context, ticketID string) (bool, error) {
	return that.transition(ticketID, "", entity.TicketExpired, nil), nil
}

func (that *fakeTicketStore) ListExpiredQueued(_ context.Context, now time.Time, limit int) ([]*entity.Ticket, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.listErr != nil {
		return nil, that.listErr
	}

	var tickets []*entity.Ticket
	for _, ticket := range that.tickets {
		if len(tickets) == limit {
			break
		}

		if ticket.IsExpired(now) {
			clone := *ticket
			tickets = append(tickets, &clone)
		}
	}

	return tickets, nil
}

func (that *fakeTicketStore) GetByID(_ context.Context, ticketID string) (*entity.Ticket, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	ticket, ok := that.tickets[ticketID]
	if !ok {
		return nil, repository.ErrTicketNotFound
	}

	clone := *ticket

	return &clone, nil
}

// --- Room metrics ---

type fakeRoomMetrics struct {
	mu      sync.Mutex
	created map[entity.RoomType]int64
}

func newFakeRoomMetrics() *fakeRoomMetrics {
	return &fakeRoomMetrics{created: map[entity.RoomType]int64{entity.RoomRegular: 0, entity.RoomPrivate: 0}}
}

func (that *fakeRoomMetrics) IncrementCreated(_ context.Context, roomType entity.RoomType) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.created[roomType]++

	return nil
}

func (that *fakeRoomMetrics) CreatedCounters(_ context.Context) (map[entity.RoomType]int64, error) {
	that.mu.Lock()
	defer that.mu.Unlock()

	counters := make(map[entity.RoomType]int64, len(that.created))
	for roomType, count := range that.created {
		counters[roomType] = count
	}

	return counters, nil
}

// --- Notifier ---

type mockNotifier struct {
	mock.Mock
}

// newMockNotifier accepts every notification and answers err.
func newMockNotifier(err error) *mockNotifier {
	notifier := &mockNotifier{}
	for _, method := range []string{
		"MatchFound", "QueueJoined", "QueueExpired", "PrivateRoomCreated", "RoomExpired", "MoveApplied", "MoveRejected",
	} {
		notifier.On(method, mock.Anything, mock.Anything).Return(err).Maybe()
	}

	return notifier
}

func (that *mockNotifier) MatchFound(ctx context.Context, n entity.MatchFoundNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) QueueJoined(ctx context.Context, n entity.QueueJoinedNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) QueueExpired(ctx context.Context, n entity.QueueExpiredNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) PrivateRoomCreated(ctx context.Context, n entity.PrivateRoomCreatedNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) RoomExpired(ctx context.Context, n entity.RoomExpiredNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) MoveApplied(ctx context.Context, n entity.MoveAppliedNotification) error {
	return that.Called(ctx, n).Error(0)
}

func (that *mockNotifier) MoveRejected(ctx context.Context, n entity.MoveRejectedNotification) error {
	return that.Called(ctx, n).Error(0)
}

// --- Harness ---

type harness struct {
	events      *fakeEventStore
	snapshots   *fakeSnapshotRepo
	rooms       *fakeRoomStore
	tickets     *fakeTicketStore
	roomMetrics *fakeRoomMetrics
	notifier    *mockNotifier
	metrics     *metrics.Metrics

	manager *GameManager
}

func defaultManagerConfig() GameManagerConfig {
	return GameManagerConfig{
		MaxActiveGames:               100,
		BackpressureThresholdPercent: 100,
		LockTimeout:                  200 * time.Millisecond,
	}
}

func newHarness(conf GameManagerConfig) *harness {
	h := &harness{
		events:      newFakeEventStore(),
		snapshots:   newFakeSnapshotRepo(),
		rooms:       newFakeRoomStore(),
		tickets:     newFakeTicketStore(),
		roomMetrics: newFakeRoomMetrics(),
		notifier:    newMockNotifier(nil),
		metrics:     newMetrics(),
	}
	h.manager = h.newManager(conf)

	return h
}

// newManager builds a second registry over the same stores, as after a restart.
func (that *harness) newManager(conf GameManagerConfig) *GameManager {
	snapshots := service.NewSnapshotService(discardLogger(), that.snapshots, that.events, entity.DefaultEventsUntilSnapshot)

	return NewGameManager(discardLogger(), that.events, snapshots, that.notifier, that.metrics, conf)
}

func (that *harness) newMatchmaking(conf MatchmakingConfig) *Matchmaking {
	return NewMatchmaking(discardLogger(), that.rooms, that.tickets, that.roomMetrics, that.manager, that.notifier, that.metrics, conf)
}

func (that *harness) newSweeper() *ExpirySweeper {
	return NewExpirySweeper(discardLogger(), that.tickets, that.rooms, that.notifier, that.metrics, SweeperConfig{})
}

func moveFor(gameID string, view GameView, move fixture.Move) Move {
	playerID := view.PlayerXID
	if move.Mark == "O" {
		playerID = view.PlayerOID
	}

	return Move{
		GameID:       gameID,
		PlayerID:     playerID,
		MiniBoardRow: move.MiniRow,
		MiniBoardCol: move.MiniCol,
		CellRow:      move.CellRow,
		CellCol:      move.CellCol,
	}
}

func playMoves(t *testing.T, manager *GameManager, view GameView, moves []fixture.Move) GameView {
	t.Helper()

	for _, move := range moves {
		next, err := manager.MakeMove(context.Background(), moveFor(view.ID, view, move))
		require.NoError(t, err)

		view = next
	}

	return view
}
