package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/apperror"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/entity"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/metrics"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/pkg"
)

const (
	defaultLockTimeout = 400 * time.Millisecond

	defaultHistoryTake = 10
	maxHistoryTake     = 100
)

type eventStore interface {
	Append(ctx context.Context, gameID string, events []entity.Event) error
	ReadAll(ctx context.Context, gameID string) ([]entity.Event, error)
	DeleteAll(ctx context.Context, gameID string) error
}

type snapshotStore interface {
	TryCreate(ctx context.Context, game *entity.Game) (*entity.Snapshot, error)
	Load(ctx context.Context, gameID string) (*entity.Game, error)
}

type GameManagerConfig struct {
	MaxActiveGames               int
	BackpressureThresholdPercent int
	LockTimeout                  time.Duration
}

// Move is a player's request to mark a cell.
type Move struct {
	GameID       string
	PlayerID     string
	MiniBoardRow int
	MiniBoardCol int
	CellRow      int
	CellCol      int
}

// GameView is a read-only copy of a game's state.
type GameView struct {
	ID           string
	PlayerXID    string
	PlayerOID    string
	Status       entity.GameStatus
	WinnerID     string
	Version      int
	NextPlayerID string
	Board        entity.OuterBoard
}

func newGameView(game *entity.Game) GameView {
	view := GameView{
		ID:        game.ID(),
		PlayerXID: game.PlayerXID(),
		PlayerOID: game.PlayerOID(),
		Status:    game.Status(),
		WinnerID:  game.WinnerID(),
		Version:   game.Version(),
		Board:     game.Board(),
	}

	if game.IsOngoing() {
		view.NextPlayerID = game.ExpectedPlayerID()
	}

	return view
}

// GameManager is the registry of live games. Creates and moves run one at a time behind a lock
// acquired with a bounded wait; every accepted change is appended to the event store before it is
// acknowledged. A move is played on a copy of the game, and the copy replaces the registered game only
// once its events are durable, so readers never see a game mid-move or ahead of the event store.
type GameManager struct {
	logger *slog.Logger

	eventStore    eventStore
	snapshotStore snapshotStore
	notifier      Notifier
	metrics       *metrics.Metrics

	lock        *semaphore.Weighted
	lockTimeout time.Duration

	// games holds published aggregates. They are never mutated after publish.
	mu    sync.RWMutex
	games map[string]*entity.Game

	maxActiveGames int
	threshold      int

	now func() time.Time
}

func NewGameManager(
	logger *slog.Logger,
	eventStore eventStore,
	snapshotStore snapshotStore,
	notifier Notifier,
	metrics *metrics.Metrics,
	conf GameManagerConfig,
) *GameManager {
	lockTimeout := conf.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = defaultLockTimeout
	}

	return &GameManager{
		logger: logger.With("component", "game-manager"),

		eventStore:    eventStore,
		snapshotStore: snapshotStore,
		notifier:      notifier,
		metrics:       metrics,

		lock:        semaphore.NewWeighted(1),
		lockTimeout: lockTimeout,

		games: make(map[string]*entity.Game),

		maxActiveGames: conf.MaxActiveGames,
		threshold:      BackpressureThreshold(conf.MaxActiveGames, conf.BackpressureThresholdPercent),

		now: func() time.Time { return time.Now().UTC() },
	}
}

// BackpressureThreshold is ceil(maxActiveGames * percent / 100). percent <= 0 or > 100 means 100.
func BackpressureThreshold(maxActiveGames, percent int) int {
	if percent <= 0 || percent > 100 {
		percent = 100
	}

	return (maxActiveGames*percent + 99) / 100
}

func (that *GameManager) ActiveGames() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.games)
}

// CheckCapacity rejects new games at the hard cap or at the backpressure threshold.
func (that *GameManager) CheckCapacity() error {
	count := that.ActiveGames()

	if count >= that.maxActiveGames {
		return apperror.ErrCapacityExceeded
	}

	if count >= that.threshold {
		return apperror.ErrNearCapacity
	}

	return nil
}

// StartGame starts a game between two fresh anonymous players.
func (that *GameManager) StartGame(ctx context.Context) (GameView, error) {
	return that.StartGameForPlayers(ctx, pkg.GenerateID(), pkg.GenerateID())
}

func (that *GameManager) StartGameForPlayers(ctx context.Context, playerXID, playerOID string) (GameView, error) {
	log := that.logger.With("method", "StartGameForPlayers")

	release, err := that.acquire(ctx)
	if err != nil {
		that.reject("start_game", err)

		return GameView{}, err
	}
	defer release()

	if err = that.CheckCapacity(); err != nil {
		that.reject("start_game", err)

		return GameView{}, err
	}

	game := entity.NewGame(pkg.GenerateID(), playerXID, playerOID, that.now())
	if that.registered(game.ID()) {
		return GameView{}, apperror.ErrGameAlreadyExists
	}

	if err = that.eventStore.Append(ctx, game.ID(), game.PendingEvents()); err != nil {
		log.Error("failed to persist new game", "game_id", game.ID(), "error", err)

		that.metrics.PersistFailures.WithLabelValues("start_game").Inc()

		// The batch is all or nothing, but a timed out EXEC may still have landed.
		if delErr := that.eventStore.DeleteAll(context.WithoutCancel(ctx), game.ID()); delErr != nil {
			log.Error("failed to clean up events of a rolled back game", "game_id", game.ID(), "error", delErr)
		}

		return GameView{}, fmt.Errorf("%w: %w", apperror.ErrPersistence, err)
	}

	that.snapshot(ctx, game)
	game.ClearPendingEvents()
	that.publish(game)

	that.metrics.GamesStarted.Inc()
	log.Info("game started", "game_id", game.ID(), "player_x", playerXID, "player_o", playerOID)

	return newGameView(game), nil
}

// MakeMove applies a move to a live game, loading it from storage when it is not in memory.
func (that *GameManager) MakeMove(ctx context.Context, move Move) (GameView, error) {
	view, err := that.makeMove(ctx, move)
	if err != nil {
		that.notifyRejected(ctx, move, err)

		return GameView{}, err
	}

	if notifyErr := that.notifier.MoveApplied(ctx, entity.MoveAppliedNotification{
		GameID:       view.ID,
		PlayerID:     move.PlayerID,
		MiniBoardRow: move.MiniBoardRow,
		MiniBoardCol: move.MiniBoardCol,
		CellRow:      move.CellRow,
		CellCol:      move.CellCol,
		Version:      view.Version,
		Status:       view.Status,
		NextPlayerID: view.NextPlayerID,
		WinnerID:     view.WinnerID,
	}); notifyErr != nil {
		that.logger.Warn("failed to notify move applied", "game_id", view.ID, "error", notifyErr)
		that.metrics.NotifyFailures.WithLabelValues("move_applied").Inc()
	}

	return view, nil
}

func (that *GameManager) makeMove(ctx context.Context, move Move) (GameView, error) {
	log := that.logger.With("method", "MakeMove", "game_id", move.GameID)

	release, err := that.acquire(ctx)
	if err != nil {
		that.reject("make_move", err)

		return GameView{}, err
	}
	defer release()

	live, err := that.getOrLoad(ctx, move.GameID)
	if err != nil {
		that.reject("make_move", err)

		return GameView{}, err
	}

	game := live.Clone()
	if err = game.PlayMove(move.PlayerID, move.MiniBoardRow, move.MiniBoardCol, move.CellRow, move.CellCol); err != nil {
		that.reject("make_move", err)

		return GameView{}, fmt.Errorf("failed to play move: %w", err)
	}

	if err = that.eventStore.Append(ctx, game.ID(), game.PendingEvents()); err != nil {
		log.Error("failed to persist move, reloading durable state", "error", err)
		that.metrics.PersistFailures.WithLabelValues("make_move").Inc()

		// A timed out EXEC may still have landed, so the registered game can't be trusted either.
		that.reconcile(context.WithoutCancel(ctx), game.ID())

		return GameView{}, fmt.Errorf("%w: %w", apperror.ErrPersistence, err)
	}

	that.snapshot(ctx, game)
	game.ClearPendingEvents()
	that.publish(game)

	that.metrics.MovesApplied.Inc()
	if game.IsFinished() {
		that.metrics.GamesFinished.WithLabelValues(string(game.Status())).Inc()
		log.Info("game finished", "status", game.Status(), "winner_id", game.WinnerID())
	}

	return newGameView(game), nil
}

// ClearFinishedGames evicts won and drawn games from memory. Their history stays in the event store.
func (that *GameManager) ClearFinishedGames(_ context.Context) int {
	that.mu.Lock()
	defer that.mu.Unlock()

	cleared := 0
	for id, game := range that.games {
		if game.IsFinished() {
			delete(that.games, id)
			cleared++
		}
	}

	that.metrics.FinishedEvicted.Add(float64(cleared))
	that.metrics.ActiveGames.Set(float64(len(that.games)))

	return cleared
}

// MovesHistory pages through the marked cells of a game in play order.
// skip < 0 is 0, take <= 0 is 10 and take is capped at 100.
func (that *GameManager) MovesHistory(ctx context.Context, gameID string, skip, take int) ([]entity.CellMarked, error) {
	skip = max(skip, 0)
	if take <= 0 {
		take = defaultHistoryTake
	}

	take = min(take, maxHistoryTake)

	events, err := that.eventStore.ReadAll(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to read moves history: %w", err)
	}

	if len(events) == 0 {
		return nil, apperror.ErrGameNotFound
	}

	moves := make([]entity.CellMarked, 0, take)
	for _, event := range events {
		marked, ok := event.(entity.CellMarked)
		if !ok {
			continue
		}

		if skip > 0 {
			skip--
			continue
		}

		moves = append(moves, marked)
		if len(moves) == take {
			break
		}
	}

	return moves, nil
}

// GameState returns the current state of a game. A game that is not in memory is loaded but not cached.
func (that *GameManager) GameState(ctx context.Context, gameID string) (GameView, error) {
	that.mu.RLock()
	game, ok := that.games[gameID]
	if ok {
		view := newGameView(game)
		that.mu.RUnlock()

		return view, nil
	}
	that.mu.RUnlock()

	game, err := that.snapshotStore.Load(ctx, gameID)
	if err != nil {
		return GameView{}, fmt.Errorf("failed to load game: %w", err)
	}

	return newGameView(game), nil
}

// acquire takes the registry lock, waiting at most lockTimeout.
func (that *GameManager) acquire(ctx context.Context) (func(), error) {
	started := time.Now()

	lockCtx, cancel := context.WithTimeout(ctx, that.lockTimeout)
	defer cancel()

	err := that.lock.Acquire(lockCtx, 1)
	that.metrics.LockWait.Observe(time.Since(started).Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to acquire registry lock: %w", ctxErr)
		}

		return nil, apperror.ErrServerBusy
	}

	return func() { that.lock.Release(1) }, nil
}

func (that *GameManager) registered(gameID string) bool {
	that.mu.RLock()
	defer that.mu.RUnlock()

	_, ok := that.games[gameID]

	return ok
}

// publish registers game or replaces the registered copy. game must not be mutated afterwards.
func (that *GameManager) publish(game *entity.Game) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.games[game.ID()] = game
	that.metrics.ActiveGames.Set(float64(len(that.games)))
}

func (that *GameManager) evict(gameID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.games, gameID)
	that.metrics.ActiveGames.Set(float64(len(that.games)))
}

// getOrLoad must be called with the registry lock held.
func (that *GameManager) getOrLoad(ctx context.Context, gameID string) (*entity.Game, error) {
	that.mu.RLock()
	game, ok := that.games[gameID]
	that.mu.RUnlock()

	if ok {
		return game, nil
	}

	game, err := that.snapshotStore.Load(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to load game: %w", err)
	}

	that.publish(game)
	that.metrics.GamesRehydrated.Inc()

	return game, nil
}

// reconcile replaces the in-memory game with its last durable state, or evicts it when that can't be read.
func (that *GameManager) reconcile(ctx context.Context, gameID string) {
	log := that.logger.With("method", "reconcile", "game_id", gameID)

	game, err := that.snapshotStore.Load(ctx, gameID)
	if err != nil {
		if !errors.Is(err, apperror.ErrGameNotFound) {
			log.Error("failed to reload game, evicting it", "error", err)
		}

		that.evict(gameID)

		return
	}

	that.publish(game)
}

// snapshot runs the snapshot policy. A failed snapshot only costs a longer replay.
func (that *GameManager) snapshot(ctx context.Context, game *entity.Game) {
	snapshot, err := that.snapshotStore.TryCreate(ctx, game)
	if err != nil {
		that.logger.Warn("failed to create snapshot", "game_id", game.ID(), "version", game.Version(), "error", err)

		return
	}

	if snapshot != nil {
		that.metrics.SnapshotsTaken.WithLabelValues(string(snapshot.Cause)).Inc()
	}
}

func (that *GameManager) reject(operation string, err error) {
	that.metrics.Rejections.WithLabelValues(operation, apperror.ReasonOf(err)).Inc()
}

// notifyRejected tells the player about rejections of the move itself. Retryable and internal failures
// are left to the caller.
func (that *GameManager) notifyRejected(ctx context.Context, move Move, err error) {
	if apperror.IsRetryable(err) || apperror.KindOf(err) == apperror.KindInternal {
		return
	}

	if notifyErr := that.notifier.MoveRejected(ctx, entity.MoveRejectedNotification{
		GameID:   move.GameID,
		PlayerID: move.PlayerID,
		Kind:     apperror.KindOf(err),
		Reason:   apperror.ReasonOf(err),
		Message:  err.Error(),
	}); notifyErr != nil {
		that.logger.Warn("failed to notify move rejected", "game_id", move.GameID, "error", notifyErr)
		that.metrics.NotifyFailures.WithLabelValues("move_rejected").Inc()
	}
}
