package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/config"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/metrics"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/repository/storage"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/service"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/transport/nats"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/internal/usecase"
	"github.com/rocketscienceinc/ultimate-tictactoe-backend/transport/rest"
)

const clearFinishedInterval = time.Minute

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application until SIGINT or SIGTERM.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisAddrString := conf.Redis.GetRedisAddr()
	if redisAddrString == "" {
		return ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedisStorage(ctx, storage.RedisOptions{
		Addr:     redisAddrString,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	if err != nil {
		return fmt.Errorf("could not connect to redis storage: %w", err)
	}

	defer func() {
		if err = redisStorage.Close(); err != nil {
			log.Error("could not close redis storage", "error", err)
		}
	}()

	natsConn, err := nats.Connect(logger, conf.NATS.URL)
	if err != nil {
		return fmt.Errorf("could not connect to NATS: %w", err)
	}
	defer natsConn.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	client := redisStorage.Connection
	eventRepo := repository.NewEventRepository(client)
	snapshotRepo := repository.NewSnapshotRepository(client)
	roomRepo := repository.NewRoomRepository(client)
	ticketRepo := repository.NewTicketRepository(client)
	roomMetricsRepo := repository.NewRoomMetricsRepository(client)

	notifier := nats.NewNotifier(natsConn, conf.NATS.SubjectPrefix)
	snapshotService := service.NewSnapshotService(logger, snapshotRepo, eventRepo, conf.Gameplay.EventsUntilSnapshot)

	gameManager := usecase.NewGameManager(logger, eventRepo, snapshotService, notifier, appMetrics, usecase.GameManagerConfig{
		MaxActiveGames:               conf.Gameplay.MaxActiveGames,
		BackpressureThresholdPercent: conf.Gameplay.BackpressureThresholdPercent,
		LockTimeout:                  conf.Gameplay.LockTimeout,
	})

	matchmaking := usecase.NewMatchmaking(logger, roomRepo, ticketRepo, roomMetricsRepo, gameManager, notifier, appMetrics, usecase.MatchmakingConfig{
		RoomTTL:         conf.Rooms.TTL(),
		MaxRegularRooms: conf.Rooms.MaxRegularRooms,
		MaxPrivateRooms: conf.Rooms.MaxPrivateRooms,
	})

	sweeper := usecase.NewExpirySweeper(logger, ticketRepo, roomRepo, notifier, appMetrics, usecase.SweeperConfig{
		BatchSize: conf.Sweep.BatchSize,
		Interval:  conf.Sweep.Interval,
	})

	mux := rest.NewMux(rest.NewHandlers(logger, matchmaking), registry)

	group, groupCtx := errgroup.WithContext(ctx)

	// run HTTP server
	group.Go(func() error {
		log.Info("Starting HTTP server", "port", conf.HTTPPort)
		if httpErr := rest.Start(groupCtx, logger, conf.HTTPPort, mux); httpErr != nil {
			return fmt.Errorf("HTTP server error: %w", httpErr)
		}

		return nil
	})

	// run expiry sweeper
	group.Go(func() error {
		return sweeper.Run(groupCtx)
	})

	// evict finished games
	group.Go(func() error {
		ticker := time.NewTicker(clearFinishedInterval)
		defer ticker.Stop()

		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if cleared := gameManager.ClearFinishedGames(groupCtx); cleared > 0 {
					log.Info("Cleared finished games", "count", cleared)
				}
			}
		}
	})

	if err = group.Wait(); err != nil {
		return err
	}

	log.Info("Application context canceled, shutting down")

	return nil
}
