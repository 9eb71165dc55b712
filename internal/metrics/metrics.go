package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "uttt"

// Metrics holds the Prometheus collectors of the game registry, matchmaking and the sweeper.
type Metrics struct {
	// --- Registry ---
	ActiveGames     prometheus.Gauge
	GamesStarted    prometheus.Counter
	GamesFinished   *prometheus.CounterVec
	MovesApplied    prometheus.Counter
	Rejections      *prometheus.CounterVec
	SnapshotsTaken  *prometheus.CounterVec
	LockWait        prometheus.Histogram
	PersistFailures *prometheus.CounterVec
	GamesRehydrated prometheus.Counter
	FinishedEvicted prometheus.Counter

	// --- Matchmaking ---
	RoomsCreated   *prometheus.CounterVec
	Matches        *prometheus.CounterVec
	NotifyFailures *prometheus.CounterVec

	// --- Sweeper ---
	TicketsExpired prometheus.Counter
	RoomsExpired   prometheus.Counter
	SweepErrors    prometheus.Counter
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveGames: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_games",
			Help:      "Games held in the in-memory registry",
		}),

		GamesStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_started_total",
			Help:      "Games created and persisted",
		}),

		GamesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_finished_total",
			Help:      "Games that reached a terminal status",
		}, []string{"status"}),

		MovesApplied: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_applied_total",
			Help:      "Moves accepted and persisted",
		}),

		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Rejected registry operations by reason",
		}, []string{"operation", "reason"}),

		SnapshotsTaken: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshots stored by cause",
		}, []string{"cause"}),

		LockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "registry_lock_wait_seconds",
			Help:      "Time spent acquiring the registry lock",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.2, 0.4, 1},
		}),

		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed event appends by operation",
		}, []string{"operation"}),

		GamesRehydrated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "games_rehydrated_total",
			Help:      "Games loaded back into memory from storage",
		}),

		FinishedEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finished_games_evicted_total",
			Help:      "Finished games removed from the registry",
		}),

		RoomsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_created_total",
			Help:      "Rooms created by type",
		}, []string{"type"}),

		Matches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_total",
			Help:      "Rooms matched into games by type",
		}, []string{"type"}),

		NotifyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Notifications that could not be published",
		}, []string{"kind"}),

		TicketsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tickets_expired_total",
			Help:      "Queued tickets expired by the sweeper",
		}),

		RoomsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rooms_expired_total",
			Help:      "Half full rooms removed by the sweeper",
		}),

		SweepErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Sweeps that failed",
		}),
	}
}
