// Package app assembles repositories and services from configuration. The
// api server, the worker and queuectl all build on it.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/repository/memory"
	"github.com/jwalitptl/clinic-queue/internal/repository/postgres"
	redisrepo "github.com/jwalitptl/clinic-queue/internal/repository/redis"
	"github.com/jwalitptl/clinic-queue/internal/service/appointment"
	"github.com/jwalitptl/clinic-queue/internal/service/assignment"
	"github.com/jwalitptl/clinic-queue/internal/service/audit"
	"github.com/jwalitptl/clinic-queue/internal/service/event"
	"github.com/jwalitptl/clinic-queue/internal/service/notification"
	"github.com/jwalitptl/clinic-queue/internal/service/orchestrator"
	"github.com/jwalitptl/clinic-queue/internal/service/queue"
	"github.com/jwalitptl/clinic-queue/internal/service/resource"
	"github.com/jwalitptl/clinic-queue/migrations"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	redisbroker "github.com/jwalitptl/clinic-queue/pkg/messaging/redis"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

// Repositories is the storage side of the engine.
type Repositories struct {
	Tx           repository.Transactor
	Appointments repository.AppointmentRepository
	Queue        repository.QueueRepository
	Dentists     repository.DentistRepository
	Rooms        repository.RoomRepository
	Audit        repository.AuditRepository
	Outbox       repository.OutboxRepository
	Settings     repository.SettingsStore
	Locker       repository.Locker
}

// Services is the engine wired together.
type Services struct {
	Audit        *audit.Service
	Events       *event.EventService
	Resources    *resource.Service
	Queue        *queue.Service
	Coordinator  *assignment.Coordinator
	Orchestrator *orchestrator.Orchestrator
	Engine       *appointment.Service
}

type App struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Repos    Repositories
	Broker   messaging.Broker
	Services Services

	db    *sqlx.DB
	redis *goredis.Client
}

// NewLogger builds the process logger from configuration.
func NewLogger(cfg config.LogConfig) *logger.Logger {
	return logger.NewLogger(&logger.Config{
		Level:      logger.ParseLevel(cfg.Level),
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		JSON:       cfg.JSON,
	})
}

// New connects to the configured stores and wires the services. The memory
// driver needs neither Postgres nor Redis.
func New(cfg *config.Config, log *logger.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		Config:   cfg,
		Logger:   log,
		Registry: reg,
		Metrics:  metrics.New(cfg.Metrics.Namespace, reg),
	}

	if err := a.openStores(); err != nil {
		a.Close()
		return nil, err
	}
	a.Services = Wire(a.Repos, a.Broker, cfg.Queue, a.Metrics, log)
	return a, nil
}

func (a *App) openStores() error {
	cfg := a.Config
	if cfg.Database.Driver == "memory" {
		store := memory.NewStore()
		a.Repos = Repositories{
			Tx:           store,
			Appointments: store.Appointments(),
			Queue:        store.Queue(),
			Dentists:     store.Dentists(),
			Rooms:        store.Rooms(),
			Audit:        store.Audit(),
			Outbox:       store.Outbox(),
			Settings:     memory.NewSettings(),
			Locker:       memory.NewLocker(),
		}
		a.Broker = messaging.Noop{}
		a.Logger.Warn("Using in-memory storage, data is lost on restart")
		return nil
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		return err
	}
	a.db = db

	client, err := redisbroker.NewClient(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return err
	}
	a.redis = client

	broker, err := redisbroker.NewRedisBroker(client, a.Logger.Zerolog())
	if err != nil {
		return fmt.Errorf("init broker: %w", err)
	}
	a.Broker = broker

	a.Repos = Repositories{
		Tx:           postgres.NewTransactor(db),
		Appointments: postgres.NewAppointmentRepository(db),
		Queue:        postgres.NewQueueRepository(db),
		Dentists:     postgres.NewDentistRepository(db),
		Rooms:        postgres.NewRoomRepository(db),
		Audit:        postgres.NewAuditRepository(db),
		Outbox:       postgres.NewOutboxRepository(db),
		Settings:     redisrepo.NewSettingsStore(client),
		Locker:       redisrepo.NewLocker(client, cfg.Queue.LockTTL),
	}
	return nil
}

// Wire builds the services over repos. The engine and the orchestrator
// reference each other, so the caller is attached after both exist.
func Wire(repos Repositories, broker messaging.Broker, qc config.QueueConfig, m *metrics.Metrics, log *logger.Logger) Services {
	loc := qc.Location()

	auditor := audit.NewService(repos.Audit, log)
	events := event.NewEventService(repos.Outbox, log)
	notifier := notification.NewService(broker, qc.NotificationChannel, log)

	resources := resource.NewService(repos.Dentists, repos.Rooms, repos.Queue, auditor, resource.Config{
		Location:  loc,
		RosterTTL: qc.ScheduleCacheTTL,
	}, log)

	queueSvc := queue.NewService(repos.Queue, repos.Appointments, repos.Dentists, repos.Rooms, loc)

	coordinator := assignment.NewCoordinator(assignment.Deps{
		Tx:           repos.Tx,
		Appointments: repos.Appointments,
		Queue:        repos.Queue,
		Dentists:     repos.Dentists,
		Rooms:        repos.Rooms,
		Settings:     repos.Settings,
		Ranker:       resources,
		Auditor:      auditor,
		Events:       events,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       log,
	})

	orch := orchestrator.New(
		repos.Appointments,
		repos.Queue,
		repos.Settings,
		repos.Locker,
		coordinator,
		orchestrator.Config{Location: loc, AutoClaim: qc.AutoClaim},
		m,
		log,
	)

	engine := appointment.NewService(appointment.Deps{
		Tx:           repos.Tx,
		Appointments: repos.Appointments,
		Settings:     repos.Settings,
		Queue:        queueSvc,
		Claimer:      coordinator,
		Advancer:     orch,
		Roster:       resources,
		Auditor:      auditor,
		Events:       events,
		Notifier:     notifier,
		Metrics:      m,
		Logger:       log,
		Location:     loc,
	})
	orch.SetCaller(engine)

	return Services{
		Audit:        auditor,
		Events:       events,
		Resources:    resources,
		Queue:        queueSvc,
		Coordinator:  coordinator,
		Orchestrator: orch,
		Engine:       engine,
	}
}

// Migrate applies pending schema migrations. The memory driver has none.
func (a *App) Migrate(ctx context.Context) ([]string, error) {
	if a.db == nil {
		return nil, nil
	}
	applied, err := postgres.NewMigrator(a.db, migrations.FS).Up(ctx)
	for _, name := range applied {
		a.Logger.Info("Applied migration", "name", name)
	}
	return applied, err
}

// PingDB checks Postgres. The memory driver is always ready.
func (a *App) PingDB(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

func (a *App) PingRedis(ctx context.Context) error {
	if a.redis == nil {
		return nil
	}
	return a.redis.Ping(ctx).Err()
}

// Close releases connections. Safe on a partially built App.
func (a *App) Close() {
	if a.Broker != nil {
		if err := a.Broker.Close(); err != nil {
			a.Logger.Error(err, "Failed to close broker")
		}
	} else if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.Logger.Error(err, "Failed to close database")
		}
	}
}
