// Package apptest wires the engine over the in-memory store for tests.
package apptest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/config"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository/memory"
	"github.com/jwalitptl/clinic-queue/pkg/logger"
	"github.com/jwalitptl/clinic-queue/pkg/messaging"
	"github.com/jwalitptl/clinic-queue/pkg/metrics"
)

const Location = "north"

// Now is the harness clock: a Monday mid-morning.
var Now = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

type Harness struct {
	Store    *memory.Store
	Settings *memory.Settings
	Locker   *memory.Locker
	Repos    app.Repositories
	Broker   *Recorder
	Metrics  *metrics.Metrics
	app.Services

	clock time.Time
	mu    sync.Mutex
}

type options struct {
	queue config.QueueConfig
	wrap  func(*app.Repositories)
}

type Option func(*options)

// AutoClaim makes auto-advance claim resources right after calling.
func AutoClaim() Option {
	return func(o *options) { o.queue.AutoClaim = true }
}

// WrapRepos lets a test decorate repositories before the services are built.
func WrapRepos(fn func(*app.Repositories)) Option {
	return func(o *options) { o.wrap = fn }
}

func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	o := options{queue: config.QueueConfig{
		Timezone:            "UTC",
		LockTTL:             time.Second,
		ScheduleCacheTTL:    time.Minute,
		NotificationChannel: "notifications",
	}}
	for _, opt := range opts {
		opt(&o)
	}

	store := memory.NewStore()
	h := &Harness{
		Store:    store,
		Settings: memory.NewSettings(),
		Locker:   memory.NewLocker(),
		Broker:   &Recorder{},
		Metrics:  metrics.Nop(),
		clock:    Now,
	}
	h.Repos = app.Repositories{
		Tx:           store,
		Appointments: store.Appointments(),
		Queue:        store.Queue(),
		Dentists:     store.Dentists(),
		Rooms:        store.Rooms(),
		Audit:        store.Audit(),
		Outbox:       store.Outbox(),
		Settings:     h.Settings,
		Locker:       h.Locker,
	}
	if o.wrap != nil {
		o.wrap(&h.Repos)
	}
	h.Services = app.Wire(h.Repos, h.Broker, o.queue, h.Metrics, logger.Nop())

	store.SetClock(h.Now)
	h.Engine.SetClock(h.Now)
	h.Coordinator.SetClock(h.Now)
	h.Orchestrator.SetClock(h.Now)
	h.Queue.SetClock(h.Now)
	h.Resources.SetClock(h.Now)
	return h
}

func (h *Harness) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

// Advance moves the harness clock forward.
func (h *Harness) Advance(d time.Duration) {
	h.mu.Lock()
	h.clock = h.clock.Add(d)
	h.mu.Unlock()
}

func (h *Harness) AddDentist(t *testing.T, name string) *model.Dentist {
	t.Helper()
	d, err := h.Resources.CreateDentist(context.Background(), &model.CreateDentistRequest{
		Name:           name,
		ClinicLocation: Location,
	}, "admin")
	require.NoError(t, err)
	return d
}

func (h *Harness) AddRoom(t *testing.T, name string) *model.Room {
	t.Helper()
	r, err := h.Resources.CreateRoom(context.Background(), &model.CreateRoomRequest{
		Name:           name,
		ClinicLocation: Location,
	}, "admin")
	require.NoError(t, err)
	return r
}

// Book creates an appointment scheduled offset from the harness clock.
func (h *Harness) Book(t *testing.T, name string, offset time.Duration) *model.Appointment {
	t.Helper()
	at := h.Now().Add(offset)
	appt, err := h.Engine.Book(context.Background(), &model.CreateAppointmentRequest{
		PatientName:    name,
		PatientPhone:   "+91 98450 12345",
		ClinicLocation: Location,
		Date:           at.Format(model.DateLayout),
		Time:           at.Format(model.TimeLayout),
	}, "reception")
	require.NoError(t, err)
	return appt
}

// CheckIn books and checks in a patient.
func (h *Harness) CheckIn(t *testing.T, name string, offset time.Duration) (*model.Appointment, *model.QueueEntry) {
	t.Helper()
	appt := h.Book(t, name, offset)
	res, err := h.Engine.CheckIn(context.Background(), appt.ID, "reception")
	require.NoError(t, err)
	require.NotNil(t, res.QueueEntry)
	return res.Appointment, res.QueueEntry
}

func (h *Harness) Status(t *testing.T, id uuid.UUID) model.AppointmentStatus {
	t.Helper()
	appt, err := h.Repos.Appointments.Get(context.Background(), id)
	require.NoError(t, err)
	return appt.Status
}

func (h *Harness) Dentist(t *testing.T, id uuid.UUID) *model.Dentist {
	t.Helper()
	d, err := h.Repos.Dentists.Get(context.Background(), id)
	require.NoError(t, err)
	return d
}

// Recorder is a broker that keeps what was published.
type Recorder struct {
	mu   sync.Mutex
	sent []Published
	err  error
}

type Published struct {
	Channel string
	Body    []byte
}

var _ messaging.Broker = (*Recorder)(nil)

func (r *Recorder) Publish(_ context.Context, channel string, message interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	body, err := json.Marshal(message)
	if err != nil {
		return err
	}
	r.sent = append(r.sent, Published{Channel: channel, Body: body})
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Sent() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.sent...)
}

// SetErr makes every later Publish fail with err.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}
