package appointment_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/app"
	"github.com/jwalitptl/clinic-queue/internal/app/apptest"
	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
	"github.com/jwalitptl/clinic-queue/internal/service/appointment"
	"github.com/jwalitptl/clinic-queue/internal/service/orchestrator"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

func TestBookValidatesAndIssuesVisitCode(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()

	appt := h.Book(t, "  Asha Rao ", time.Hour)
	assert.Equal(t, "Asha Rao", appt.PatientName)
	assert.Equal(t, model.AppointmentStatusBooked, appt.Status)
	assert.Len(t, appt.VisitCode, 8)
	assert.Equal(t, -1, strings.IndexAny(appt.VisitCode, "01IO"), "no look-alike characters")

	got, err := h.Engine.GetByVisitCode(ctx, strings.ToLower(appt.VisitCode))
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = h.Engine.Book(ctx, &model.CreateAppointmentRequest{
		PatientName:    "Asha Rao",
		PatientPhone:   "+91 98450 12345",
		ClinicLocation: apptest.Location,
		Date:           "2026-13-40",
		Time:           "09:00",
	}, "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.Rejections.WithLabelValues(string(apperrors.KindValidation))))
}

func TestCheckInAssignsDayScopedNumbers(t *testing.T) {
	h := apptest.New(t)

	_, first := h.CheckIn(t, "Asha Rao", 0)
	_, second := h.CheckIn(t, "Vikram Shah", 0)
	assert.Equal(t, 1, first.QueueNumber)
	assert.Equal(t, 2, second.QueueNumber)
	assert.Equal(t, model.QueueStatusWaiting, first.QueueStatus)

	h.Advance(24 * time.Hour)
	_, tomorrow := h.CheckIn(t, "Meera Pillai", 0)
	assert.Equal(t, 1, tomorrow.QueueNumber)
}

// One patient in treatment, one waiting: completing the first calls the
// second without staff involvement.
func TestCompletionAdvancesQueue(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	room := h.AddRoom(t, "Operatory 1")

	first, entry := h.CheckIn(t, "Asha Rao", 0)
	second, _ := h.CheckIn(t, "Vikram Shah", 5*time.Minute)

	res, err := h.Engine.CallPatient(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusInTreatment, res.Appointment.Status)

	h.Advance(40 * time.Minute)
	res, err = h.Engine.CompleteTreatment(ctx, first.ID, "dr-iyer")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, res.Appointment.Status)
	require.NotNil(t, res.Appointment.TreatmentEndedAt)
	require.NotNil(t, res.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, res.Advance.Outcome)
	assert.Equal(t, second.ID, res.Advance.AppointmentID)

	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, second.ID))
	assert.Equal(t, model.AvailabilityAvailable, h.Dentist(t, dentist.ID).Availability)
	gotRoom, err := h.Repos.Rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.False(t, gotRoom.Occupied)

	// Completing again changes nothing.
	res, err = h.Engine.CompleteTreatment(ctx, first.ID, "dr-iyer")
	require.NoError(t, err)
	assert.True(t, res.Noop)
	assert.Nil(t, res.Advance)

	types := outboxTypes(t, h)
	assert.Contains(t, types, model.EventTreatmentStarted)
	assert.Contains(t, types, model.EventTreatmentCompleted)
	assert.Contains(t, types, model.EventAppointmentCalled)
}

func TestTransitionToTreatmentGoesThroughClaim(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	appt, _ := h.CheckIn(t, "Asha Rao", 0)

	res, err := h.Engine.Transition(ctx, appt.ID, model.AppointmentStatusInTreatment, "", "reception")
	require.NoError(t, err)
	require.NotNil(t, res.Claim)
	assert.Equal(t, model.AppointmentStatusInTreatment, h.Status(t, appt.ID))

	booked := h.Book(t, "Not Checked In", time.Hour)
	_, err = h.Engine.Transition(ctx, booked.ID, model.AppointmentStatusInTreatment, "", "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestTransitionRejectsSkips(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	appt := h.Book(t, "Asha Rao", 0)

	_, err := h.Engine.Transition(ctx, appt.ID, model.AppointmentStatusCalled, "", "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
	assert.Equal(t, model.AppointmentStatusBooked, h.Status(t, appt.ID))

	res, err := h.Engine.Transition(ctx, appt.ID, model.AppointmentStatusBooked, "", "reception")
	require.NoError(t, err)
	assert.True(t, res.Noop)
}

func TestCancelReleasesResourcesAndAdvances(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")

	first, entry := h.CheckIn(t, "Asha Rao", 0)
	second, _ := h.CheckIn(t, "Vikram Shah", 0)
	_, err := h.Engine.CallPatient(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)

	res, err := h.Engine.Transition(ctx, first.ID, model.AppointmentStatusCancelled, "patient felt unwell", "reception")
	require.NoError(t, err)
	require.NotNil(t, res.Appointment.CancelReason)
	assert.Equal(t, "patient felt unwell", *res.Appointment.CancelReason)
	require.NotNil(t, res.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, res.Advance.Outcome)

	assert.Equal(t, model.AvailabilityAvailable, h.Dentist(t, dentist.ID).Availability)
	stored, err := h.Repos.Queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Bound())
	assert.Equal(t, model.QueueStatusCancelled, stored.QueueStatus)
	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, second.ID))
}

func TestCancelWaitingDoesNotAdvance(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	first, _ := h.CheckIn(t, "Asha Rao", 0)
	second, _ := h.CheckIn(t, "Vikram Shah", 0)

	res, err := h.Engine.Transition(ctx, first.ID, model.AppointmentStatusCancelled, "", "reception")
	require.NoError(t, err)
	assert.Nil(t, res.Advance)
	assert.Equal(t, model.AppointmentStatusCheckedIn, h.Status(t, second.ID))
}

func TestWalkInIsCalledWhenQueueIdle(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()

	res, err := h.Engine.CreateWalkIn(ctx, &model.WalkInRequest{
		PatientName:    "Rahul Das",
		PatientPhone:   "+91 98450 55555",
		ClinicLocation: apptest.Location,
	}, "reception")
	require.NoError(t, err)
	assert.True(t, res.Appointment.WalkIn)
	require.NotNil(t, res.QueueEntry)
	require.NotNil(t, res.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, res.Advance.Outcome)
	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, res.Appointment.ID))
}

func TestWalkInWaitsBehindActivePatient(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	busy, _ := h.CheckIn(t, "Asha Rao", 0)
	_, err := h.Engine.Transition(ctx, busy.ID, model.AppointmentStatusCalled, "", "reception")
	require.NoError(t, err)

	res, err := h.Engine.CreateWalkIn(ctx, &model.WalkInRequest{
		PatientName:    "Rahul Das",
		PatientPhone:   "+91 98450 55555",
		ClinicLocation: apptest.Location,
	}, "reception")
	require.NoError(t, err)
	require.NotNil(t, res.Advance)
	assert.Equal(t, orchestrator.OutcomeBusy, res.Advance.Outcome)
	assert.Equal(t, model.AppointmentStatusCheckedIn, h.Status(t, res.Appointment.ID))
}

func TestForceCompleteReplaysWithoutClaiming(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	appt := h.Book(t, "Asha Rao", -2*time.Hour)

	res, err := h.Engine.ForceComplete(ctx, appt.ID, "paper chart reconciled", "admin")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, res.Appointment.Status)

	var path []model.AppointmentStatus
	for _, s := range res.Steps {
		path = append(path, s.To)
	}
	assert.Equal(t, []model.AppointmentStatus{
		model.AppointmentStatusConfirmed,
		model.AppointmentStatusCheckedIn,
		model.AppointmentStatusWaiting,
		model.AppointmentStatusInTreatment,
		model.AppointmentStatusCompleted,
	}, path)

	assert.Equal(t, model.AvailabilityAvailable, h.Dentist(t, dentist.ID).Availability)
	require.NotNil(t, res.Appointment.TreatmentStartedAt)
	require.NotNil(t, res.Appointment.CheckedInAt)

	logs, err := h.Audit.List(ctx, model.AuditEntityAppointment, appt.ID)
	require.NoError(t, err)
	var forced int
	for _, l := range logs {
		if l.Action == model.AuditActionForceComplete {
			forced++
		}
	}
	assert.Equal(t, 5, forced)
}

func TestForceCompleteQueuesOnScheduledDay(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	today, _ := h.CheckIn(t, "Vikram Shah", 0)
	stale := h.Book(t, "Asha Rao", -7*24*time.Hour)

	_, err := h.Engine.ForceComplete(ctx, stale.ID, "paper chart reconciled", "admin")
	require.NoError(t, err)

	entry, err := h.Queue.EntryFor(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-10-05", entry.QueueDate.Format(model.DateLayout))
	assert.Equal(t, 1, entry.QueueNumber)

	board, err := h.Engine.QueueBoard(ctx, apptest.Location, time.Time{})
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, today.ID, board[0].Entry.AppointmentID)

	board, err = h.Engine.QueueBoard(ctx, apptest.Location, apptest.Now.AddDate(0, 0, -7))
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, stale.ID, board[0].Entry.AppointmentID)

	// A regular check-in still numbers on today's board.
	_, entry2 := h.CheckIn(t, "Meera Nair", -7*24*time.Hour)
	assert.Equal(t, apptest.Now.Format(model.DateLayout), entry2.QueueDate.Format(model.DateLayout))
	assert.Equal(t, 2, entry2.QueueNumber)
}

func TestCompleteTreatmentReplaysStaleAppointment(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	appt, _ := h.CheckIn(t, "Asha Rao", -time.Hour)

	res, err := h.Engine.CompleteTreatment(ctx, appt.ID, "dr-iyer")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, res.Appointment.Status)

	cancelled := h.Book(t, "Gone", 0)
	_, err = h.Engine.Transition(ctx, cancelled.ID, model.AppointmentStatusCancelled, "", "reception")
	require.NoError(t, err)
	_, err = h.Engine.CompleteTreatment(ctx, cancelled.ID, "dr-iyer")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

type failingAppointments struct {
	repository.AppointmentRepository
	failOn model.AppointmentStatus
}

func (f *failingAppointments) UpdateStatus(ctx context.Context, appt *model.Appointment, from model.AppointmentStatus) error {
	if appt.Status == f.failOn {
		return errors.New("disk full")
	}
	return f.AppointmentRepository.UpdateStatus(ctx, appt, from)
}

func TestForceCompleteReportsWhereItStopped(t *testing.T) {
	h := apptest.New(t, apptest.WrapRepos(func(r *app.Repositories) {
		r.Appointments = &failingAppointments{AppointmentRepository: r.Appointments, failOn: model.AppointmentStatusInTreatment}
	}))
	ctx := context.Background()
	appt := h.Book(t, "Asha Rao", -2*time.Hour)

	_, err := h.Engine.ForceComplete(ctx, appt.ID, "", "admin")
	require.Error(t, err)

	var replayErr *appointment.ReplayError
	require.ErrorAs(t, err, &replayErr)
	assert.Equal(t, model.AppointmentStatusWaiting, replayErr.Reached)
	assert.Equal(t, model.AppointmentStatusWaiting, replayErr.Failed.From)
	assert.Equal(t, model.AppointmentStatusInTreatment, replayErr.Failed.To)

	// Committed steps stay committed.
	assert.Equal(t, model.AppointmentStatusWaiting, h.Status(t, appt.ID))
	entry, err := h.Queue.EntryFor(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusWaiting, entry.QueueStatus)
}

// racingAppointments lets another request finish between the unlocked read
// and the locked re-read of one Get.
type racingAppointments struct {
	repository.AppointmentRepository
	onGet func()
}

func (r *racingAppointments) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	appt, err := r.AppointmentRepository.Get(ctx, id)
	if fn := r.onGet; fn != nil && err == nil {
		r.onGet = nil
		fn()
	}
	return appt, err
}

func TestConcurrentCompletionSettlesAsNoop(t *testing.T) {
	racing := &racingAppointments{}
	h := apptest.New(t, apptest.WrapRepos(func(r *app.Repositories) {
		racing.AppointmentRepository = r.Appointments
		r.Appointments = racing
	}))
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	appt, entry := h.CheckIn(t, "Asha Rao", 0)
	waiting, _ := h.CheckIn(t, "Vikram Shah", 5*time.Minute)
	_, err := h.Engine.CallPatient(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)

	var first *appointment.Result
	racing.onGet = func() {
		var err error
		first, err = h.Engine.CompleteTreatment(ctx, appt.ID, "reception-1")
		require.NoError(t, err)
	}

	res, err := h.Engine.Transition(ctx, appt.ID, model.AppointmentStatusCompleted, "", "reception-2")
	require.NoError(t, err)
	assert.True(t, res.Noop)
	assert.Nil(t, res.Advance)
	assert.Equal(t, model.AppointmentStatusCompleted, res.Appointment.Status)

	require.NotNil(t, first)
	require.NotNil(t, first.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, first.Advance.Outcome)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.Transitions.WithLabelValues(
		string(model.AppointmentStatusInTreatment), string(model.AppointmentStatusCompleted))))
	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, waiting.ID))
	assert.Equal(t, model.AvailabilityAvailable, h.Dentist(t, dentist.ID).Availability)

	logs, err := h.Audit.List(ctx, model.AuditEntityAppointment, appt.ID)
	require.NoError(t, err)
	completions := 0
	for _, l := range logs {
		if l.ActorID == "reception-2" {
			t.Errorf("losing request wrote audit entry %s", l.Action)
		}
		if l.ActorID == "reception-1" {
			completions++
		}
	}
	assert.Equal(t, 1, completions)
}

func TestOverrideReopensTerminal(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	appt, _ := h.CheckIn(t, "Asha Rao", 0)
	_, err := h.Engine.Transition(ctx, appt.ID, model.AppointmentStatusNoShow, "did not answer", "reception")
	require.NoError(t, err)

	_, err = h.Engine.Override(ctx, appt.ID, model.AppointmentStatusBooked, "", "admin")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	res, err := h.Engine.Override(ctx, appt.ID, model.AppointmentStatusBooked, "arrived late, front desk error", "admin")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusBooked, res.Appointment.Status)
	assert.Nil(t, res.Appointment.CheckedInAt)
	assert.Nil(t, res.Appointment.CancelReason)

	entry, err := h.Queue.EntryFor(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, entry.QueueStatus)

	// The reopened appointment can check in again and keeps its number.
	again, err := h.Engine.CheckIn(ctx, appt.ID, "reception")
	require.NoError(t, err)
	assert.Equal(t, entry.QueueNumber, again.QueueEntry.QueueNumber)

	_, err = h.Engine.Override(ctx, appt.ID, model.AppointmentStatusBooked, "again", "admin")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidTransition))
}

func TestSoftDeleteRules(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()

	called, _ := h.CheckIn(t, "Asha Rao", 0)
	_, err := h.Engine.Transition(ctx, called.ID, model.AppointmentStatusCalled, "", "reception")
	require.NoError(t, err)
	assert.True(t, apperrors.IsKind(h.Engine.SoftDelete(ctx, called.ID, "admin"), apperrors.KindValidation))

	booked := h.Book(t, "Vikram Shah", time.Hour)
	require.NoError(t, h.Engine.SoftDelete(ctx, booked.ID, "admin"))
	_, err = h.Engine.Get(ctx, booked.ID)
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

	restored, err := h.Engine.Restore(ctx, booked.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, booked.ID, restored.ID)

	_, err = h.Engine.Restore(ctx, booked.ID, "admin")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestPauseBlocksCallAndResumeAdvances(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	appt, entry := h.CheckIn(t, "Asha Rao", 0)

	state, err := h.Engine.PauseQueue(ctx, apptest.Location, "reception")
	require.NoError(t, err)
	assert.True(t, state.Settings.IsPaused)

	_, err = h.Engine.CallPatient(ctx, entry.ID, apptest.Location, "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindQueuePaused))

	state, err = h.Engine.ResumeQueue(ctx, apptest.Location, "reception")
	require.NoError(t, err)
	assert.False(t, state.Settings.IsPaused)
	require.NotNil(t, state.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, state.Advance.Outcome)
	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, appt.ID))

	_, err = h.Engine.PauseQueue(ctx, "", "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	assert.Contains(t, outboxTypes(t, h), model.EventQueuePaused)
}

func TestCompletionWhilePausedWaitsForResume(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	first, entry := h.CheckIn(t, "Asha Rao", 0)
	second, _ := h.CheckIn(t, "Vikram Shah", 5*time.Minute)
	_, err := h.Engine.CallPatient(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)

	_, err = h.Engine.PauseQueue(ctx, apptest.Location, "reception")
	require.NoError(t, err)

	res, err := h.Engine.CompleteTreatment(ctx, first.ID, "dr-iyer")
	require.NoError(t, err)
	assert.Equal(t, model.AppointmentStatusCompleted, res.Appointment.Status)
	require.NotNil(t, res.Advance)
	assert.Equal(t, orchestrator.OutcomePaused, res.Advance.Outcome)
	assert.Equal(t, model.AppointmentStatusWaiting, h.Status(t, second.ID))

	state, err := h.Engine.ResumeQueue(ctx, apptest.Location, "reception")
	require.NoError(t, err)
	require.NotNil(t, state.Advance)
	assert.Equal(t, orchestrator.OutcomeCalled, state.Advance.Outcome)
	assert.Equal(t, second.ID, state.Advance.AppointmentID)
	assert.Equal(t, model.AppointmentStatusCalled, h.Status(t, second.ID))
}

func TestQueueBoardShowsAppointmentStatus(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	first, _ := h.CheckIn(t, "Asha Rao", 0)
	h.CheckIn(t, "Vikram Shah", 0)
	_, err := h.Engine.Transition(ctx, first.ID, model.AppointmentStatusCalled, "", "reception")
	require.NoError(t, err)

	board, err := h.Engine.QueueBoard(ctx, apptest.Location, time.Time{})
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, model.AppointmentStatusCalled, board[0].AppointmentStatus)
	assert.Equal(t, model.QueueStatusCalled, board[0].Entry.QueueStatus)
	assert.Equal(t, "Vikram Shah", board[1].PatientName)
}

func outboxTypes(t *testing.T, h *apptest.Harness) []string {
	t.Helper()
	events, err := h.Repos.Outbox.GetPendingEventsWithLock(context.Background(), 100)
	require.NoError(t, err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}
