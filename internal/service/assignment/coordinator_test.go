package assignment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/app/apptest"
	"github.com/jwalitptl/clinic-queue/internal/model"
	apperrors "github.com/jwalitptl/clinic-queue/pkg/errors"
)

func TestClaimBindsDentistAndRoom(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	room := h.AddRoom(t, "Operatory 1")
	appt, entry := h.CheckIn(t, "Asha Rao", 0)

	claim, err := h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)

	assert.Equal(t, model.AppointmentStatusCheckedIn, claim.From)
	assert.Equal(t, model.AppointmentStatusInTreatment, claim.Appointment.Status)
	assert.Equal(t, dentist.ID, claim.Dentist.ID)
	assert.Equal(t, room.ID, claim.Room.ID)
	require.NotNil(t, claim.Appointment.TreatmentStartedAt)
	assert.True(t, apptest.Now.Equal(*claim.Appointment.TreatmentStartedAt))

	assert.Equal(t, model.AppointmentStatusInTreatment, h.Status(t, appt.ID))
	assert.Equal(t, model.AvailabilityBusy, h.Dentist(t, dentist.ID).Availability)

	stored, err := h.Repos.Queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusInTreatment, stored.QueueStatus)
	require.NotNil(t, stored.RoomID)
	assert.Equal(t, room.ID, *stored.RoomID)

	gotRoom, err := h.Repos.Rooms.Get(ctx, room.ID)
	require.NoError(t, err)
	assert.True(t, gotRoom.Occupied)

	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.ClaimOutcomes.WithLabelValues("success")))

	assert.Eventually(t, func() bool {
		for _, p := range h.Broker.Sent() {
			if p.Channel == "notifications" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond, "patient is notified")
}

func TestClaimWithoutDentistWritesNothing(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddRoom(t, "Operatory 1")
	appt, entry := h.CheckIn(t, "Asha Rao", 0)

	_, err := h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindResourceUnavailable, appErr.Kind)
	assert.Equal(t, apperrors.ResourceDentist, appErr.Resource)

	// The checked_in -> waiting hop was rolled back with the rest.
	assert.Equal(t, model.AppointmentStatusCheckedIn, h.Status(t, appt.ID))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.ClaimOutcomes.WithLabelValues("dentist_unavailable")))
}

func TestClaimWithoutRoomReleasesDentist(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	dentist := h.AddDentist(t, "Dr. Iyer")
	appt, entry := h.CheckIn(t, "Asha Rao", 0)

	_, err := h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ResourceRoom, appErr.Resource)

	assert.Equal(t, model.AvailabilityAvailable, h.Dentist(t, dentist.ID).Availability)
	assert.Equal(t, model.AppointmentStatusCheckedIn, h.Status(t, appt.ID))

	stored, err := h.Repos.Queue.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, stored.Bound())
}

func TestConcurrentClaimsShareTheLastRoom(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddDentist(t, "Dr. Menon")
	h.AddRoom(t, "Operatory 1")
	_, first := h.CheckIn(t, "Asha Rao", 0)
	_, second := h.CheckIn(t, "Vikram Shah", 10*time.Minute)

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	for i, id := range []*model.QueueEntry{first, second} {
		wg.Add(1)
		go func(i int, e *model.QueueEntry) {
			defer wg.Done()
			_, errs[i] = h.Coordinator.Claim(ctx, e.ID, apptest.Location, "reception")
		}(i, id)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		lost++
		appErr, ok := apperrors.As(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ResourceRoom, appErr.Resource)
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	busy := 0
	for _, d := range mustDentists(t, h) {
		if d.Availability == model.AvailabilityBusy {
			busy++
		}
	}
	assert.Equal(t, 1, busy, "loser's dentist is back to available")
}

func TestSecondClaimWaitsForDentistWhileRoomFree(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	first := h.AddRoom(t, "Operatory 1")
	second := h.AddRoom(t, "Operatory 2")
	_, e1 := h.CheckIn(t, "Asha Rao", 0)
	appt2, e2 := h.CheckIn(t, "Vikram Shah", 5*time.Minute)

	claim, err := h.Coordinator.Claim(ctx, e1.ID, apptest.Location, "reception")
	require.NoError(t, err)
	freeRoom := second.ID
	if claim.Room.ID == second.ID {
		freeRoom = first.ID
	}

	_, err = h.Coordinator.Claim(ctx, e2.ID, apptest.Location, "reception")
	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindResourceUnavailable, appErr.Kind)
	assert.Equal(t, apperrors.ResourceDentist, appErr.Resource)

	room, err := h.Repos.Rooms.Get(ctx, freeRoom)
	require.NoError(t, err)
	assert.False(t, room.Occupied)
	assert.NotEqual(t, model.AppointmentStatusInTreatment, h.Status(t, appt2.ID))
}

func TestClaimRefusedWhilePaused(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	_, entry := h.CheckIn(t, "Asha Rao", 0)

	_, err := h.Settings.SetPaused(ctx, apptest.Location, true, "reception")
	require.NoError(t, err)

	_, err = h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindQueuePaused))
}

func TestSecondClaimConflicts(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddDentist(t, "Dr. Menon")
	h.AddRoom(t, "Operatory 1")
	h.AddRoom(t, "Operatory 2")
	_, entry := h.CheckIn(t, "Asha Rao", 0)

	_, err := h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)

	_, err = h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindConcurrencyConflict))

	busy := 0
	for _, d := range mustDentists(t, h) {
		if d.Availability == model.AvailabilityBusy {
			busy++
		}
	}
	assert.Equal(t, 1, busy)
}

func TestClaimRejectsOtherLocationAndUnqueued(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddDentist(t, "Dr. Iyer")
	h.AddRoom(t, "Operatory 1")
	_, entry := h.CheckIn(t, "Asha Rao", 0)

	_, err := h.Coordinator.Claim(ctx, entry.ID, "south", "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))

	_, err = h.Coordinator.Claim(ctx, h.Book(t, "Later", time.Hour).ID, apptest.Location, "reception")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound), "appointment id is not a queue entry id")
}

func TestClaimPrefersDentistOnShift(t *testing.T) {
	h := apptest.New(t)
	ctx := context.Background()
	h.AddRoom(t, "Operatory 1")

	// Sorted first by name, but on leave today.
	_, err := h.Resources.CreateDentist(ctx, &model.CreateDentistRequest{
		Name:           "Dr. Arora",
		ClinicLocation: apptest.Location,
		Leaves:         model.LeavePeriods{{From: "2026-10-12", To: "2026-10-12"}},
	}, "admin")
	require.NoError(t, err)
	onShift, err := h.Resources.CreateDentist(ctx, &model.CreateDentistRequest{
		Name:           "Dr. Bose",
		ClinicLocation: apptest.Location,
		Schedule:       model.WeeklySchedule{{Weekday: time.Monday, Start: "09:00", End: "17:00"}},
	}, "admin")
	require.NoError(t, err)

	_, entry := h.CheckIn(t, "Asha Rao", 0)
	claim, err := h.Coordinator.Claim(ctx, entry.ID, apptest.Location, "reception")
	require.NoError(t, err)
	assert.Equal(t, onShift.ID, claim.Dentist.ID)
}

func mustDentists(t *testing.T, h *apptest.Harness) []*model.Dentist {
	t.Helper()
	list, err := h.Repos.Dentists.List(context.Background(), apptest.Location)
	require.NoError(t, err)
	return list
}
