package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectQueueStatus(t *testing.T) {
	tests := map[AppointmentStatus]QueueStatus{
		AppointmentStatusBooked:            QueueStatusPending,
		AppointmentStatusConfirmed:         QueueStatusPending,
		AppointmentStatusCheckedIn:         QueueStatusWaiting,
		AppointmentStatusWaiting:           QueueStatusWaiting,
		AppointmentStatusCalled:            QueueStatusCalled,
		AppointmentStatusInTreatment:       QueueStatusInTreatment,
		AppointmentStatusCompleted:         QueueStatusCompleted,
		AppointmentStatusFeedbackScheduled: QueueStatusCompleted,
		AppointmentStatusFeedbackSent:      QueueStatusCompleted,
		AppointmentStatusCancelled:         QueueStatusCancelled,
		AppointmentStatusNoShow:            QueueStatusSkipped,
	}
	for _, s := range AllAppointmentStatuses {
		want, ok := tests[s]
		require.True(t, ok, "status %s has no expected projection", s)
		assert.Equal(t, want, ProjectQueueStatus(s), s)
	}
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, AppointmentStatusCalled.Active())
	assert.True(t, AppointmentStatusInTreatment.Active())
	assert.False(t, AppointmentStatusWaiting.Active())

	assert.True(t, AppointmentStatusNoShow.Terminal())
	assert.True(t, AppointmentStatusFeedbackSent.Terminal())
	assert.False(t, AppointmentStatusInTreatment.Terminal())

	assert.False(t, AppointmentStatus("lost").Valid())
}

func TestWeeklyScheduleCovers(t *testing.T) {
	s := WeeklySchedule{
		{Weekday: time.Monday, Start: "09:00", End: "13:00"},
		{Weekday: time.Monday, Start: "14:00", End: "18:00"},
	}
	monday := time.Date(2026, 10, 12, 0, 0, 0, 0, time.UTC)

	assert.True(t, s.Covers(monday.Add(9*time.Hour)))
	assert.True(t, s.Covers(monday.Add(15*time.Hour+30*time.Minute)))
	assert.False(t, s.Covers(monday.Add(13*time.Hour+30*time.Minute)), "lunch gap")
	assert.False(t, s.Covers(monday.Add(18*time.Hour)), "end is exclusive")
	assert.False(t, s.Covers(monday.AddDate(0, 0, 1).Add(10*time.Hour)), "tuesday")
}

func TestLeavePeriodsIncludes(t *testing.T) {
	l := LeavePeriods{{From: "2026-10-10", To: "2026-10-12"}}
	assert.True(t, l.Includes(time.Date(2026, 10, 10, 8, 0, 0, 0, time.UTC)))
	assert.True(t, l.Includes(time.Date(2026, 10, 12, 23, 0, 0, 0, time.UTC)))
	assert.False(t, l.Includes(time.Date(2026, 10, 13, 0, 0, 0, 0, time.UTC)))
}

func TestScheduleRoundTripsThroughDriver(t *testing.T) {
	s := WeeklySchedule{{Weekday: time.Friday, Start: "08:00", End: "12:00"}}
	v, err := s.Value()
	require.NoError(t, err)

	var back WeeklySchedule
	require.NoError(t, back.Scan(v))
	assert.Equal(t, s, back)

	var empty LeavePeriods
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)
}

func TestDayBoundsUsesClinicTimezone(t *testing.T) {
	loc := time.FixedZone("clinic", 5*3600+1800)
	// 20:00 UTC is already the next day at +05:30.
	start, end := DayBounds(time.Date(2026, 10, 16, 20, 0, 0, 0, time.UTC), loc)
	assert.Equal(t, 17, start.Day())
	assert.Equal(t, 24*time.Hour, end.Sub(start))
}

func TestPagination(t *testing.T) {
	assert.Equal(t, 50, Pagination{}.Limit())
	assert.Equal(t, 0, Pagination{Page: 1, PageSize: 10}.Offset())
	assert.Equal(t, 20, Pagination{Page: 3, PageSize: 10}.Offset())
	assert.Equal(t, 50, Pagination{PageSize: 1000}.Limit())
}
