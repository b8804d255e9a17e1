package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-queue/internal/model"
	"github.com/jwalitptl/clinic-queue/internal/repository"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

func TestAppointmentUpdateStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	appt := &model.Appointment{
		Base:   model.Base{ID: uuid.New()},
		Status: model.AppointmentStatusCalled,
	}

	tests := []struct {
		name     string
		affected int64
		want     error
	}{
		{"swapped", 1, nil},
		{"status moved underneath", 0, repository.ErrStatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("UPDATE appointments").
				WithArgs(model.AppointmentStatusCalled, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					appt.ID, model.AppointmentStatusWaiting).
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.UpdateStatus(context.Background(), appt, model.AppointmentStatusWaiting)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentGetNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	id := uuid.New()
	mock.ExpectQuery("SELECT .* FROM appointments WHERE id = \\$1").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), id)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentCountActive(t *testing.T) {
	db, mock := newMock(t)
	repo := NewAppointmentRepository(db)

	start := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM appointments").
		WithArgs("north", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	n, err := repo.CountActive(context.Background(), "north", start, end)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorCommitsAndRollsBack(t *testing.T) {
	db, mock := newMock(t)
	tx := NewTransactor(db)
	dentists := NewDentistRepository(db)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE dentists SET availability = 'busy'").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return dentists.MarkBusy(ctx, id)
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE dentists SET availability = 'busy'").
		WithArgs(id).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err = tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return dentists.MarkBusy(ctx, id)
	})
	assert.ErrorIs(t, err, repository.ErrResourceTaken)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactorJoinsOuterTransaction(t *testing.T) {
	db, mock := newMock(t)
	tx := NewTransactor(db)

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := tx.WithinTx(context.Background(), func(ctx context.Context) error {
		return tx.WithinTx(ctx, func(context.Context) error { return boom })
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueNextNumberTakesAdvisoryLock(t *testing.T) {
	db, mock := newMock(t)
	repo := NewQueueRepository(db)
	day := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs("north", "2026-10-17").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(queue_number\\), 0\\) \\+ 1").
		WithArgs("north", "2026-10-17").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(4))

	n, err := repo.NextNumber(context.Background(), "north", day)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxUpdateStatusMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewOutboxRepository(db)
	id := uuid.New()

	mock.ExpectExec("UPDATE outbox_events").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus(context.Background(), id, model.OutboxStatusProcessed, nil, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
