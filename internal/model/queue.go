package model

import (
	"time"

	"github.com/google/uuid"
)

type QueueStatus string

const (
	QueueStatusPending     QueueStatus = "pending"
	QueueStatusWaiting     QueueStatus = "waiting"
	QueueStatusCalled      QueueStatus = "called"
	QueueStatusInTreatment QueueStatus = "in_treatment"
	QueueStatusCompleted   QueueStatus = "completed"
	QueueStatusCancelled   QueueStatus = "cancelled"
	QueueStatusSkipped     QueueStatus = "skipped"
)

// ProjectQueueStatus derives a queue entry's mirrored status from the owning
// appointment's status. It is the only way a queue status is produced.
func ProjectQueueStatus(s AppointmentStatus) QueueStatus {
	switch s {
	case AppointmentStatusCheckedIn, AppointmentStatusWaiting:
		return QueueStatusWaiting
	case AppointmentStatusCalled:
		return QueueStatusCalled
	case AppointmentStatusInTreatment:
		return QueueStatusInTreatment
	case AppointmentStatusCompleted, AppointmentStatusFeedbackScheduled, AppointmentStatusFeedbackSent:
		return QueueStatusCompleted
	case AppointmentStatusCancelled:
		return QueueStatusCancelled
	case AppointmentStatusNoShow:
		return QueueStatusSkipped
	default:
		return QueueStatusPending
	}
}

type QueueEntry struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	AppointmentID  uuid.UUID   `db:"appointment_id" json:"appointment_id"`
	ClinicLocation string      `db:"clinic_location" json:"clinic_location"`
	QueueDate      time.Time   `db:"queue_date" json:"queue_date"`
	QueueNumber    int         `db:"queue_number" json:"queue_number"`
	QueueStatus    QueueStatus `db:"queue_status" json:"queue_status"`
	DentistID      *uuid.UUID  `db:"dentist_id" json:"dentist_id,omitempty"`
	RoomID         *uuid.UUID  `db:"room_id" json:"room_id,omitempty"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at" json:"updated_at"`
}

func (e *QueueEntry) Clone() *QueueEntry {
	if e == nil {
		return nil
	}
	c := *e
	if e.DentistID != nil {
		id := *e.DentistID
		c.DentistID = &id
	}
	if e.RoomID != nil {
		id := *e.RoomID
		c.RoomID = &id
	}
	return &c
}

// Bound reports whether the entry holds any resource binding.
func (e *QueueEntry) Bound() bool {
	return e.DentistID != nil || e.RoomID != nil
}

// QueueBoardItem joins a queue entry with the appointment fields staff need
// on the board. Status always comes from the appointment.
type QueueBoardItem struct {
	Entry             *QueueEntry       `json:"entry"`
	AppointmentStatus AppointmentStatus `json:"appointment_status"`
	PatientName       string            `json:"patient_name"`
	ScheduledAt       time.Time         `json:"scheduled_at"`
	VisitCode         string            `json:"visit_code"`
}

// ClinicQueueSettings is the per-location pause state.
type ClinicQueueSettings struct {
	ClinicLocation string     `json:"clinic_location"`
	IsPaused       bool       `json:"is_paused"`
	PausedAt       *time.Time `json:"paused_at,omitempty"`
	UpdatedBy      string     `json:"updated_by,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

type ClinicLocationRequest struct {
	ClinicLocation string `json:"clinic_location" binding:"required,max=100"`
}
