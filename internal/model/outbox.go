package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusProcessed OutboxStatus = "processed"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// Domain signals written to the outbox after a commit.
const (
	EventAppointmentCheckedIn = "appointment.checked_in"
	EventAppointmentCalled    = "appointment.called"
	EventTreatmentStarted     = "appointment.treatment_started"
	EventTreatmentCompleted   = "appointment.completed"
	EventAppointmentCancelled = "appointment.cancelled"
	EventQueuePaused          = "queue.paused"
	EventQueueResumed         = "queue.resumed"
)

type OutboxEvent struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	EventType    string          `db:"event_type" json:"event_type"`
	Payload      json.RawMessage `db:"payload" json:"payload"`
	Status       OutboxStatus    `db:"status" json:"status"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	ProcessedAt  *time.Time      `db:"processed_at" json:"processed_at,omitempty"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
	RetryCount   int             `db:"retry_count" json:"retry_count"`
	RetryAt      *time.Time      `db:"retry_at" json:"retry_at,omitempty"`
}

// AppointmentSignal is the payload of every appointment.* event.
type AppointmentSignal struct {
	AppointmentID  uuid.UUID         `json:"appointment_id"`
	ClinicLocation string            `json:"clinic_location"`
	Status         AppointmentStatus `json:"status"`
	QueueNumber    int               `json:"queue_number,omitempty"`
	DentistID      *uuid.UUID        `json:"dentist_id,omitempty"`
	RoomID         *uuid.UUID        `json:"room_id,omitempty"`
	ActorID        string            `json:"actor_id"`
	OccurredAt     time.Time         `json:"occurred_at"`
}
