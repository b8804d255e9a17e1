package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusBooked            AppointmentStatus = "booked"
	AppointmentStatusConfirmed         AppointmentStatus = "confirmed"
	AppointmentStatusCheckedIn         AppointmentStatus = "checked_in"
	AppointmentStatusWaiting           AppointmentStatus = "waiting"
	AppointmentStatusCalled            AppointmentStatus = "called"
	AppointmentStatusInTreatment       AppointmentStatus = "in_treatment"
	AppointmentStatusCompleted         AppointmentStatus = "completed"
	AppointmentStatusFeedbackScheduled AppointmentStatus = "feedback_scheduled"
	AppointmentStatusFeedbackSent      AppointmentStatus = "feedback_sent"
	AppointmentStatusCancelled         AppointmentStatus = "cancelled"
	AppointmentStatusNoShow            AppointmentStatus = "no_show"
)

var AllAppointmentStatuses = []AppointmentStatus{
	AppointmentStatusBooked,
	AppointmentStatusConfirmed,
	AppointmentStatusCheckedIn,
	AppointmentStatusWaiting,
	AppointmentStatusCalled,
	AppointmentStatusInTreatment,
	AppointmentStatusCompleted,
	AppointmentStatusFeedbackScheduled,
	AppointmentStatusFeedbackSent,
	AppointmentStatusCancelled,
	AppointmentStatusNoShow,
}

func (s AppointmentStatus) Valid() bool {
	for _, v := range AllAppointmentStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s only moves on through its feedback sub-states or
// an administrative override.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusFeedbackScheduled, AppointmentStatusFeedbackSent,
		AppointmentStatusCancelled, AppointmentStatusNoShow:
		return true
	}
	return false
}

// Active reports whether s occupies the location's single active call slot.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusCalled || s == AppointmentStatusInTreatment
}

type Appointment struct {
	Base
	PatientName        string            `db:"patient_name" json:"patient_name"`
	PatientPhone       string            `db:"patient_phone" json:"patient_phone"`
	PatientEmail       *string           `db:"patient_email" json:"patient_email,omitempty"`
	ServiceID          *uuid.UUID        `db:"service_id" json:"service_id,omitempty"`
	DentistID          *uuid.UUID        `db:"dentist_id" json:"dentist_id,omitempty"`
	ClinicLocation     string            `db:"clinic_location" json:"clinic_location"`
	ScheduledAt        time.Time         `db:"scheduled_at" json:"scheduled_at"`
	Status             AppointmentStatus `db:"status" json:"status"`
	CheckedInAt        *time.Time        `db:"checked_in_at" json:"checked_in_at,omitempty"`
	CalledAt           *time.Time        `db:"called_at" json:"called_at,omitempty"`
	TreatmentStartedAt *time.Time        `db:"treatment_started_at" json:"treatment_started_at,omitempty"`
	TreatmentEndedAt   *time.Time        `db:"treatment_ended_at" json:"treatment_ended_at,omitempty"`
	VisitCode          string            `db:"visit_code" json:"visit_code"`
	WalkIn             bool              `db:"walk_in" json:"walk_in"`
	Notes              string            `db:"notes" json:"notes,omitempty"`
	CancelReason       *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

// Clone returns a copy safe to mutate without touching the original.
func (a *Appointment) Clone() *Appointment {
	if a == nil {
		return nil
	}
	c := *a
	c.DeletedAt = cloneTime(a.DeletedAt)
	c.CheckedInAt = cloneTime(a.CheckedInAt)
	c.CalledAt = cloneTime(a.CalledAt)
	c.TreatmentStartedAt = cloneTime(a.TreatmentStartedAt)
	c.TreatmentEndedAt = cloneTime(a.TreatmentEndedAt)
	if a.DentistID != nil {
		id := *a.DentistID
		c.DentistID = &id
	}
	if a.ServiceID != nil {
		id := *a.ServiceID
		c.ServiceID = &id
	}
	if a.PatientEmail != nil {
		e := *a.PatientEmail
		c.PatientEmail = &e
	}
	if a.CancelReason != nil {
		r := *a.CancelReason
		c.CancelReason = &r
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

type CreateAppointmentRequest struct {
	PatientName    string  `json:"patient_name" binding:"required,max=200"`
	PatientPhone   string  `json:"patient_phone" binding:"required,phone"`
	PatientEmail   *string `json:"patient_email" binding:"omitempty,email"`
	ServiceID      *string `json:"service_id" binding:"omitempty,uuid"`
	DentistID      *string `json:"dentist_id" binding:"omitempty,uuid"`
	ClinicLocation string  `json:"clinic_location" binding:"required,max=100"`
	Date           string  `json:"date" binding:"required,clinicdate"`
	Time           string  `json:"time" binding:"required,clinictime"`
	Notes          string  `json:"notes" binding:"max=1000"`
}

type WalkInRequest struct {
	PatientName    string  `json:"patient_name" binding:"required,max=200"`
	PatientPhone   string  `json:"patient_phone" binding:"required,phone"`
	PatientEmail   *string `json:"patient_email" binding:"omitempty,email"`
	ServiceID      *string `json:"service_id" binding:"omitempty,uuid"`
	ClinicLocation string  `json:"clinic_location" binding:"required,max=100"`
	Notes          string  `json:"notes" binding:"max=1000"`
}

type TransitionRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,appointmentstatus"`
	Reason string            `json:"reason" binding:"max=500"`
}

type OverrideRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,appointmentstatus"`
	Reason string            `json:"reason" binding:"required,max=500"`
}

type ForceCompleteRequest struct {
	Reason string `json:"reason" binding:"max=500"`
}

type AppointmentFilter struct {
	ClinicLocation string
	Status         AppointmentStatus
	From           *time.Time
	To             *time.Time
	IncludeDeleted bool
	Pagination
}
