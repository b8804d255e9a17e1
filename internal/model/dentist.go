package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type Availability string

const (
	AvailabilityAvailable Availability = "available"
	AvailabilityBusy      Availability = "busy"
	AvailabilityOnBreak   Availability = "on_break"
	AvailabilityOff       Availability = "off"
)

func (a Availability) Valid() bool {
	switch a {
	case AvailabilityAvailable, AvailabilityBusy, AvailabilityOnBreak, AvailabilityOff:
		return true
	}
	return false
}

// ShiftWindow is one weekday's working hours in HH:MM.
type ShiftWindow struct {
	Weekday time.Weekday `json:"weekday" binding:"min=0,max=6"`
	Start   string       `json:"start" binding:"required,clinictime"`
	End     string       `json:"end" binding:"required,clinictime"`
}

// WeeklySchedule is stored as JSONB.
type WeeklySchedule []ShiftWindow

func (s WeeklySchedule) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *WeeklySchedule) Scan(src interface{}) error {
	return scanJSON(src, s)
}

// Covers reports whether t (already in the clinic's timezone) falls inside a
// shift for its weekday.
func (s WeeklySchedule) Covers(t time.Time) bool {
	hhmm := t.Format(TimeLayout)
	for _, w := range s {
		if w.Weekday != t.Weekday() {
			continue
		}
		if hhmm >= w.Start && hhmm < w.End {
			return true
		}
	}
	return false
}

type LeavePeriod struct {
	From string `json:"from" binding:"required,clinicdate"`
	To   string `json:"to" binding:"required,clinicdate"`
}

type LeavePeriods []LeavePeriod

func (l LeavePeriods) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

func (l *LeavePeriods) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Includes reports whether the date of t is within any leave range.
func (l LeavePeriods) Includes(t time.Time) bool {
	day := t.Format(DateLayout)
	for _, p := range l {
		if day >= p.From && day <= p.To {
			return true
		}
	}
	return false
}

func scanJSON(src interface{}, dst interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return fmt.Errorf("unsupported JSON source type %T", src)
	}
}

type Dentist struct {
	Base
	Name           string         `db:"name" json:"name"`
	ClinicLocation string         `db:"clinic_location" json:"clinic_location"`
	Specialization string         `db:"specialization" json:"specialization,omitempty"`
	Active         bool           `db:"active" json:"active"`
	Availability   Availability   `db:"availability" json:"availability"`
	Schedule       WeeklySchedule `db:"schedule" json:"schedule"`
	Leaves         LeavePeriods   `db:"leaves" json:"leaves"`
}

func (d *Dentist) Clone() *Dentist {
	if d == nil {
		return nil
	}
	c := *d
	c.Schedule = append(WeeklySchedule(nil), d.Schedule...)
	c.Leaves = append(LeavePeriods(nil), d.Leaves...)
	return &c
}

type CreateDentistRequest struct {
	Name           string         `json:"name" binding:"required,max=200"`
	ClinicLocation string         `json:"clinic_location" binding:"required,max=100"`
	Specialization string         `json:"specialization" binding:"max=100"`
	Schedule       WeeklySchedule `json:"schedule" binding:"omitempty,dive"`
	Leaves         LeavePeriods   `json:"leaves" binding:"omitempty,dive"`
}

type SetAvailabilityRequest struct {
	Availability Availability `json:"availability" binding:"required,oneof=available on_break off"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}
