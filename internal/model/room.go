package model

type Room struct {
	Base
	Name           string `db:"name" json:"name"`
	ClinicLocation string `db:"clinic_location" json:"clinic_location"`
	Active         bool   `db:"active" json:"active"`
	Capacity       int    `db:"capacity" json:"capacity"`
	// Occupied is a cached display flag; selection recounts live bindings.
	Occupied bool `db:"occupied" json:"occupied"`
}

func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

type CreateRoomRequest struct {
	Name           string `json:"name" binding:"required,max=100"`
	ClinicLocation string `json:"clinic_location" binding:"required,max=100"`
	Capacity       int    `json:"capacity" binding:"omitempty,min=1,max=20"`
}
