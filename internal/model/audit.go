package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type AuditLog struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	ActorID        string          `json:"actor_id" db:"actor_id"`
	Action         string          `json:"action" db:"action"`
	EntityType     string          `json:"entity_type" db:"entity_type"`
	EntityID       uuid.UUID       `json:"entity_id" db:"entity_id"`
	ClinicLocation string          `json:"clinic_location" db:"clinic_location"`
	Before         json.RawMessage `json:"before,omitempty" db:"before_state"`
	After          json.RawMessage `json:"after,omitempty" db:"after_state"`
	Metadata       json.RawMessage `json:"metadata,omitempty" db:"metadata"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

const (
	// Action types
	AuditActionCreate        = "create"
	AuditActionTransition    = "transition"
	AuditActionClaim         = "claim"
	AuditActionRelease       = "release"
	AuditActionOverride      = "override"
	AuditActionForceComplete = "force_complete"
	AuditActionPause         = "pause"
	AuditActionResume        = "resume"
	AuditActionAutoCall      = "auto_call"
	AuditActionDelete        = "delete"
	AuditActionRestore       = "restore"
	AuditActionUpdate        = "update"

	// Entity types
	AuditEntityAppointment = "appointment"
	AuditEntityQueueEntry  = "queue_entry"
	AuditEntityDentist     = "dentist"
	AuditEntityRoom        = "room"
	AuditEntityQueue       = "queue"
)

// SystemActor marks changes made by the engine itself.
const SystemActor = "system"
