package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionProfileCreate   = "PROFILE_CREATE"
	AuditActionProfileUpdate   = "PROFILE_UPDATE"
	AuditActionProfileDelete   = "PROFILE_DELETE"
	AuditActionClassCreate     = "CLASS_CREATE"
	AuditActionClassUpdate     = "CLASS_UPDATE"
	AuditActionClassDeactivate = "CLASS_DEACTIVATE"
	AuditActionCodeRotate      = "CLASS_CODE_ROTATE"
	AuditActionEnrollmentJoin  = "ENROLLMENT_JOIN"
	AuditActionEnrollmentLeave = "ENROLLMENT_LEAVE"
	AuditActionRosterView      = "ROSTER_VIEW"
	AuditActionTranscriptView  = "TRANSCRIPT_VIEW"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
