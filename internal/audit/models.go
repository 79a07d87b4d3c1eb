package audit

import (
	"time"

	"github.com/google/uuid"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID        uuid.UUID
	Timestamp time.Time
	UserID    string
	Action    string
	Subject   string
	Decision  string
	Reason    string
	RequestID string
}

const (
	ActionWorldIDInit           = "worldid_init"
	ActionWorldIDVerified       = "worldid_verified"
	ActionWorldIDVerifyRejected = "worldid_verify_rejected"
	ActionAccountProvisioned    = "account_provisioned"
)

const (
	DecisionGranted = "granted"
	DecisionDenied  = "denied"
)
