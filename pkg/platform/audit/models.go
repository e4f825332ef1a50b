// Package audit captures structured engine events. Events are written to a
// transactional outbox and relayed to Kafka by a background worker; emission
// from the engine is best-effort and never fails the surrounding operation.
package audit

import "time"

// Action names the engine operations worth an audit trail.
type Action string

const (
	ActionRunCompleted        Action = "compliance_run_completed"
	ActionScoreReplaced       Action = "compliance_score_replaced"
	ActionNotificationCreated Action = "notification_created"
	ActionDeliveryFailed      Action = "delivery_failed"
)

// Event is emitted from engine logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	TenantID  string
	Subject   string
	Action    Action
	Source    string
	Detail    string
}
