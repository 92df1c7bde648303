package model

import (
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Channel names used in outcomes and metrics labels.
const (
	ChannelPush = "push"
	ChannelSMS  = "sms"
	ChannelChat = "chat"
)

// NotificationTarget is one recipient's pending notification, produced by the
// external store. Read-only here; the orchestrator only reports processed ids
// back.
type NotificationTarget struct {
	ID          uuid.UUID `db:"id"`
	PushToken   string    `db:"push_token"`
	Phone       string    `db:"phone"`
	ChatID      int64     `db:"chat_id"`
	Language    string    `db:"language"`
	Priority    Priority  `db:"priority"`
	SMSEligible bool      `db:"sms_eligible"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	ActionURL   string    `db:"action_url"`
	CreatedAt   time.Time `db:"created_at"`
}

// PushCapable reports whether the target carries a push-registration string.
func (t *NotificationTarget) PushCapable() bool {
	return t.PushToken != ""
}

// DeliveryOutcome is the result of one adapter invocation. Ephemeral: logged
// and counted, never persisted.
type DeliveryOutcome struct {
	TargetID          uuid.UUID
	Channel           string
	Provider          string
	Success           bool
	ProviderMessageID string
	Reason            string
	Attempts          int
	SegmentWarning    string
	Timestamp         time.Time
}
