package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/oson-apps/notify-engine/internal/model"
)

// TargetSource is the pending-notification feed from the external store. The
// store owns the targets; this subsystem only reads them and reports the ones
// it delivered.
type TargetSource interface {
	// FetchPending returns up to limit targets ready to send.
	FetchPending(ctx context.Context, limit int) ([]*model.NotificationTarget, error)
	// MarkProcessed flags the given target ids as handled. Idempotent: marking
	// an already-processed id is a no-op.
	MarkProcessed(ctx context.Context, ids []uuid.UUID) error
}

// TemplateSource resolves provider-side message templates by event kind and
// language. A miss is expected and not an error; callers fall back to a fixed
// format.
type TemplateSource interface {
	Lookup(ctx context.Context, kind, language string) (string, bool, error)
}
