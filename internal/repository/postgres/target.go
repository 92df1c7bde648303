package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/oson-apps/notify-engine/internal/model"
	"github.com/oson-apps/notify-engine/internal/repository"
)

type targetSource struct {
	db *sqlx.DB
}

func NewTargetSource(db *sqlx.DB) repository.TargetSource {
	return &targetSource{db: db}
}

func (r *targetSource) FetchPending(ctx context.Context, limit int) ([]*model.NotificationTarget, error) {
	query := `
		SELECT id, push_token, phone, chat_id, language, priority, sms_eligible,
		       title, body, action_url, created_at
		FROM notification_targets
		WHERE processed = false
		ORDER BY created_at ASC
		LIMIT $1
	`

	var targets []*model.NotificationTarget
	err := r.db.SelectContext(ctx, &targets, query, limit)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending targets: %w", err)
	}
	return targets, nil
}

// MarkProcessed is idempotent: ids already flagged are matched by the filter
// and simply not touched again.
func (r *targetSource) MarkProcessed(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}

	query := `
		UPDATE notification_targets
		SET processed = true, processed_at = NOW()
		WHERE id = ANY($1) AND processed = false
	`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(raw)); err != nil {
		return fmt.Errorf("failed to mark targets processed: %w", err)
	}
	return nil
}
