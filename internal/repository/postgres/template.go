package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/oson-apps/notify-engine/internal/repository"
)

type templateSource struct {
	db *sqlx.DB
}

func NewTemplateSource(db *sqlx.DB) repository.TemplateSource {
	return &templateSource{db: db}
}

// Lookup resolves a message template by kind and language, falling back to the
// kind's default-language row. A miss is not an error.
func (r *templateSource) Lookup(ctx context.Context, kind, language string) (string, bool, error) {
	query := `
		SELECT body FROM message_templates
		WHERE kind = $1 AND language IN ($2, 'default')
		ORDER BY CASE WHEN language = $2 THEN 0 ELSE 1 END
		LIMIT 1
	`

	var body string
	err := r.db.GetContext(ctx, &body, query, kind, language)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to look up template %s/%s: %w", kind, language, err)
	}
	return body, true, nil
}
