// Package journal records raised alerts in Postgres.
package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Vovarama1992/chatra-operator-console/internal/notify"
)

const schema = `
CREATE TABLE IF NOT EXISTS console_alerts (
	id          UUID PRIMARY KEY,
	session_id  TEXT NOT NULL,
	message_id  TEXT NOT NULL,
	sender      TEXT NOT NULL,
	body        TEXT NOT NULL,
	raised_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS console_alerts_raised_at_idx ON console_alerts (raised_at DESC);
`

type Repo struct {
	db *sql.DB
}

func NewRepo(db *sql.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	return nil
}

// Alert implements notify.Sink.
func (r *Repo) Alert(ctx context.Context, a notify.Alert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO console_alerts (id, session_id, message_id, sender, body, raised_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`,
		a.ID,
		a.SessionID,
		a.MessageID,
		a.Sender,
		a.Body,
		a.At,
	)
	return err
}

// Recent returns up to limit alerts, newest first.
func (r *Repo) Recent(ctx context.Context, limit int) ([]notify.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, message_id, sender, body, raised_at
		FROM console_alerts
		ORDER BY raised_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []notify.Alert
	for rows.Next() {
		var a notify.Alert
		if err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.MessageID,
			&a.Sender,
			&a.Body,
			&a.At,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	return out, rows.Err()
}
