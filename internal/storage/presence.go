package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

var _ core.PresenceStore = (*DB)(nil)

func (d *DB) LoadStatus(ctx context.Context, uid domain.UserID) (domain.Status, error) {
	var status int
	err := d.db.QueryRowContext(ctx, `SELECT status FROM presence WHERE user_id = ?`, string(uid)).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("query status %s: %w", uid, err)
	}
	return domain.Status(status), nil
}

func (d *DB) SaveStatus(ctx context.Context, uid domain.UserID, status domain.Status, at time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO presence (user_id, status, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		string(uid), int(status), at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save status %s: %w", uid, err)
	}
	return nil
}
