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

var _ core.TransferStore = (*DB)(nil)

func (d *DB) CreateTransfer(ctx context.Context, req domain.TransferRequest) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO transfer_requests (id, sender_id, receiver_id, kind, name, url, size, mime, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(req.ID), string(req.SenderID), string(req.ReceiverID),
		string(req.Payload.Kind), req.Payload.Name, req.Payload.URL, req.Payload.Size, req.Payload.MIME,
		int(req.Status), req.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert transfer %s: %w", req.ID, err)
	}
	return nil
}

func (d *DB) GetTransfer(ctx context.Context, id domain.TransferID) (domain.TransferRequest, error) {
	var (
		req              domain.TransferRequest
		sender, receiver string
		kind             string
		status           int
		createdAt        int64
		resolvedAt       sql.NullInt64
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT sender_id, receiver_id, kind, name, url, size, mime, status, created_at, resolved_at
		FROM transfer_requests WHERE id = ?`, string(id),
	).Scan(&sender, &receiver, &kind, &req.Payload.Name, &req.Payload.URL, &req.Payload.Size, &req.Payload.MIME, &status, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.TransferRequest{}, core.ErrNotFound
	}
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("query transfer %s: %w", id, err)
	}
	req.ID = id
	req.SenderID = domain.UserID(sender)
	req.ReceiverID = domain.UserID(receiver)
	req.Payload.Kind = domain.PayloadKind(kind)
	req.Status = domain.TransferStatus(status)
	req.CreatedAt = time.UnixMilli(createdAt)
	if resolvedAt.Valid {
		req.ResolvedAt = time.UnixMilli(resolvedAt.Int64)
	}
	return req, nil
}

// ResolveTransfer moves a pending request to its final status. The WHERE
// clause makes the transition happen at most once.
func (d *DB) ResolveTransfer(ctx context.Context, id domain.TransferID, status domain.TransferStatus, at time.Time) error {
	res, err := d.db.ExecContext(ctx, `
		UPDATE transfer_requests SET status = ?, resolved_at = ?
		WHERE id = ? AND status = ?`,
		int(status), at.UnixMilli(), string(id), int(domain.TransferPending),
	)
	if err != nil {
		return fmt.Errorf("update transfer %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transfer %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		err := d.db.QueryRowContext(ctx, `SELECT 1 FROM transfer_requests WHERE id = ?`, string(id)).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return core.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("query transfer %s: %w", id, err)
		}
		return core.ErrNotPending
	}
	return nil
}

// PendingFor lists requests still waiting on receiver, oldest first.
func (d *DB) PendingFor(ctx context.Context, receiver domain.UserID) ([]domain.TransferRequest, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM transfer_requests
		WHERE receiver_id = ? AND status = ?
		ORDER BY created_at, id`, string(receiver), int(domain.TransferPending))
	if err != nil {
		return nil, fmt.Errorf("query pending for %s: %w", receiver, err)
	}
	var ids []domain.TransferID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		ids = append(ids, domain.TransferID(id))
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate pending: %w", err)
	}
	rows.Close()

	out := make([]domain.TransferRequest, 0, len(ids))
	for _, id := range ids {
		req, err := d.GetTransfer(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, nil
}
