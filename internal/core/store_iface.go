package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/relay/internal/domain"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrNotPending = errors.New("transfer is not pending")
)

// TransferStore persists transfer requests.
// ResolveTransfer must only succeed while the stored status is pending and
// returns ErrNotPending otherwise.
type TransferStore interface {
	CreateTransfer(ctx context.Context, req domain.TransferRequest) error
	GetTransfer(ctx context.Context, id domain.TransferID) (domain.TransferRequest, error)
	ResolveTransfer(ctx context.Context, id domain.TransferID, status domain.TransferStatus, at time.Time) error
	PendingFor(ctx context.Context, receiver domain.UserID) ([]domain.TransferRequest, error)
}

// PresenceStore holds the authoritative last explicitly chosen status of a user.
type PresenceStore interface {
	LoadStatus(ctx context.Context, uid domain.UserID) (domain.Status, error)
	SaveStatus(ctx context.Context, uid domain.UserID, status domain.Status, at time.Time) error
}
