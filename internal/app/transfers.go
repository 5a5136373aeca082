package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidTransfer = errors.New("invalid transfer")
	// ErrUnauthorized covers both "not yours" and "does not exist".
	ErrUnauthorized    = errors.New("unauthorized")
	ErrAlreadyResolved = errors.New("transfer already resolved")
)

// Transfers runs the offer → accept/decline handshake for any payload kind.
type Transfers struct {
	store  core.TransferStore
	notify Notifier
	now    func() time.Time
	newID  func() domain.TransferID
}

func NewTransfers(store core.TransferStore, notify Notifier) *Transfers {
	return &Transfers{
		store:  store,
		notify: notify,
		now:    time.Now,
		newID: func() domain.TransferID {
			return domain.TransferID(ulid.MustNew(ulid.Now(), rand.Reader).String())
		},
	}
}

// Offer persists a pending request, notifies the receiver and echoes it to the sender.
func (t *Transfers) Offer(ctx context.Context, sender, receiver domain.UserID, payload domain.Payload) (domain.TransferRequest, error) {
	if receiver == "" || sender == receiver {
		return domain.TransferRequest{}, ErrInvalidTransfer
	}
	if err := payload.Validate(); err != nil {
		return domain.TransferRequest{}, fmt.Errorf("%w: %w", ErrInvalidTransfer, err)
	}
	req := domain.TransferRequest{
		ID:         t.newID(),
		SenderID:   sender,
		ReceiverID: receiver,
		Payload:    payload,
		Status:     domain.TransferPending,
		CreatedAt:  t.now(),
	}
	if err := t.store.CreateTransfer(ctx, req); err != nil {
		metrics.Transfers.WithLabelValues("store_error").Inc()
		return domain.TransferRequest{}, fmt.Errorf("create transfer: %w", err)
	}

	ev := core.TransferOffered{RequestID: req.ID, SenderID: sender, ReceiverID: receiver, Payload: payload}
	t.notify.SendToUser(receiver, ev)
	t.notify.SendToUser(sender, ev)
	metrics.Transfers.WithLabelValues("offered").Inc()
	log.Info().Str("module", "app.transfers").Str("id", string(req.ID)).Str("sender", string(sender)).Str("receiver", string(receiver)).Str("kind", string(payload.Kind)).Msg("offered")
	return req, nil
}

// Respond records the receiver's decision exactly once and notifies both sides.
func (t *Transfers) Respond(ctx context.Context, id domain.TransferID, responder domain.UserID, accepted bool) (domain.TransferRequest, error) {
	req, err := t.store.GetTransfer(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return domain.TransferRequest{}, ErrUnauthorized
	}
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("load transfer: %w", err)
	}
	if req.ReceiverID != responder {
		log.Warn().Str("module", "app.transfers").Str("id", string(id)).Str("responder", string(responder)).Msg("response from non-receiver")
		return domain.TransferRequest{}, ErrUnauthorized
	}
	if req.Status != domain.TransferPending {
		return req, ErrAlreadyResolved
	}

	status := domain.TransferDeclined
	if accepted {
		status = domain.TransferAccepted
	}
	at := t.now()
	if err := t.store.ResolveTransfer(ctx, id, status, at); err != nil {
		if errors.Is(err, core.ErrNotPending) {
			return req, ErrAlreadyResolved
		}
		metrics.Transfers.WithLabelValues("store_error").Inc()
		return domain.TransferRequest{}, fmt.Errorf("resolve transfer: %w", err)
	}
	req.Status = status
	req.ResolvedAt = at

	ev := core.TransferResolved{RequestID: id, Accepted: accepted, URL: req.Payload.URL, Payload: req.Payload}
	t.notify.SendToUser(req.SenderID, ev)
	t.notify.SendToUser(req.ReceiverID, ev)
	metrics.Transfers.WithLabelValues(status.String()).Inc()
	log.Info().Str("module", "app.transfers").Str("id", string(id)).Str("status", status.String()).Msg("resolved")
	return req, nil
}

// Get returns a request to one of its two parties.
func (t *Transfers) Get(ctx context.Context, id domain.TransferID, viewer domain.UserID) (domain.TransferRequest, error) {
	req, err := t.store.GetTransfer(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return domain.TransferRequest{}, ErrUnauthorized
	}
	if err != nil {
		return domain.TransferRequest{}, fmt.Errorf("load transfer: %w", err)
	}
	if !req.Involves(viewer) {
		return domain.TransferRequest{}, ErrUnauthorized
	}
	return req, nil
}

// Redeliver resends pending offers addressed to receiver to one connection,
// so offers made while the receiver was offline still reach it.
func (t *Transfers) Redeliver(ctx context.Context, cid core.ConnID, receiver domain.UserID) (int, error) {
	pending, err := t.store.PendingFor(ctx, receiver)
	if err != nil {
		return 0, fmt.Errorf("list pending: %w", err)
	}
	n := 0
	for _, req := range pending {
		if t.notify.SendToConn(cid, core.TransferOffered{RequestID: req.ID, SenderID: req.SenderID, ReceiverID: req.ReceiverID, Payload: req.Payload}) {
			n++
		}
	}
	return n, nil
}
