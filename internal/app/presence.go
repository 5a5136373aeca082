package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/rs/zerolog/log"
)

// Presence caches each user's displayed status and broadcasts changes.
// The authoritative explicit status lives in the PresenceStore; automatic
// transitions (InCall, Offline on disconnect) are never persisted.
type Presence struct {
	mu      sync.Mutex
	records map[domain.UserID]domain.PresenceRecord
	store   core.PresenceStore
	notify  Notifier
	now     func() time.Time
}

func NewPresence(store core.PresenceStore, notify Notifier) *Presence {
	return &Presence{
		records: make(map[domain.UserID]domain.PresenceRecord),
		store:   store,
		notify:  notify,
		now:     time.Now,
	}
}

// Get returns the cached record; unknown users are Offline.
func (p *Presence) Get(uid domain.UserID) domain.PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.records[uid]; ok {
		return rec
	}
	return domain.PresenceRecord{UserID: uid, Status: domain.StatusOffline}
}

// Snapshot lists every user not currently Offline.
func (p *Presence) Snapshot() []domain.PresenceRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PresenceRecord, 0, len(p.records))
	for _, rec := range p.records {
		if rec.Status != domain.StatusOffline {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID.Less(out[j].UserID) })
	return out
}

// SetStatus applies an explicit status chosen by the user.
// The cache is updated even when persisting fails.
func (p *Presence) SetStatus(ctx context.Context, uid domain.UserID, status domain.Status) error {
	if !status.Valid() || status == domain.StatusInCall {
		return domain.ErrInvalidStatus
	}
	p.transition(uid, status, nil)
	if p.store == nil {
		return nil
	}
	if err := p.store.SaveStatus(ctx, uid, status, p.now()); err != nil {
		log.Error().Err(err).Str("module", "app.presence").Str("user", string(uid)).Msg("persist status")
		return fmt.Errorf("persist status: %w", err)
	}
	return nil
}

func (p *Presence) MarkInCall(uid domain.UserID) {
	p.transition(uid, domain.StatusInCall, nil)
}

// ResetFromCall moves InCall back to Online and leaves any other status alone.
func (p *Presence) ResetFromCall(uid domain.UserID) {
	p.transition(uid, domain.StatusOnline, func(cur domain.PresenceRecord, ok bool) bool {
		return ok && cur.Status == domain.StatusInCall
	})
}

// Connected reconciles a user's first live connection with the stored status.
// Only Offline flips to Online automatically; a stored explicit status is restored.
func (p *Presence) Connected(ctx context.Context, uid domain.UserID) {
	target := domain.StatusOnline
	if p.store != nil {
		stored, err := p.store.LoadStatus(ctx, uid)
		switch {
		case err == nil:
			if stored != domain.StatusOffline && stored != domain.StatusInCall {
				target = stored
			}
		case errors.Is(err, core.ErrNotFound):
		default:
			log.Warn().Err(err).Str("module", "app.presence").Str("user", string(uid)).Msg("load stored status")
		}
	}
	// A status set while the store was read wins over reconciliation.
	p.transition(uid, target, func(cur domain.PresenceRecord, ok bool) bool {
		return !ok || cur.Status == domain.StatusOffline
	})
}

// Disconnected marks the user Offline once the last connection is gone.
func (p *Presence) Disconnected(uid domain.UserID) {
	p.transition(uid, domain.StatusOffline, nil)
}

// transition sets the status if cond allows it and the status differs from
// the cached one. The broadcast happens under the lock so changes for one user
// reach clients in the order they were applied.
func (p *Presence) transition(uid domain.UserID, status domain.Status, cond func(domain.PresenceRecord, bool) bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok := p.records[uid]
	if cond != nil && !cond(cur, ok) {
		return false
	}
	if ok && cur.Status == status {
		return false
	}
	if !ok && status == domain.StatusOffline {
		return false
	}
	p.records[uid] = domain.PresenceRecord{UserID: uid, Status: status, ChangedAt: p.now()}
	log.Info().Str("module", "app.presence").Str("user", string(uid)).Str("status", status.String()).Msg("status changed")
	if p.notify != nil {
		p.notify.BroadcastAll(core.StatusChanged{UserID: uid, Status: status, StatusText: status.String()})
	}
	return true
}
