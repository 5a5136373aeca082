package app

import (
	"context"
	"sort"
	"sync"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	User   domain.User
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// Registry maps live connections to user identities and delivers events to them.
// Delivery is best-effort: an offline user is not an error.
type Registry struct {
	mu     sync.RWMutex
	conns  map[core.ConnID]*connEntry
	byUser map[domain.UserID]map[core.ConnID]core.SignalConnection
}

func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[core.ConnID]*connEntry),
		byUser: make(map[domain.UserID]map[core.ConnID]core.SignalConnection),
	}
}

// Bind registers cid for user. first reports whether this is the user's only live connection.
func (r *Registry) Bind(cid core.ConnID, user domain.User, sig core.SignalConnection, cancel context.CancelFunc) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, rebind := r.conns[cid]
	if rebind {
		r.detach(cid, old.User.ID)
	}
	r.conns[cid] = &connEntry{User: user, Signal: sig, Cancel: cancel}
	conns, ok := r.byUser[user.ID]
	if !ok {
		conns = make(map[core.ConnID]core.SignalConnection)
		r.byUser[user.ID] = conns
	}
	conns[cid] = sig
	if !rebind {
		metrics.ConnectionsActive.Inc()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(user.ID)).Int("user_conns", len(conns)).Msg("bound connection")
	return len(conns) == 1
}

// Unbind removes cid. last reports whether the user has no live connection left.
func (r *Registry) Unbind(cid core.ConnID) (user domain.User, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.conns[cid]
	if !ok {
		return domain.User{}, false, false
	}
	delete(r.conns, cid)
	last = r.detach(cid, e.User.ID)
	metrics.ConnectionsActive.Dec()
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Str("user", string(e.User.ID)).Bool("last", last).Msg("unbind connection")
	return e.User, last, true
}

func (r *Registry) detach(cid core.ConnID, uid domain.UserID) (last bool) {
	conns := r.byUser[uid]
	delete(conns, cid)
	if len(conns) == 0 {
		delete(r.byUser, uid)
		return true
	}
	return false
}

func (r *Registry) UserOf(cid core.ConnID) (domain.User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.User, true
	}
	return domain.User{}, false
}

func (r *Registry) Signal(cid core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[cid]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Registry) IsOnline(uid domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[uid]) > 0
}

// OnlineUsers lists users with at least one live connection, sorted by id.
func (r *Registry) OnlineUsers() []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.UserID, 0, len(r.byUser))
	for uid := range r.byUser {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// SendToUser fans ev out to all of the user's connections and returns how many accepted it.
func (r *Registry) SendToUser(uid domain.UserID, ev core.Event) int {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for cid, sig := range r.byUser[uid] {
		if deliver(cid, sig, f) {
			sent++
		}
	}
	return sent
}

func (r *Registry) SendToConn(cid core.ConnID, ev core.Event) bool {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.conns[cid]
	if !ok {
		return false
	}
	return deliver(cid, e.Signal, f)
}

func (r *Registry) BroadcastAll(ev core.Event) int {
	f, err := core.Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	sent := 0
	for cid, e := range r.conns {
		if deliver(cid, e.Signal, f) {
			sent++
		}
	}
	return sent
}

// Cancel stops the connection's pumps; the adapter then runs disconnect cleanup.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("canceled connection")
	return true
}

func deliver(cid core.ConnID, sig core.SignalConnection, f core.Frame) bool {
	if err := sig.TrySend(f); err != nil {
		metrics.EventsDropped.Inc()
		log.Debug().Err(err).Str("module", "app.registry").Str("cid", string(cid)).Msg("event dropped")
		return false
	}
	return true
}
