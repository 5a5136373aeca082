package app

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
	"github.com/dkeye/relay/internal/metrics"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidCall = errors.New("invalid call")
	ErrCallerBusy  = errors.New("caller already in a call")
	ErrNoSession   = errors.New("no matching call session")
)

// Decline reasons sent with CallDeclined.
const (
	ReasonDeclined = "declined"
	ReasonBusy     = "busy"
	ReasonTimeout  = "timeout"
)

// CallPresence is the presence surface the call machine drives.
type CallPresence interface {
	MarkInCall(uid domain.UserID)
	ResetFromCall(uid domain.UserID)
}

// RequestOutcome tells the caller what happened to a call request.
type RequestOutcome int

const (
	RequestRinging RequestOutcome = iota
	RequestAutoDeclined
)

type callKey struct {
	caller domain.UserID
	callee domain.UserID
}

func (k callKey) other(uid domain.UserID) domain.UserID {
	if k.caller == uid {
		return k.callee
	}
	return k.caller
}

type callSession struct {
	key       callKey
	state     domain.CallState
	offered   bool
	answered  bool
	createdAt time.Time
	timer     *time.Timer
}

// Calls negotiates direct sessions between two users.
// A user is caller of at most one session and is never part of more than one
// Negotiating/Active session; a callee may have several incoming rings.
// Every compound operation runs under one lock, and notifications are queued
// while holding it so each peer sees transitions in order.
type Calls struct {
	mu          sync.Mutex
	sessions    map[callKey]*callSession
	byUser      map[domain.UserID]map[callKey]*callSession
	notify      Notifier
	presence    CallPresence
	ringTimeout time.Duration
	now         func() time.Time
}

// NewCalls builds the call machine. ringTimeout <= 0 keeps rings until answered.
func NewCalls(notify Notifier, presence CallPresence, ringTimeout time.Duration) *Calls {
	return &Calls{
		sessions:    make(map[callKey]*callSession),
		byUser:      make(map[domain.UserID]map[callKey]*callSession),
		notify:      notify,
		presence:    presence,
		ringTimeout: ringTimeout,
		now:         time.Now,
	}
}

// Request rings callee on behalf of caller. A busy callee is declined on its
// behalf right away and no session is created.
func (c *Calls) Request(caller domain.User, callee domain.UserID) (RequestOutcome, error) {
	if callee == "" || caller.ID == callee {
		return 0, ErrInvalidCall
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.byUser[caller.ID]) > 0 {
		log.Warn().Str("module", "app.calls").Str("caller", string(caller.ID)).Str("callee", string(callee)).Msg("request while in a call")
		return 0, ErrCallerBusy
	}
	if c.busy(callee) {
		c.notify.SendToUser(caller.ID, core.CallDeclined{OtherID: callee, Reason: ReasonBusy})
		metrics.Calls.WithLabelValues("busy").Inc()
		log.Info().Str("module", "app.calls").Str("caller", string(caller.ID)).Str("callee", string(callee)).Msg("callee busy, auto-declined")
		return RequestAutoDeclined, nil
	}

	key := callKey{caller: caller.ID, callee: callee}
	s := &callSession{key: key, state: domain.CallRinging, createdAt: c.now()}
	c.add(s)
	if c.ringTimeout > 0 {
		s.timer = time.AfterFunc(c.ringTimeout, func() { c.expire(s) })
	}
	c.notify.SendToUser(callee, core.CallRequested{CallerID: caller.ID, CallerName: caller.Username})
	metrics.Calls.WithLabelValues("requested").Inc()
	log.Info().Str("module", "app.calls").Str("caller", string(caller.ID)).Str("callee", string(callee)).Msg("ringing")
	return RequestRinging, nil
}

// busy reports whether uid cannot take another ring: it is negotiating or
// active with someone, or it is ringing someone itself.
func (c *Calls) busy(uid domain.UserID) bool {
	for k, s := range c.byUser[uid] {
		if s.state != domain.CallRinging || k.caller == uid {
			return true
		}
	}
	return false
}

// Accept moves a ringing session to Negotiating. The caller is the offerer.
// Other rings waiting on the callee are declined as busy.
func (c *Calls) Accept(callee, caller domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[callKey{caller: caller, callee: callee}]
	if !ok || s.state != domain.CallRinging {
		return ErrNoSession
	}
	s.stopTimer()
	s.state = domain.CallNegotiating
	c.notify.SendToUser(caller, core.CallAccepted{OtherID: callee})

	for k, other := range c.byUser[callee] {
		if other == s || other.state != domain.CallRinging {
			continue
		}
		c.remove(other)
		c.notify.SendToUser(k.caller, core.CallDeclined{OtherID: callee, Reason: ReasonBusy})
	}

	if c.presence != nil {
		c.presence.MarkInCall(caller)
		c.presence.MarkInCall(callee)
	}
	metrics.Calls.WithLabelValues("accepted").Inc()
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Msg("accepted, negotiating")
	return nil
}

// Decline ends a ringing session from the callee side. Presence is untouched.
func (c *Calls) Decline(callee, caller domain.UserID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[callKey{caller: caller, callee: callee}]
	if !ok || s.state != domain.CallRinging {
		return ErrNoSession
	}
	c.remove(s)
	c.notify.SendToUser(caller, core.CallDeclined{OtherID: callee, Reason: ReasonDeclined})
	metrics.Calls.WithLabelValues("declined").Inc()
	log.Info().Str("module", "app.calls").Str("caller", string(caller)).Str("callee", string(callee)).Msg("declined")
	return nil
}

// RelayOffer forwards the caller's single offer after acceptance.
func (c *Calls) RelayOffer(from, to domain.UserID, desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.between(from, to)
	if s == nil || s.state != domain.CallNegotiating || s.key.caller != from || s.offered || desc.Type != webrtc.SDPTypeOffer {
		log.Debug().Str("module", "app.calls").Str("from", string(from)).Str("to", string(to)).Msg("offer dropped")
		return ErrNoSession
	}
	s.offered = true
	c.notify.SendToUser(to, core.OfferReady{FromID: from, Description: desc})
	return nil
}

// RelayAnswer forwards the callee's answer; the session becomes Active.
func (c *Calls) RelayAnswer(from, to domain.UserID, desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.between(from, to)
	if s == nil || s.state != domain.CallNegotiating || s.key.callee != from || !s.offered || s.answered || desc.Type != webrtc.SDPTypeAnswer {
		log.Debug().Str("module", "app.calls").Str("from", string(from)).Str("to", string(to)).Msg("answer dropped")
		return ErrNoSession
	}
	s.answered = true
	s.state = domain.CallActive
	c.notify.SendToUser(to, core.AnswerReady{FromID: from, Description: desc})
	log.Info().Str("module", "app.calls").Str("caller", string(s.key.caller)).Str("callee", string(s.key.callee)).Msg("active")
	return nil
}

// RelayCandidate forwards a candidate while any session exists between the two.
func (c *Calls) RelayCandidate(from, to domain.UserID, cand webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.between(from, to) == nil {
		return ErrNoSession
	}
	c.notify.SendToUser(to, core.CandidateReady{FromID: from, Candidate: cand})
	return nil
}

// End closes the session between uid and other, if any, and resets uid's
// presence. The other side resets its own presence when it handles CallEnded.
// Calling it again is harmless.
func (c *Calls) End(uid, other domain.UserID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ended := false
	if s := c.between(uid, other); s != nil {
		c.remove(s)
		c.notify.SendToUser(other, core.CallEnded{FromID: uid})
		metrics.Calls.WithLabelValues("ended").Inc()
		log.Info().Str("module", "app.calls").Str("user", string(uid)).Str("other", string(other)).Msg("ended")
		ended = true
	}
	if c.presence != nil && len(c.byUser[uid]) == 0 {
		c.presence.ResetFromCall(uid)
	}
	return ended
}

// EndAll ends every session uid takes part in. Used on disconnect.
func (c *Calls) EndAll(uid domain.UserID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, s := range c.byUser[uid] {
		c.remove(s)
		c.notify.SendToUser(k.other(uid), core.CallEnded{FromID: uid})
		n++
	}
	if c.presence != nil {
		c.presence.ResetFromCall(uid)
	}
	if n > 0 {
		log.Info().Str("module", "app.calls").Str("user", string(uid)).Int("sessions", n).Msg("ended all")
	}
	return n
}

// State lists uid's sessions, oldest first.
func (c *Calls) State(uid domain.UserID) []domain.CallView {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.CallView, 0, len(c.byUser[uid]))
	for k, s := range c.byUser[uid] {
		dir := domain.CallOutgoing
		if k.callee == uid {
			dir = domain.CallIncoming
		}
		out = append(out, domain.CallView{
			Peer:      k.other(uid),
			State:     s.state,
			StateName: s.state.String(),
			Direction: dir,
			DirName:   dir.String(),
			CreatedAt: s.createdAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// expire takes the decline path for a ring nobody answered.
func (c *Calls) expire(s *callSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sessions[s.key]; !ok || cur != s || s.state != domain.CallRinging {
		return
	}
	c.remove(s)
	c.notify.SendToUser(s.key.caller, core.CallDeclined{OtherID: s.key.callee, Reason: ReasonTimeout})
	c.notify.SendToUser(s.key.callee, core.CallEnded{FromID: s.key.caller})
	metrics.Calls.WithLabelValues("timeout").Inc()
	log.Info().Str("module", "app.calls").Str("caller", string(s.key.caller)).Str("callee", string(s.key.callee)).Msg("ring timed out")
}

func (c *Calls) between(a, b domain.UserID) *callSession {
	if s, ok := c.sessions[callKey{caller: a, callee: b}]; ok {
		return s
	}
	if s, ok := c.sessions[callKey{caller: b, callee: a}]; ok {
		return s
	}
	return nil
}

func (c *Calls) add(s *callSession) {
	c.sessions[s.key] = s
	for _, uid := range []domain.UserID{s.key.caller, s.key.callee} {
		m, ok := c.byUser[uid]
		if !ok {
			m = make(map[callKey]*callSession)
			c.byUser[uid] = m
		}
		m[s.key] = s
	}
}

func (c *Calls) remove(s *callSession) {
	s.stopTimer()
	delete(c.sessions, s.key)
	for _, uid := range []domain.UserID{s.key.caller, s.key.callee} {
		if m, ok := c.byUser[uid]; ok {
			delete(m, s.key)
			if len(m) == 0 {
				delete(c.byUser, uid)
			}
		}
	}
}

func (s *callSession) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
	}
}
