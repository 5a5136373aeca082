package app

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/relay/internal/core"
	"github.com/dkeye/relay/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func (c *fakeConn) setFull(v bool) {
	c.mu.Lock()
	c.full = v
	c.mu.Unlock()
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *fakeConn) envelopes(t *testing.T) []core.RawEnvelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.RawEnvelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := core.Decode(f)
		if err != nil {
			t.Fatalf("decode frame %s: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// count returns how many events of type typ the connection received.
func (c *fakeConn) count(t *testing.T, typ core.EventType) int {
	t.Helper()
	n := 0
	for _, env := range c.envelopes(t) {
		if env.Type == typ {
			n++
		}
	}
	return n
}

// payloads decodes every event of type typ into T.
func payloads[T any](t *testing.T, c *fakeConn, typ core.EventType) []T {
	t.Helper()
	var out []T
	for _, env := range c.envelopes(t) {
		if env.Type != typ {
			continue
		}
		var v T
		if err := json.Unmarshal(env.Payload, &v); err != nil {
			t.Fatalf("decode %s payload: %v", typ, err)
		}
		out = append(out, v)
	}
	return out
}

// last decodes the most recent event of type typ and fails if there is none.
func last[T any](t *testing.T, c *fakeConn, typ core.EventType) T {
	t.Helper()
	all := payloads[T](t, c, typ)
	if len(all) == 0 {
		t.Fatalf("no %s event received", typ)
	}
	return all[len(all)-1]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

type memPresenceStore struct {
	mu       sync.Mutex
	statuses map[domain.UserID]domain.Status
	saves    int
	failSave error
}

func newMemPresenceStore() *memPresenceStore {
	return &memPresenceStore{statuses: make(map[domain.UserID]domain.Status)}
}

func (s *memPresenceStore) LoadStatus(_ context.Context, uid domain.UserID) (domain.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[uid]
	if !ok {
		return 0, core.ErrNotFound
	}
	return st, nil
}

func (s *memPresenceStore) SaveStatus(_ context.Context, uid domain.UserID, status domain.Status, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failSave != nil {
		return s.failSave
	}
	s.statuses[uid] = status
	s.saves++
	return nil
}

type memTransferStore struct {
	mu   sync.Mutex
	reqs map[domain.TransferID]domain.TransferRequest
	ids  []domain.TransferID
}

func newMemTransferStore() *memTransferStore {
	return &memTransferStore{reqs: make(map[domain.TransferID]domain.TransferRequest)}
}

func (s *memTransferStore) CreateTransfer(_ context.Context, req domain.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs[req.ID] = req
	s.ids = append(s.ids, req.ID)
	return nil
}

func (s *memTransferStore) GetTransfer(_ context.Context, id domain.TransferID) (domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return domain.TransferRequest{}, core.ErrNotFound
	}
	return req, nil
}

func (s *memTransferStore) ResolveTransfer(_ context.Context, id domain.TransferID, status domain.TransferStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.reqs[id]
	if !ok {
		return core.ErrNotFound
	}
	if req.Status != domain.TransferPending {
		return core.ErrNotPending
	}
	req.Status = status
	req.ResolvedAt = at
	s.reqs[id] = req
	return nil
}

func (s *memTransferStore) PendingFor(_ context.Context, receiver domain.UserID) ([]domain.TransferRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TransferRequest
	for _, id := range s.ids {
		if req := s.reqs[id]; req.ReceiverID == receiver && req.Status == domain.TransferPending {
			out = append(out, req)
		}
	}
	return out, nil
}

// harness wires the components the way the server does, minus transport.
type harness struct {
	reg       *Registry
	presence  *Presence
	calls     *Calls
	rooms     *Rooms
	transfers *Transfers
	pstore    *memPresenceStore
	tstore    *memTransferStore
	canceled  map[core.ConnID]bool
	mu        sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		reg:      NewRegistry(),
		pstore:   newMemPresenceStore(),
		tstore:   newMemTransferStore(),
		canceled: make(map[core.ConnID]bool),
	}
	h.presence = NewPresence(h.pstore, h.reg)
	h.calls = NewCalls(h.reg, h.presence, 0)
	h.rooms = NewRooms(h.reg, SimplePolicy{}, true)
	h.transfers = NewTransfers(h.tstore, h.reg)
	return h
}

func user(id string) domain.User {
	return domain.User{ID: domain.UserID(id), Username: id + "-name"}
}

// connect binds a fake connection for uid and runs first-connection presence.
func (h *harness) connect(cid, uid string) *fakeConn {
	c := &fakeConn{}
	id := core.ConnID(cid)
	cancel := func() {
		h.mu.Lock()
		h.canceled[id] = true
		h.mu.Unlock()
	}
	if h.reg.Bind(id, user(uid), c, cancel) {
		h.presence.Connected(context.Background(), domain.UserID(uid))
	}
	return c
}

// disconnect mirrors the orchestrator's cleanup order.
func (h *harness) disconnect(cid string) {
	id := core.ConnID(cid)
	h.rooms.Disconnect(id)
	u, last, ok := h.reg.Unbind(id)
	if ok && last {
		h.calls.EndAll(u.ID)
		h.presence.Disconnected(u.ID)
	}
}

func (h *harness) wasCanceled(cid string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.canceled[core.ConnID(cid)]
}
