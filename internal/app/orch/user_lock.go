package orch

import (
	"sync"

	"github.com/dkeye/relay/internal/domain"
)

// userLocks serializes the connect/disconnect steps of one user.
// Entries are dropped once nobody holds or waits on them.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(uid domain.UserID) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[domain.UserID]*userLock)
	}
	ul, ok := l.locks[uid]
	if !ok {
		ul = &userLock{}
		l.locks[uid] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, uid)
		}
		l.mu.Unlock()
	}
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
