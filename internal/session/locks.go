package session

import "sync"

// groupLocks hands out one RWMutex per group ID. Entries are reference
// counted and dropped when unused, so idle groups cost nothing.
type groupLocks struct {
	mu    sync.Mutex
	locks map[string]*groupLock
}

type groupLock struct {
	sync.RWMutex
	refs int
}

func newGroupLocks() *groupLocks {
	return &groupLocks{locks: make(map[string]*groupLock)}
}

func (l *groupLocks) acquire(id string) *groupLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	gl := l.locks[id]
	if gl == nil {
		gl = &groupLock{}
		l.locks[id] = gl
	}
	gl.refs++
	return gl
}

func (l *groupLocks) release(id string, gl *groupLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	gl.refs--
	if gl.refs == 0 {
		delete(l.locks, id)
	}
}

// lock takes the writer lock of a group and returns its release func.
func (l *groupLocks) lock(id string) func() {
	gl := l.acquire(id)
	gl.Lock()
	return func() {
		gl.Unlock()
		l.release(id, gl)
	}
}

// rlock takes the reader lock of a group and returns its release func.
func (l *groupLocks) rlock(id string) func() {
	gl := l.acquire(id)
	gl.RLock()
	return func() {
		gl.RUnlock()
		l.release(id, gl)
	}
}

// size reports how many groups currently hold a lock entry.
func (l *groupLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
