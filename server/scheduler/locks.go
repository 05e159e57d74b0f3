package scheduler

import "sync"

// chainLocks serializes generation per chain. Entries are reference counted
// so idle chains do not accumulate mutexes.
type chainLocks struct {
	mu    sync.Mutex
	locks map[string]*chainLock
}

type chainLock struct {
	mu   sync.Mutex
	refs int
}

func newChainLocks() *chainLocks {
	return &chainLocks{locks: make(map[string]*chainLock)}
}

// lock acquires the mutex of chainID and returns its release function
func (c *chainLocks) lock(chainID string) func() {
	c.mu.Lock()
	l, ok := c.locks[chainID]
	if !ok {
		l = &chainLock{}
		c.locks[chainID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, chainID)
		}
		c.mu.Unlock()
	}
}

// size reports the number of chains currently holding or waiting on a lock
func (c *chainLocks) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.locks)
}
