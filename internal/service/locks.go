package service

import (
	"sort"
	"sync"
)

// accountLocks hands out per-account mutexes. Callers always lock a set of
// accounts in ascending id order, so two operations over the same pair of
// accounts cannot deadlock whatever direction they move money in.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*accountLock
}

type accountLock struct {
	sync.Mutex
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*accountLock)}
}

// Lock acquires every id in the set and returns the release function.
func (l *accountLocks) Lock(ids ...string) func() {
	ordered := uniqueSorted(ids)

	held := make([]*accountLock, 0, len(ordered))
	for _, id := range ordered {
		lock := l.acquire(id)
		lock.Lock()
		held = append(held, lock)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *accountLocks) acquire(id string) *accountLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[id]
	if !ok {
		lock = &accountLock{}
		l.locks[id] = lock
	}
	lock.refs++
	return lock
}

func (l *accountLocks) release(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.locks[id]
	lock.refs--
	if lock.refs == 0 {
		delete(l.locks, id)
	}
}

func uniqueSorted(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
