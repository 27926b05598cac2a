package service

import "sync"

// userLocks serializes admission-flow executions per user, so two concurrent
// uploads from the same not-yet-paid user cannot both pass the entitlement
// check and double-spend the single free use.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newUserLocks() *userLocks {
	return &userLocks{
		locks: make(map[int64]*sync.Mutex),
	}
}

// lock acquires the lock for userID and returns the matching release func.
func (u *userLocks) lock(userID int64) func() {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		u.locks[userID] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
