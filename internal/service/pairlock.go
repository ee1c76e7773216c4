package service

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// keyedLocks is a fixed pool of striped mutexes keyed by string. Two calls
// with the same key always hit the same stripe, so mutations for one user
// pair or one chat are serialized without holding a lock per key forever.
type keyedLocks struct {
	stripes []sync.Mutex
}

func newKeyedLocks(n int) *keyedLocks {
	if n <= 0 {
		n = 64
	}
	return &keyedLocks{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe for key and returns the unlock function.
func (l *keyedLocks) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%uint32(len(l.stripes))]
	m.Lock()
	return m.Unlock
}

// chatLockKey derives the lock key for a chat's append-and-advance sequence.
func chatLockKey(chatID uint) string {
	return fmt.Sprintf("chat:%d", chatID)
}
