package conversation

import "sync"

// KeyedMutex serializes work per key while leaving distinct keys independent.
// Waiters on the same key are admitted in the order they called Lock.
// Entries are removed once no holder or waiter remains, so the map only
// holds keys with work in flight.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	waiters []chan struct{}
}

// NewKeyedMutex returns an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
// The returned func must be called exactly once.
func (k *KeyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, held := k.entries[key]
	if !held {
		k.entries[key] = &keyEntry{}
		k.mu.Unlock()
		return func() { k.unlock(key) }
	}

	ready := make(chan struct{})
	e.waiters = append(e.waiters, ready)
	k.mu.Unlock()

	<-ready
	return func() { k.unlock(key) }
}

// unlock hands the key to the oldest waiter, or releases the entry.
func (k *KeyedMutex) unlock(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.entries[key]
	if !ok {
		panic("conversation: unlock of unlocked key " + key)
	}
	if len(e.waiters) == 0 {
		delete(k.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}

// Active returns the number of keys currently held.
func (k *KeyedMutex) Active() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.entries)
}
