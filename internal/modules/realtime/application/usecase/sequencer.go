package usecase

import (
	"context"
	"sync"
)

// roomSequencer serializes work per room key. Entries live only while someone holds or waits
// for the key.
type roomSequencer struct {
	mu    sync.Mutex
	slots map[string]*roomSlot
}

type roomSlot struct {
	// token is a one-slot semaphore so waiters can give up when their context ends.
	token chan struct{}
	refs  int
}

func newRoomSequencer() *roomSequencer {
	return &roomSequencer{slots: make(map[string]*roomSlot)}
}

// acquire blocks until key is free or ctx is done. The returned func releases the key.
func (s *roomSequencer) acquire(ctx context.Context, key string) (func(), error) {
	s.mu.Lock()
	slot, ok := s.slots[key]
	if !ok {
		slot = &roomSlot{token: make(chan struct{}, 1)}
		s.slots[key] = slot
	}
	slot.refs++
	s.mu.Unlock()

	select {
	case slot.token <- struct{}{}:
	case <-ctx.Done():
		s.unref(key, slot)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.token
			s.unref(key, slot)
		})
	}, nil
}

func (s *roomSequencer) unref(key string, slot *roomSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(s.slots, key)
	}
}

func (s *roomSequencer) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}
