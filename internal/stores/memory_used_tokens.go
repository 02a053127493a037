package stores

import (
	"context"
	"sync"
	"time"
)

// MemoryUsedTokenStore is a process-local marker store. It is correct for a
// single replica only.
type MemoryUsedTokenStore struct {
	mu      sync.Mutex
	markers map[string]UsedTokenMarker
	now     func() time.Time
	sweeps  int
}

func NewMemoryUsedTokenStore() *MemoryUsedTokenStore {
	return &MemoryUsedTokenStore{
		markers: make(map[string]UsedTokenMarker),
		now:     time.Now,
	}
}

// sweepEvery bounds how many writes pass between expiry sweeps.
const sweepEvery = 256

func (s *MemoryUsedTokenStore) MarkUsed(_ context.Context, tokenID, nonce string, expiresAt time.Time) (bool, error) {
	if tokenID == "" || nonce == "" {
		return false, ErrMarkerInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if existing, ok := s.markers[tokenID]; ok && now.Unix() <= existing.ExpiresAt {
		return false, nil
	}

	s.markers[tokenID] = UsedTokenMarker{
		Nonce:     nonce,
		UsedAt:    now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}

	s.sweeps++
	if s.sweeps >= sweepEvery {
		s.sweeps = 0
		for id, m := range s.markers {
			if now.Unix() > m.ExpiresAt {
				delete(s.markers, id)
			}
		}
	}
	return true, nil
}

// Len returns the number of live and not-yet-swept markers.
func (s *MemoryUsedTokenStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers)
}
