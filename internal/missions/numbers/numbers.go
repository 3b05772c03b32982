package numbers

import (
	"context"
	"sync"
)

// Source yields the integers 0..count-1 in order.
type Source struct {
	mu    sync.Mutex
	count int
	next  int
}

func NewSource(count int) *Source {
	if count < 0 {
		count = 0
	}
	return &Source{count: count}
}

func (s *Source) GetNext(ctx context.Context) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= s.count {
		return 0, false, nil
	}
	n := s.next
	s.next++
	return n, true, nil
}

// ComputeExpectedCount assumes one result per mission.
func (s *Source) ComputeExpectedCount(_ context.Context) (int, error) {
	return s.count, nil
}
