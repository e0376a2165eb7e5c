package coordinator

import (
	"hash/fnv"
	"sync"
)

// StripeLock serializes work per key without a single global lock: two
// different partner ids can be handled concurrently, but the same partner id
// never runs on two goroutines at once (per-saga serialization).
type StripeLock struct {
	stripes []sync.Mutex
}

func NewStripeLock(n int) *StripeLock {
	if n <= 0 {
		n = 1
	}
	return &StripeLock{stripes: make([]sync.Mutex, n)}
}

// Lock acquires the stripe owning key and returns the function that
// releases it.
func (s *StripeLock) Lock(key string) func() {
	idx := s.index(key)
	s.stripes[idx].Lock()
	return s.stripes[idx].Unlock
}

func (s *StripeLock) index(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.stripes)))
}
