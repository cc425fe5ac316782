package llm

import (
	"sync"
	"time"
)

// stats accumulates request aggregates; every call completion updates it
// atomically under the mutex.
type stats struct {
	mu           sync.Mutex
	totalReqs    int64
	errorCount   int64
	totalLatency time.Duration
}

func (s *stats) record(latency time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totalReqs++
	s.totalLatency += latency
	if !success {
		s.errorCount++
	}
}

func (s *stats) snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.totalReqs == 0 {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		TotalRequests:  s.totalReqs,
		AverageLatency: s.totalLatency / time.Duration(s.totalReqs),
		ErrorRate:      float64(s.errorCount) / float64(s.totalReqs) * 100,
		SuccessRate:    float64(s.totalReqs-s.errorCount) / float64(s.totalReqs) * 100,
	}
}
