// Package metrics samples host system load (CPU, memory, process count)
// at a fixed interval for broadcast to connected tabs.
package metrics

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// Snapshot is one point-in-time reading of host load.
type Snapshot struct {
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent"`
	ProcessCount  int       `json:"process_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// Sampler periodically reads host metrics and hands each snapshot to a
// callback. A failed probe never surfaces to clients: the sampler logs
// it and re-emits the last good snapshot so the stream stays regular.
type Sampler struct {
	interval time.Duration
	onSample func(Snapshot)

	// sample is Sample in production; tests swap it to script failures.
	sample func() (Snapshot, error)

	mu     sync.RWMutex
	latest Snapshot
	valid  bool
}

// NewSampler creates a sampler firing every interval. onSample is called
// from the sampler goroutine; it must not block.
func NewSampler(interval time.Duration, onSample func(Snapshot)) *Sampler {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Sampler{interval: interval, onSample: onSample, sample: Sample}
}

// Latest returns the most recent snapshot and whether one exists yet.
func (s *Sampler) Latest() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.valid
}

// Run samples until ctx is canceled. It takes one immediate sample so
// freshly connected clients don't wait a full interval for the first
// reading.
func (s *Sampler) Run(ctx context.Context) {
	s.tick()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Sampler) tick() {
	snap, err := s.sample()
	if err != nil {
		log.Printf("metrics: sample failed: %v", err)
		s.mu.RLock()
		last, valid := s.latest, s.valid
		s.mu.RUnlock()
		if valid && s.onSample != nil {
			// Re-stamp so clients can tell the feed is alive even while
			// the readings are stale.
			last.Timestamp = time.Now().UTC()
			s.onSample(last)
		}
		return
	}

	s.mu.Lock()
	s.latest = snap
	s.valid = true
	s.mu.Unlock()

	if s.onSample != nil {
		s.onSample(snap)
	}
}

// Sample takes a single reading of host load. CPU percent is the
// instantaneous aggregate across all cores.
func Sample() (Snapshot, error) {
	snap := Snapshot{Timestamp: time.Now().UTC()}

	cpuPercents, err := cpu.Percent(0, false)
	if err != nil {
		return Snapshot{}, err
	}
	if len(cpuPercents) > 0 {
		snap.CPUPercent = clampPercent(cpuPercents[0])
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}
	snap.MemoryPercent = clampPercent(vm.UsedPercent)

	pids, err := process.Pids()
	if err != nil {
		return Snapshot{}, err
	}
	snap.ProcessCount = len(pids)

	return snap, nil
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
