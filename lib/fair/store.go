// Package fair implements the fairness and preemption engine: a
// fixed-capacity customer arena, a fixed-size tool table, an indexed
// min-heap of waiting customers, and the single coarse lock that guards
// all of it.
package fair

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KereMath/toolshare/lib/heap"
	"github.com/KereMath/toolshare/lib/instrumentation/prom"
	"github.com/KereMath/toolshare/lib/util/decorator"
)

// Store holds every mutable piece of scheduler state behind one mutex.
// There is no lock hierarchy: every method below takes s.mu itself or is
// documented as requiring it already held.
type Store struct {
	_ decorator.NoCopy

	log *zap.Logger
	cfg Config
	now func() int64

	mu   sync.Mutex
	cond *sync.Cond

	customers []Customer
	freeSlots []int

	tools []Tool

	waitQueue *heap.Heap

	totalCustomers int
	waitingCount   int
	restingCount   int
	totalShare     float64

	shuttingDown bool
}

// NewStore builds a Store ready to accept Allocate calls. Tool goroutines
// are not started until RunTools is called.
func NewStore(cfg Config, log *zap.Logger) *Store {
	s := &Store{
		log:       log,
		cfg:       cfg,
		now:       nowMs,
		customers: make([]Customer, MaxCustomers),
		freeSlots: make([]int, MaxCustomers),
		tools:     make([]Tool, cfg.NumTools),
	}
	s.cond = sync.NewCond(&s.mu)
	for i := range s.customers {
		s.customers[i].HeapIndex = -1
		s.customers[i].CurrentTool = -1
		s.customers[i].Cond = sync.NewCond(&s.mu)
		s.freeSlots[i] = MaxCustomers - 1 - i
	}
	for i := range s.tools {
		s.tools[i].ID = i
		s.tools[i].CurrentUser = -1
	}
	s.waitQueue = heap.New(s, MaxCustomers)
	return s
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Share, HeapIndex and SetHeapIndex implement heap.Backing.
func (s *Store) Share(slot int) float64 {
	c := &s.customers[slot]
	if s.cfg.FIFOTieBreak {
		return c.Share + float64(c.WaitStartMs)/1e12
	}
	return c.Share
}

func (s *Store) HeapIndex(slot int) int { return s.customers[slot].HeapIndex }

func (s *Store) SetHeapIndex(slot int, idx int) { s.customers[slot].HeapIndex = idx }

// RunTools starts one goroutine per tool plus a heartbeat goroutine, and
// blocks until ctx is cancelled. On cancellation it marks the store as
// shutting down, wakes every idle tool loop, and waits for them to exit.
func (s *Store) RunTools(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.NumTools; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.toolLoop(ctx, id)
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.heartbeat(ctx)
	}()

	<-ctx.Done()

	s.mu.Lock()
	s.shuttingDown = true
	s.cond.Broadcast()
	s.mu.Unlock()

	wg.Wait()
}

func (s *Store) toolLoop(ctx context.Context, id int) {
	for {
		s.mu.Lock()
		if s.shuttingDown {
			s.mu.Unlock()
			return
		}
		if s.tools[id].CurrentUser == -1 {
			s.cond.Wait()
			s.mu.Unlock()
			continue
		}
		s.tick(id)
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.TickInterval):
		}
	}
}

func (s *Store) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.cond.Broadcast()
			s.updateGauges()
			s.mu.Unlock()
		}
	}
}

// updateGauges samples the aggregate customer counts into the gauges in
// lib/instrumentation/prom. Called with s.mu held.
func (s *Store) updateGauges() {
	using := s.totalCustomers - s.restingCount - s.waitingCount
	prom.Customers.Resting(prom.NoLabels{}).Set(float64(s.restingCount))
	prom.Customers.Waiting(prom.NoLabels{}).Set(float64(s.waitingCount))
	prom.Customers.Using(prom.NoLabels{}).Set(float64(using))
}

// NumTools reports the configured tool count.
func (s *Store) NumTools() int {
	return s.cfg.NumTools
}
