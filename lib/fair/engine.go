package fair

import (
	"math"
	"strconv"

	"go.uber.org/zap"

	"github.com/KereMath/toolshare/lib/instrumentation/prom"
	"github.com/KereMath/toolshare/lib/util/maths"
)

// Request handles a REQUEST <ms> command for slot. A customer already
// Using a tool is released first (as Left) before the new request is
// evaluated, folding the "request while holding a tool" case into the
// same release-then-request path used for a Resting or Waiting customer.
func (s *Store) Request(slot int, durationMs int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.customers[slot]
	if !c.Allocated {
		return
	}

	switch c.State {
	case Resting:
		s.restingCount--
	case Waiting:
		if c.HeapIndex != -1 {
			_ = s.waitQueue.Delete(slot)
		}
		s.waitingCount--
	case Using:
		toolID := c.CurrentTool
		s.removeCustomerFromTool(slot, Left)
		s.assignNextFromQueue(toolID)
	}

	c.RequestDurationMs = durationMs
	c.RemainingMs = durationMs

	if tool := s.findFreeTool(); tool != -1 {
		s.assignToolToCustomer(slot, tool)
	} else if tool := s.findPreemptionCandidate(c.Share); tool != -1 {
		oldUser := s.tools[tool].CurrentUser
		s.removeCustomerFromTool(oldUser, Removed)
		s.enqueueWaiting(oldUser)
		s.assignToolToCustomer(slot, tool)
		prom.Tools.Preemptions(prom.ToolLabels{ToolID: strconv.Itoa(tool)}).Inc()
	} else {
		s.enqueueWaiting(slot)
	}

	s.cond.Broadcast()
}

// Rest handles a REST command. Using releases the tool as Left and hands
// it to the next waiter; Waiting dequeues; Resting is a no-op.
func (s *Store) Rest(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.customers[slot]
	if !c.Allocated {
		return
	}

	switch c.State {
	case Using:
		toolID := c.CurrentTool
		s.removeCustomerFromTool(slot, Left)
		s.assignNextFromQueue(toolID)
		c.State = Resting
		s.restingCount++
	case Waiting:
		if c.HeapIndex != -1 {
			_ = s.waitQueue.Delete(slot)
		}
		s.waitingCount--
		c.State = Resting
		s.restingCount++
	case Resting:
	}
}

// tick re-evaluates tool id's current holder. Called with s.mu held, from
// the tool's own polling goroutine. Precedence: completion, then the hard
// slice Q, then the soft slice q.
func (s *Store) tick(id int) {
	tool := &s.tools[id]
	if tool.CurrentUser == -1 {
		return
	}
	c := &s.customers[tool.CurrentUser]

	elapsed := s.refreshToolUsage(id)

	c.RemainingMs = maths.Clamp(c.RequestDurationMs-elapsed, 0, math.MaxInt)

	switch {
	case c.RemainingMs <= 0:
		holder := tool.CurrentUser
		s.removeCustomerFromTool(holder, Completed)
		s.customers[holder].State = Resting
		s.restingCount++
		s.assignNextFromQueue(id)

	case elapsed >= s.cfg.MaxSliceMs:
		if s.waitQueue.Len() > 0 {
			holder := tool.CurrentUser
			s.removeCustomerFromTool(holder, Removed)
			s.enqueueWaiting(holder)
			s.assignNextFromQueue(id)
			prom.Tools.Preemptions(prom.ToolLabels{ToolID: strconv.Itoa(id)}).Inc()
		}

	case elapsed >= s.cfg.MinSliceMs && s.waitQueue.Len() > 0:
		minSlot, ok := s.waitQueue.PeekMin()
		if ok && s.customers[minSlot].Share < c.Share {
			holder := tool.CurrentUser
			s.removeCustomerFromTool(holder, Removed)
			s.enqueueWaiting(holder)
			s.assignNextFromQueue(id)
			prom.Tools.Preemptions(prom.ToolLabels{ToolID: strconv.Itoa(id)}).Inc()
		}
	}
}

// enqueueWaiting transitions slot to Waiting and inserts it into the heap.
func (s *Store) enqueueWaiting(slot int) {
	c := &s.customers[slot]
	c.State = Waiting
	c.WaitStartMs = s.now()
	if err := s.waitQueue.Insert(slot); err != nil {
		s.log.Warn("waiting queue insert failed", zap.Int("slot", slot), zap.Error(err))
	}
	s.waitingCount++
}

// assignToolToCustomer gives tool id to slot, clearing any prior Waiting
// bookkeeping and raising an Assigned event.
func (s *Store) assignToolToCustomer(slot int, toolID int) {
	c := &s.customers[slot]
	t := &s.tools[toolID]

	if c.State == Waiting && c.HeapIndex != -1 {
		_ = s.waitQueue.Delete(slot)
		s.waitingCount--
	}

	now := s.now()
	c.State = Using
	c.CurrentTool = toolID
	c.SessionStartMs = now

	t.CurrentUser = slot
	t.CurrentUsageMs = 0
	t.SessionStartMs = now

	c.EventPending = true
	c.EventType = EventAssigned
	c.EventToolID = toolID
	c.Cond.Signal()

	s.log.Debug("tool assigned",
		zap.Int("customer", c.ID), zap.Int("tool", toolID), zap.Float64("share", c.Share))
}

// removeCustomerFromTool folds usage into share/totals and raises the
// notification matching kind: Removed gets EventRemoved, Completed and
// Left both get EventCompleted.
func (s *Store) removeCustomerFromTool(slot int, kind ReleaseKind) {
	c := &s.customers[slot]
	if c.CurrentTool == -1 {
		return
	}
	t := &s.tools[c.CurrentTool]

	now := s.now()
	usage := maths.Max(now-c.SessionStartMs, 0)
	c.Share += float64(usage)
	s.totalShare += float64(usage)
	t.TotalUsageMs += usage
	prom.Tools.Utilization(prom.ToolLabels{ToolID: strconv.Itoa(c.CurrentTool)}).Add(float64(usage))

	toolID := c.CurrentTool
	t.CurrentUser = -1
	t.CurrentUsageMs = 0
	c.CurrentTool = -1

	c.EventPending = true
	c.EventType = kind.event()
	c.EventToolID = toolID
	c.Cond.Signal()

	s.log.Debug("tool released",
		zap.Int("customer", c.ID), zap.Int("tool", toolID), zap.String("kind", releaseKindName(kind)))
}

func releaseKindName(k ReleaseKind) string {
	switch k {
	case Completed:
		return "completed"
	case Removed:
		return "removed"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// assignNextFromQueue hands toolID to the lowest-share waiter, if any.
func (s *Store) assignNextFromQueue(toolID int) {
	slot, ok := s.waitQueue.PopMin()
	if !ok {
		return
	}
	s.waitingCount--
	s.assignToolToCustomer(slot, toolID)
}

// findFreeTool returns the idle tool with the smallest total usage,
// ties broken by smallest id, or -1 if every tool is occupied.
func (s *Store) findFreeTool() int {
	best := -1
	var minUsage int64
	for i := range s.tools {
		if s.tools[i].CurrentUser != -1 {
			continue
		}
		u := s.tools[i].TotalUsageMs
		if best == -1 || u < minUsage {
			minUsage = u
			best = i
		}
	}
	return best
}

// findPreemptionCandidate returns the occupied tool whose current holder
// has the largest current-session usage, ties broken by smallest id,
// provided the holder's share qualifies against newShare and its usage
// has reached the minimum slice.
func (s *Store) findPreemptionCandidate(newShare float64) int {
	candidate := -1
	maxUsage := 0
	for i := range s.tools {
		user := s.tools[i].CurrentUser
		if user == -1 {
			continue
		}
		usage := s.refreshToolUsage(i)
		if usage > maxUsage || (candidate == -1 && usage >= maxUsage) {
			maxUsage = usage
			candidate = i
		}
	}
	if candidate == -1 {
		return -1
	}

	victim := &s.customers[s.tools[candidate].CurrentUser]
	if s.cfg.StrictGreaterPreemption {
		if victim.Share <= newShare {
			return -1
		}
	} else if victim.Share < newShare {
		return -1
	}
	if s.tools[candidate].CurrentUsageMs < s.cfg.MinSliceMs {
		return -1
	}
	return candidate
}

// refreshToolUsage recomputes tool id's current-session usage from its
// session start rather than trusting whatever tick last cached, so a
// Request arriving between two ticks still sees an accurate value.
func (s *Store) refreshToolUsage(id int) int {
	t := &s.tools[id]
	if t.CurrentUser == -1 {
		return 0
	}
	elapsed := maths.Max(int(s.now()-t.SessionStartMs), 0)
	t.CurrentUsageMs = elapsed
	return elapsed
}
