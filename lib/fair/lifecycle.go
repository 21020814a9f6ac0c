package fair

import "go.uber.org/zap"

// Allocate reserves a free arena slot for externalID, starting it Resting
// with the mean share of existing customers (0 if this is the first).
// Fails if the store is shutting down or the arena is full.
func (s *Store) Allocate(externalID int) (slot int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuttingDown {
		return -1, false
	}
	if len(s.freeSlots) == 0 {
		s.log.Warn("customer arena exhausted", zap.Int("max_customers", MaxCustomers))
		return -1, false
	}

	slot = s.freeSlots[len(s.freeSlots)-1]
	s.freeSlots = s.freeSlots[:len(s.freeSlots)-1]

	c := &s.customers[slot]
	c.Allocated = true
	c.ID = externalID
	c.State = Resting
	c.RequestDurationMs = 0
	c.RemainingMs = 0
	c.CurrentTool = -1
	c.SessionStartMs = 0
	c.WaitStartMs = 0
	c.HeapIndex = -1
	c.EventPending = false
	c.EventType = EventNone
	c.EventToolID = -1

	if s.totalCustomers > 0 {
		c.Share = s.totalShare / float64(s.totalCustomers)
	} else {
		c.Share = 0
	}

	s.totalCustomers++
	s.restingCount++
	s.totalShare += c.Share

	s.log.Debug("customer allocated", zap.Int("slot", slot), zap.Int("external_id", externalID))
	s.updateGauges()

	return slot, true
}

// Deallocate releases slot: a held tool is released as Left and handed to
// the next waiter, a queued slot is dequeued, aggregates are decremented,
// and the customer's notifier is woken so it can observe deallocation and
// return. Deallocate does not return the slot to the free list itself —
// the caller must wait for the customer's notifier goroutine to exit
// (observing Allocated == false) before calling Free, otherwise a new
// Allocate could recycle the slot while the old notifier still holds a
// reference to it.
func (s *Store) Deallocate(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.customers[slot]
	if !c.Allocated {
		return
	}

	switch c.State {
	case Using:
		toolID := c.CurrentTool
		if toolID != -1 {
			s.removeCustomerFromTool(slot, Left)
			s.assignNextFromQueue(toolID)
		}
	case Waiting:
		if c.HeapIndex != -1 {
			_ = s.waitQueue.Delete(slot)
		}
		s.waitingCount--
	case Resting:
		s.restingCount--
	}

	s.totalCustomers--
	s.totalShare -= c.Share

	c.Allocated = false
	c.EventPending = false
	c.Cond.Signal()

	s.log.Debug("customer deallocated", zap.Int("slot", slot))
	s.updateGauges()
}

// Free returns slot to the free list. Call only after the customer's
// notifier goroutine has confirmed it returned from NextEvent.
func (s *Store) Free(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.freeSlots = append(s.freeSlots, slot)
}
