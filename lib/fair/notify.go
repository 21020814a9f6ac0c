package fair

// NextEvent blocks until slot has a pending notification or is
// deallocated. It returns ok == false once the customer is gone, which
// is the notifier's signal to stop. At most one event is ever pending: a
// newer event overwrites whatever was not yet consumed.
func (s *Store) NextEvent(slot int) (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.customers[slot]
	for !c.EventPending && c.Allocated {
		c.Cond.Wait()
	}
	if !c.Allocated {
		return Event{}, false
	}

	ev := Event{
		Type:       c.EventType,
		ToolID:     c.EventToolID,
		Share:      int(c.Share),
		CustomerID: c.ID,
	}
	c.EventPending = false
	return ev, true
}
