package fair

import (
	"fmt"
	"sort"
	"strings"
)

type waiterEntry struct {
	id         int
	durationMs int
	share      int
}

type toolEntry struct {
	id          int
	free        bool
	totalUsage  int64
	customerID  int
	share       int
	remainingMs int
}

type reportData struct {
	numTools       int
	waitingCount   int
	restingCount   int
	totalCustomers int
	avgShare       float64
	waiters        []waiterEntry
	tools          []toolEntry
}

// Report renders the REPORT response text. With Config.ReportWithoutLock
// the global lock is held only long enough to copy the raw fields;
// formatting and sorting happen afterward. Otherwise the lock is held for
// the whole call, matching the literal behavior this replaces.
func (s *Store) Report() string {
	var data reportData
	if s.cfg.ReportWithoutLock {
		s.mu.Lock()
		data = s.snapshotReport()
		s.mu.Unlock()
	} else {
		s.mu.Lock()
		defer s.mu.Unlock()
		data = s.snapshotReport()
	}
	return formatReport(data)
}

func (s *Store) snapshotReport() reportData {
	now := s.now()

	data := reportData{
		numTools:       s.cfg.NumTools,
		waitingCount:   s.waitingCount,
		restingCount:   s.restingCount,
		totalCustomers: s.totalCustomers,
	}
	if s.totalCustomers > 0 {
		data.avgShare = s.totalShare / float64(s.totalCustomers)
	}

	for i := range s.customers {
		c := &s.customers[i]
		if c.Allocated && c.State == Waiting {
			data.waiters = append(data.waiters, waiterEntry{
				id:         c.ID,
				durationMs: int(now - c.WaitStartMs),
				share:      int(c.Share),
			})
		}
	}

	data.tools = make([]toolEntry, s.cfg.NumTools)
	for i := range data.tools {
		t := &s.tools[i]
		if t.CurrentUser == -1 {
			data.tools[i] = toolEntry{id: i, free: true, totalUsage: t.TotalUsageMs}
			continue
		}
		c := &s.customers[t.CurrentUser]
		current := now - t.SessionStartMs
		data.tools[i] = toolEntry{
			id:          i,
			free:        false,
			totalUsage:  t.TotalUsageMs + current,
			customerID:  c.ID,
			share:       int(c.Share),
			remainingMs: c.RemainingMs,
		}
	}

	return data
}

func formatReport(d reportData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "k: %d, customers: %d waiting, %d resting, %d in total\n",
		d.numTools, d.waitingCount, d.restingCount, d.totalCustomers)
	fmt.Fprintf(&b, "average share: %.2f\n", d.avgShare)
	b.WriteString("waiting list:\n")
	b.WriteString("customer   duration  share\n")
	b.WriteString("---------------------------\n")

	waiters := append([]waiterEntry(nil), d.waiters...)
	sort.Slice(waiters, func(i, j int) bool {
		if waiters[i].share != waiters[j].share {
			return waiters[i].share < waiters[j].share
		}
		return waiters[i].id < waiters[j].id
	})
	for _, w := range waiters {
		fmt.Fprintf(&b, "%-12d %10d %12d\n", w.id, w.durationMs, w.share)
	}

	b.WriteString("\nTools:\n")
	b.WriteString("id   totaluse currentuser share duration\n")
	b.WriteString("--------------\n")
	for _, t := range d.tools {
		if t.free {
			fmt.Fprintf(&b, "%-5d %12d FREE\n", t.id, t.totalUsage)
			continue
		}
		fmt.Fprintf(&b, "%-5d %12d %-12d %10d %12d\n",
			t.id, t.totalUsage, t.customerID, t.share, t.remainingMs)
	}

	return b.String()
}
