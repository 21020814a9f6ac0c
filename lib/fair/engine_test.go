package fair

import (
	"testing"

	"go.uber.org/zap"
)

type fakeClock struct {
	ms int64
}

func (c *fakeClock) now() int64    { return c.ms }
func (c *fakeClock) advance(d int) { c.ms += int64(d) }

func newTestStore(t *testing.T, numTools, minSlice, maxSlice int) (*Store, *fakeClock) {
	t.Helper()
	cfg := DefaultConfig(numTools, minSlice, maxSlice)
	s := NewStore(cfg, zap.NewNop())
	clock := &fakeClock{ms: 1000}
	s.now = clock.now
	return s, clock
}

func mustAllocate(t *testing.T, s *Store, externalID int) int {
	t.Helper()
	slot, ok := s.Allocate(externalID)
	if !ok {
		t.Fatalf("Allocate(%d) failed", externalID)
	}
	return slot
}

func TestRequestAssignsFreeTool(t *testing.T) {
	s, _ := newTestStore(t, 2, 100, 500)
	slot := mustAllocate(t, s, 1)

	s.Request(slot, 200)

	c := &s.customers[slot]
	if c.State != Using {
		t.Fatalf("state = %v, want Using", c.State)
	}
	if c.CurrentTool == -1 {
		t.Fatal("expected a tool to be assigned")
	}
	if s.tools[c.CurrentTool].CurrentUser != slot {
		t.Fatal("tool does not point back at the customer")
	}
}

func TestRequestQueuesWhenNoFreeToolAndEqualShare(t *testing.T) {
	s, _ := newTestStore(t, 1, 100, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 200)
	if s.customers[a].State != Using {
		t.Fatal("first requester should get the only tool")
	}

	s.Request(b, 200)
	c := &s.customers[b]
	if c.State != Waiting {
		t.Fatalf("second requester state = %v, want Waiting", c.State)
	}
	if s.waitingCount != 1 {
		t.Fatalf("waitingCount = %d, want 1", s.waitingCount)
	}
}

func TestRequestPreemptsEqualShareHolderPastMinSlice(t *testing.T) {
	s, clock := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	clock.advance(60)

	s.Request(b, 1000)

	if s.customers[a].State != Waiting {
		t.Fatalf("victim state = %v, want Waiting", s.customers[a].State)
	}
	if s.customers[b].State != Using {
		t.Fatalf("requester state = %v, want Using", s.customers[b].State)
	}
}

func TestRequestDoesNotPreemptBeforeMinSlice(t *testing.T) {
	s, clock := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	clock.advance(10)

	s.Request(b, 1000)

	if s.customers[a].State != Using {
		t.Fatalf("holder should keep the tool before MinSliceMs, state = %v", s.customers[a].State)
	}
	if s.customers[b].State != Waiting {
		t.Fatalf("requester should queue, state = %v", s.customers[b].State)
	}
}

func TestStrictGreaterPreemptionBlocksEqualShareVictim(t *testing.T) {
	cfg := DefaultConfig(1, 50, 500)
	cfg.StrictGreaterPreemption = true
	s := NewStore(cfg, zap.NewNop())
	clock := &fakeClock{ms: 1000}
	s.now = clock.now

	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	clock.advance(60)
	s.Request(b, 1000)

	if s.customers[a].State != Using {
		t.Fatalf("equal-share victim should be kept under strict mode, got %v", s.customers[a].State)
	}
	if s.customers[b].State != Waiting {
		t.Fatalf("requester should queue under strict mode, got %v", s.customers[b].State)
	}
}

func TestToolTickCompletesAtRequestedDuration(t *testing.T) {
	s, clock := newTestStore(t, 1, 100, 500)
	slot := mustAllocate(t, s, 1)
	s.Request(slot, 100)

	clock.advance(150)

	s.mu.Lock()
	s.tick(0)
	s.mu.Unlock()

	c := &s.customers[slot]
	if c.State != Resting {
		t.Fatalf("state after completion = %v, want Resting", c.State)
	}
	if s.tools[0].CurrentUser != -1 {
		t.Fatal("tool should be free after completion")
	}
}

func TestToolTickHardPreemptsAtMaxSlice(t *testing.T) {
	s, clock := newTestStore(t, 1, 50, 100)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 10000)
	clock.advance(5)
	s.Request(b, 10000)
	if s.customers[b].State != Waiting {
		t.Fatal("second customer should be waiting")
	}

	clock.advance(150)
	s.mu.Lock()
	s.tick(0)
	s.mu.Unlock()

	if s.customers[a].State != Waiting {
		t.Fatalf("holder should be preempted at Q, got %v", s.customers[a].State)
	}
	if s.customers[b].State != Using {
		t.Fatalf("waiter should take over, got %v", s.customers[b].State)
	}
}

func TestToolTickSoftPreemptsLowerShareWaiterPastMinSlice(t *testing.T) {
	s, clock := newTestStore(t, 1, 50, 1000)
	a := mustAllocate(t, s, 1)

	s.Request(a, 10000)
	clock.advance(10)

	s.customers[a].Share = 500

	b := mustAllocate(t, s, 2)
	s.customers[b].Share = 0
	s.Request(b, 10000)
	if s.customers[b].State != Waiting {
		t.Fatal("second customer should be queued behind the first")
	}

	clock.advance(60)
	s.mu.Lock()
	s.tick(0)
	s.mu.Unlock()

	if s.customers[a].State != Waiting {
		t.Fatalf("higher-share holder should be soft-preempted, got %v", s.customers[a].State)
	}
	if s.customers[b].State != Using {
		t.Fatalf("lower-share waiter should take over, got %v", s.customers[b].State)
	}
}

func TestRestWhileUsingReleasesAndAssignsNext(t *testing.T) {
	s, _ := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	s.Request(b, 1000)
	if s.customers[b].State != Waiting {
		t.Fatal("second customer should be waiting")
	}

	s.Rest(a)

	if s.customers[a].State != Resting {
		t.Fatalf("state after REST = %v, want Resting", s.customers[a].State)
	}
	if s.customers[b].State != Using {
		t.Fatalf("waiter should be promoted, got %v", s.customers[b].State)
	}
}

func TestRestWhileWaitingDequeues(t *testing.T) {
	s, _ := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	s.Request(b, 1000)
	s.Rest(b)

	if s.customers[b].State != Resting {
		t.Fatalf("state = %v, want Resting", s.customers[b].State)
	}
	if s.waitingCount != 0 {
		t.Fatalf("waitingCount = %d, want 0", s.waitingCount)
	}
}

func TestRequestWhileUsingReleasesFirst(t *testing.T) {
	s, clock := newTestStore(t, 2, 50, 500)
	a := mustAllocate(t, s, 1)
	s.Request(a, 1000)
	firstTool := s.customers[a].CurrentTool
	clock.advance(30)

	s.Request(a, 2000)

	c := &s.customers[a]
	if c.State != Using {
		t.Fatalf("state after re-request = %v, want Using", c.State)
	}
	if c.RequestDurationMs != 2000 {
		t.Fatalf("RequestDurationMs = %d, want 2000", c.RequestDurationMs)
	}
	_ = firstTool
}

func TestDeallocateWhileUsingFreesToolForWaiter(t *testing.T) {
	s, _ := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)

	s.Request(a, 1000)
	s.Request(b, 1000)

	s.Deallocate(a)

	if s.customers[b].State != Using {
		t.Fatalf("waiter should take over after disconnect, got %v", s.customers[b].State)
	}
	if s.totalCustomers != 1 {
		t.Fatalf("totalCustomers = %d, want 1", s.totalCustomers)
	}
}

func TestReportFormatsWaitersSortedByShare(t *testing.T) {
	s, _ := newTestStore(t, 1, 50, 500)
	a := mustAllocate(t, s, 1)
	b := mustAllocate(t, s, 2)
	c := mustAllocate(t, s, 3)

	s.Request(a, 1000)
	s.customers[b].Share = 50
	s.customers[c].Share = 10
	s.Request(b, 1000)
	s.Request(c, 1000)

	out := s.Report()
	if out == "" {
		t.Fatal("expected non-empty report")
	}
	start := indexOf(out, "waiting list:")
	if start == -1 {
		t.Fatalf("report has no waiting list:\n%s", out)
	}
	waitList := out[start:]
	idxC := indexOf(waitList, "3")
	idxB := indexOf(waitList, "2")
	if idxC == -1 || idxB == -1 || idxC > idxB {
		t.Fatalf("expected lower-share waiter 3 to list before 2:\n%s", out)
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
