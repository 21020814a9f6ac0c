package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KereMath/toolshare/lib/fair"
	"github.com/KereMath/toolshare/lib/instrumentation/prom"
	"github.com/KereMath/toolshare/lib/util/pools"
)

// writerPool recycles the bufio.Writer wrappers the notifier goroutines
// use to buffer their outbound event lines.
var writerPool pools.Locked[*bufio.Writer]

type session struct {
	store *fair.Store
	conn  net.Conn
	slot  int
	log   *zap.Logger

	wg sync.WaitGroup
}

// run starts the notifier goroutine and reads commands until the
// connection closes or a QUIT is received. It returns once the reader
// side is done; the caller is responsible for deallocating the customer
// and then calling waitNotifier before recycling the slot.
func (s *session) run(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.notify()
	}()

	s.readCommands()
}

func (s *session) waitNotifier() {
	s.wg.Wait()
}

func (s *session) readCommands() {
	scanner := bufio.NewScanner(s.conn)
	for scanner.Scan() {
		line := scanner.Text()
		cmd, ok := parseCommand(line)
		if !ok {
			prom.Commands.Rejected(prom.CommandLabels{Command: rejectedLabel(line)}).Inc()
			continue
		}
		s.dispatch(cmd)
		if cmd.verb == verbQuit {
			return
		}
	}
}

// rejectedLabel recovers the verb a malformed line was attempting, for
// metric cardinality purposes only; parseCommand has already discarded it.
func rejectedLabel(line string) string {
	fields := strings.Fields(strings.TrimRight(line, "\r"))
	if len(fields) == 0 {
		return "EMPTY"
	}
	return strings.ToUpper(fields[0])
}

func (s *session) dispatch(cmd command) {
	start := time.Now()
	defer func() {
		prom.Commands.Latency(prom.CommandLabels{Command: cmd.verb.String()}).Observe(time.Since(start).Seconds())
	}()
	prom.Commands.Handled(prom.CommandLabels{Command: cmd.verb.String()}).Inc()

	switch cmd.verb {
	case verbRequest:
		s.store.Request(s.slot, cmd.durationMs)
	case verbRest:
		s.store.Rest(s.slot)
	case verbReport:
		report := s.store.Report()
		if _, err := s.conn.Write([]byte(report)); err != nil {
			s.log.Debug("report write failed", zap.Error(err))
		}
	case verbQuit:
	}
}

func (s *session) notify() {
	w, ok := writerPool.Get()
	if !ok {
		w = bufio.NewWriter(s.conn)
	} else {
		w.Reset(s.conn)
	}
	defer func() {
		writerPool.Put(w)
	}()

	for {
		ev, ok := s.store.NextEvent(s.slot)
		if !ok {
			return
		}
		line := formatEvent(ev)
		if _, err := w.WriteString(line); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug("notify write failed", zap.Error(err))
			}
			return
		}
		if err := w.Flush(); err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.log.Debug("notify flush failed", zap.Error(err))
			}
			return
		}
	}
}

func formatEvent(ev fair.Event) string {
	switch ev.Type {
	case fair.EventAssigned:
		return fmt.Sprintf("Customer %d with share %d is assigned to the tool %d.\n",
			ev.CustomerID, ev.Share, ev.ToolID)
	case fair.EventRemoved:
		return fmt.Sprintf("Customer %d with share %d is removed from the tool %d.\n",
			ev.CustomerID, ev.Share, ev.ToolID)
	case fair.EventCompleted:
		return fmt.Sprintf("Customer %d with share %d leaves the tool %d.\n",
			ev.CustomerID, ev.Share, ev.ToolID)
	default:
		return ""
	}
}
