// Package transport wires the fairness engine in lib/fair to the network:
// it accepts connections, assigns each one a customer slot, and runs its
// command reader and notifier goroutines.
package transport

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KereMath/toolshare/lib/fair"
	"github.com/KereMath/toolshare/lib/instrumentation/prom"
	"github.com/KereMath/toolshare/lib/util/slices"
)

// Listen opens a listener for addr. A leading '@' selects a Unix domain
// socket at the path that follows (any stale socket file is removed
// first); anything containing a ':' is treated as a TCP host:port.
func Listen(addr string) (net.Listener, error) {
	switch {
	case strings.HasPrefix(addr, "@"):
		path := addr[1:]
		_ = os.Remove(path)
		return net.Listen("unix", path)
	case strings.Contains(addr, ":"):
		return net.Listen("tcp", addr)
	default:
		return nil, fmt.Errorf("transport: invalid connection string %q, want @path or host:port", addr)
	}
}

// Server accepts connections and turns each into a customer session.
type Server struct {
	Store *fair.Store
	Log   *zap.Logger
	Addr  string

	nextCustomerID atomic.Int64

	activeMu sync.Mutex
	active   []uuid.UUID
}

// Active returns the connection ids currently being served.
func (s *Server) Active() []uuid.UUID {
	s.activeMu.Lock()
	defer s.activeMu.Unlock()
	return append([]uuid.UUID(nil), s.active...)
}

func (s *Server) trackActive(id uuid.UUID) {
	s.activeMu.Lock()
	s.active = append(s.active, id)
	s.activeMu.Unlock()
}

func (s *Server) untrackActive(id uuid.UUID) {
	s.activeMu.Lock()
	s.active = slices.Delete(s.active, id)
	s.activeMu.Unlock()
}

// Serve runs the accept loop until ctx is cancelled or ln.Accept fails for
// a reason other than the listener being closed during shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		prom.Listener.Incoming(prom.ListenerLabels{ListenAddr: s.Addr}).Inc()
		go s.handle(ctx, conn)
	}
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	connID := uuid.New()
	log := s.Log.With(zap.String("conn", connID.String()))

	externalID := int(s.nextCustomerID.Add(1))
	slot, ok := s.Store.Allocate(externalID)
	if !ok {
		prom.Listener.Rejected(prom.ListenerLabels{ListenAddr: s.Addr}).Inc()
		log.Warn("rejected connection: no free customer slot")
		return
	}
	prom.Listener.Accepted(prom.ListenerLabels{ListenAddr: s.Addr}).Inc()
	log.Debug("customer connected", zap.Int("customer_id", externalID))
	s.trackActive(connID)

	sess := &session{
		store: s.Store,
		conn:  conn,
		slot:  slot,
		log:   log,
	}
	sess.run(ctx)

	s.Store.Deallocate(slot)
	sess.waitNotifier()
	s.Store.Free(slot)
	s.untrackActive(connID)

	log.Debug("customer disconnected", zap.Int("customer_id", externalID))
}
