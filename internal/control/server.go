// Package control implements the daemon's single-session TCP control
// protocol (spec.md §4.10, §6.2): line-delimited commands in, a single
// pipe-delimited response out, with accept/recv timeouts doubling as the
// scheduling signal for the engine's monitor tick.
//
// The session framing follows the teacher's InboundConnection pattern
// (abligh-goms/goms/inboundconnection.go: a bufio.ReadWriter over a
// net.Conn, with per-operation SetDeadline calls) generalized from SMTP
// verbs to the taskmaster command set.
package control

import (
	"errors"
	"log"
	"net"
	"time"
)

// ErrShutdown is returned by Serve when a client issued the "shutdown"
// command; the caller is responsible for the actual process exit
// (spec.md §6.2: "daemon replies with terminal message then exits").
var ErrShutdown = errors.New("shutdown requested")

// Engine is the subset of *engine.Engine the control server depends on,
// kept as an interface so the protocol layer can be tested without
// spawning real child processes.
type Engine interface {
	Status() string
	Start(names []string) string
	Stop(names []string) string
	Restart(names []string) string
	Reread() string
	Update() string
	Tail(name, stream string) string
	MonitorTick()
}

// Server accepts exactly one client session at a time (spec.md §2: "accepts
// one client session at a time").
type Server struct {
	ln            *net.TCPListener
	eng           Engine
	logger        *log.Logger
	acceptTimeout time.Duration
	recvTimeout   time.Duration
}

// New binds a TCP listener on localhost:port and returns a Server ready to
// Serve. Accept/recv timeouts default to 3s/10s (spec.md §4.10).
func New(port int, eng Engine, logger *log.Logger) (*Server, error) {
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		ln:            ln,
		eng:           eng,
		logger:        logger,
		acceptTimeout: 3 * time.Second,
		recvTimeout:   10 * time.Second,
	}, nil
}

// Close releases the listen socket.
func (s *Server) Close() error {
	return s.ln.Close()
}

// Serve runs the accept loop described in spec.md §4.10's state diagram
// until stopCh is closed (graceful shutdown) or a client sends "shutdown"
// (ErrShutdown).
func (s *Server) Serve(stopCh <-chan struct{}) error {
	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		s.ln.SetDeadline(time.Now().Add(s.acceptTimeout))
		conn, err := s.ln.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				s.eng.MonitorTick()
				continue
			}
			select {
			case <-stopCh:
				return nil
			default:
				return err
			}
		}

		shutdown, err := s.serveSession(conn)
		if err != nil {
			s.logger.Printf("[INFO] session ended: %s", err)
		}
		if shutdown {
			return ErrShutdown
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
