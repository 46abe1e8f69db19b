package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"time"
)

// serveSession processes one client connection's commands serially
// (spec.md §5: "the response for command i is fully written before
// command i+1 is read"), running monitor ticks on recv timeouts. It
// returns (true, nil) when the client issued "shutdown".
func (s *Server) serveSession(conn *net.TCPConn) (bool, error) {
	defer conn.Close()
	rd := bufio.NewReader(conn)

	for {
		conn.SetReadDeadline(time.Now().Add(s.recvTimeout))
		line, err := rd.ReadString('\n')
		if err != nil {
			if isTimeout(err) {
				s.eng.MonitorTick()
				continue
			}
			if line == "" {
				// Connection closed by the client mid-session; the
				// engine is unaffected (spec.md §4.11).
				return false, nil
			}
			// A partial line with no trailing newline followed by EOF:
			// treat it as one last command, then end the session.
		}

		cmd := strings.TrimRight(line, "\r\n")
		if cmd == "" {
			return false, nil
		}

		if strings.EqualFold(cmd, "shutdown") {
			fmt.Fprintf(conn, "taskmasterd shutting down|\n")
			return true, nil
		}

		resp := s.dispatch(cmd)
		if _, err := fmt.Fprintf(conn, "%s|\n", resp); err != nil {
			return false, err
		}
	}
}

// dispatch implements spec.md §6.2's command set. Only the verb token is
// lowercased (spec.md §6.2: "space-separated tokens, lowercased" refers
// to the command word, per _examples/original_source/taskmaster/
// taskmasterd.py, which compares only the verb and leaves arguments
// untouched) — program names are case-sensitive, so lowercasing them too
// would make any program whose configured name contains an uppercase
// letter uncontrollable via start/stop/restart/tail. Unknown commands and
// wrong-arity calls produce an error response segment without touching
// engine state (spec.md §7, protocol errors).
func (s *Server) dispatch(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "error: empty command"
	}
	fields[0] = strings.ToLower(fields[0])

	switch fields[0] {
	case "status":
		return s.eng.Status()

	case "start":
		if len(fields) < 2 {
			return "error: start requires at least one program name or 'all'"
		}
		return s.eng.Start(fields[1:])

	case "stop":
		if len(fields) < 2 {
			return "error: stop requires at least one program name or 'all'"
		}
		return s.eng.Stop(fields[1:])

	case "restart":
		if len(fields) < 2 {
			return "error: restart requires at least one program name or 'all'"
		}
		return s.eng.Restart(fields[1:])

	case "reread":
		return s.eng.Reread()

	case "update":
		return s.eng.Update()

	case "tail":
		if len(fields) != 3 || (fields[2] != "stdout" && fields[2] != "stderr") {
			return "error: usage: tail <name> stdout|stderr"
		}
		return s.eng.Tail(fields[1], fields[2])

	default:
		return fmt.Sprintf("error: unknown command %q", fields[0])
	}
}
