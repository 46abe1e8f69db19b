package control

import (
	"bufio"
	"io/ioutil"
	"log"
	"net"
	"strings"
	"testing"
	"time"
)

// fakeEngine is a scriptable stand-in for *engine.Engine so the protocol
// layer can be exercised without spawning real child processes, in the
// spirit of the teacher's own tests (abligh-goms/smtpd/control_test.go)
// which dial a real listener and assert on wire behavior.
type fakeEngine struct {
	monitorTicks int
}

func (f *fakeEngine) Status() string                       { return "a           RUNNING   pid 123, " }
func (f *fakeEngine) Start(names []string) string           { return "started:" + strings.Join(names, ",") }
func (f *fakeEngine) Stop(names []string) string            { return "stopped:" + strings.Join(names, ",") }
func (f *fakeEngine) Restart(names []string) string         { return "restarted:" + strings.Join(names, ",") }
func (f *fakeEngine) Reread() string                        { return "reread ok" }
func (f *fakeEngine) Update() string                        { return "update ok" }
func (f *fakeEngine) Tail(name, stream string) string        { return name + ":" + stream }
func (f *fakeEngine) MonitorTick()                           { f.monitorTicks++ }

func newTestServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	fe := &fakeEngine{}
	srv, err := New(0, fe, log.New(ioutil.Discard, "", 0))
	if err != nil {
		t.Fatalf("could not start server: %v", err)
	}
	srv.acceptTimeout = 50 * time.Millisecond
	srv.recvTimeout = 50 * time.Millisecond
	return srv, fe
}

func TestStatusCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	go srv.Serve(stop)
	defer close(stop)

	conn := dial(t, srv)
	defer conn.Close()

	resp := roundTrip(t, conn, "status")
	if !strings.Contains(resp, "RUNNING") {
		t.Fatalf("unexpected status response: %q", resp)
	}
}

func TestStartStopRestartCommands(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	go srv.Serve(stop)
	defer close(stop)

	conn := dial(t, srv)
	defer conn.Close()

	if resp := roundTrip(t, conn, "start a"); resp != "started:a|" {
		t.Fatalf("unexpected start response: %q", resp)
	}
	if resp := roundTrip(t, conn, "stop a"); resp != "stopped:a|" {
		t.Fatalf("unexpected stop response: %q", resp)
	}
	if resp := roundTrip(t, conn, "restart a"); resp != "restarted:a|" {
		t.Fatalf("unexpected restart response: %q", resp)
	}
}

func TestTailRequiresValidStream(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	go srv.Serve(stop)
	defer close(stop)

	conn := dial(t, srv)
	defer conn.Close()

	resp := roundTrip(t, conn, "tail a bogus")
	if !strings.Contains(resp, "error") {
		t.Fatalf("expected a usage error, got %q", resp)
	}

	resp = roundTrip(t, conn, "tail a stdout")
	if resp != "a:stdout|" {
		t.Fatalf("unexpected tail response: %q", resp)
	}
}

func TestUnknownCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	go srv.Serve(stop)
	defer close(stop)

	conn := dial(t, srv)
	defer conn.Close()

	resp := roundTrip(t, conn, "frobnicate")
	if !strings.Contains(resp, "unknown command") {
		t.Fatalf("expected unknown command error, got %q", resp)
	}
}

func TestEmptyLineEndsSession(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	go srv.Serve(stop)
	defer close(stop)

	conn := dial(t, srv)
	conn.Write([]byte("\n"))
	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err == nil && n > 0 {
		t.Fatalf("expected connection to close, got data %q", buf[:n])
	}
}

func TestShutdownCommand(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Serve(stop) }()

	conn := dial(t, srv)
	defer conn.Close()

	resp := roundTrip(t, conn, "shutdown")
	if !strings.Contains(resp, "shutting down") {
		t.Fatalf("unexpected shutdown response: %q", resp)
	}

	select {
	case err := <-done:
		if err != ErrShutdown {
			t.Fatalf("expected ErrShutdown, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Serve did not return after shutdown")
	}
}

func dial(t *testing.T, srv *Server) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", srv.ln.Addr().String())
	if err != nil {
		t.Fatalf("could not dial test server: %v", err)
	}
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, cmd string) string {
	t.Helper()
	if _, err := conn.Write([]byte(cmd + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return strings.TrimRight(line, "\n")
}
