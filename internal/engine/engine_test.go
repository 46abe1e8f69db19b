package engine

import (
	"log"
	"os"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/rouhija/taskmaster/internal/config"
)

func testLogger() *log.Logger {
	return log.New(os.Stderr, "test: ", 0)
}

func minimalProgram(name string, command []string) *config.Program {
	return &config.Program{
		Name:         name,
		Command:      command,
		AutoStart:    true,
		AutoRestart:  config.RestartAlways,
		Restarts:     3,
		KillTimeout:  3,
		StartupWait:  0.05,
		Instances:    1,
		StopSignal:   syscall.SIGTERM,
		ExpectedExit: map[int]struct{}{0: {}},
		Umask:        0o22,
	}
}

func newTestEngine(programs ...*config.Program) *Engine {
	cfg := &config.Config{Programs: make(map[string]*config.Program)}
	for _, p := range programs {
		cfg.Programs[p.Name] = p
		cfg.Names = append(cfg.Names, p.Name)
	}
	return New(cfg, "", testLogger())
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func TestAutostartAndStatus(t *testing.T) {
	e := newTestEngine(minimalProgram("a", []string{"/bin/sleep", "10"}))
	e.Init()

	entry := e.catalog["a"]
	if entry.Runtime.State != Running {
		t.Fatalf("expected a to be RUNNING, got %v", entry.Runtime.State)
	}

	status := e.Status()
	if !strings.Contains(status, "a") || !strings.Contains(status, "RUNNING") {
		t.Fatalf("unexpected status output: %q", status)
	}
	if !strings.Contains(status, "pid "+strconv.Itoa(entry.Runtime.Pid)) {
		t.Fatalf("expected pid in status output: %q", status)
	}

	e.Stop([]string{"all"})
}

func TestStopIdempotence(t *testing.T) {
	e := newTestEngine(minimalProgram("a", []string{"/bin/sleep", "10"}))
	e.Init()

	resp := e.Stop([]string{"a"})
	if resp != "stopped a successfully" {
		t.Fatalf("unexpected first stop response: %q", resp)
	}

	resp = e.Stop([]string{"a"})
	if resp != "a is already stopped" {
		t.Fatalf("unexpected second stop response: %q", resp)
	}
}

func TestStartupRetryExhaustion(t *testing.T) {
	prog := minimalProgram("b", []string{"/bin/false"})
	prog.Restarts = 2
	prog.StartupWait = 0.05
	e := newTestEngine(prog)

	resp := e.Start([]string{"b"})
	if !strings.Contains(resp, "unsuccessful after 2 retries") {
		t.Fatalf("unexpected response: %q", resp)
	}
	if e.catalog["b"].Runtime.State != Stopped {
		t.Fatalf("expected STOPPED, got %v", e.catalog["b"].Runtime.State)
	}
}

func TestKillEscalation(t *testing.T) {
	prog := minimalProgram("c", []string{"sh", "-c", "trap '' TERM; sleep 30"})
	prog.KillTimeout = 1
	prog.StartupWait = 0.1
	e := newTestEngine(prog)

	if resp := e.Start([]string{"c"}); !strings.Contains(resp, "started") {
		t.Fatalf("unexpected start response: %q", resp)
	}

	resp := e.Stop([]string{"c"})
	if !strings.Contains(resp, "Killed c after timeout (1 seconds)") {
		t.Fatalf("unexpected stop response: %q", resp)
	}
	if e.catalog["c"].Runtime.State != Exited {
		t.Fatalf("expected EXITED, got %v", e.catalog["c"].Runtime.State)
	}
}

func TestAutorestartUnexpected(t *testing.T) {
	prog := minimalProgram("d", []string{"sh", "-c", "sleep 0.2; exit 7"})
	prog.AutoRestart = config.RestartUnexpected
	prog.ExpectedExit = map[int]struct{}{7: {}}
	prog.StartupWait = 0.05
	e := newTestEngine(prog)

	e.Init()
	waitUntil(t, 2*time.Second, func() bool {
		e.MonitorTick()
		return e.catalog["d"].Runtime.State == Exited
	})

	// give it a couple more ticks to make sure it does NOT come back
	for i := 0; i < 3; i++ {
		time.Sleep(30 * time.Millisecond)
		e.MonitorTick()
	}
	if e.catalog["d"].Runtime.State != Exited {
		t.Fatalf("expected program to remain EXITED with matching expected_exit, got %v", e.catalog["d"].Runtime.State)
	}
}

func TestInstancesExpansion(t *testing.T) {
	base := minimalProgram("f", []string{"/bin/sleep", "10"})
	base.Instances = 3

	cfg := &config.Config{Programs: make(map[string]*config.Program)}
	for i := 0; i < 3; i++ {
		clone := *base
		clone.Name = "f(" + strconv.Itoa(i) + ")"
		cfg.Programs[clone.Name] = &clone
		cfg.Names = append(cfg.Names, clone.Name)
	}

	e := New(cfg, "", testLogger())
	e.Init()

	if _, ok := e.catalog["f"]; ok {
		t.Fatalf("base name should not appear in the catalog")
	}
	for i := 0; i < 3; i++ {
		if _, ok := e.catalog["f("+strconv.Itoa(i)+")"]; !ok {
			t.Fatalf("expected instance f(%d)", i)
		}
	}
	e.Stop([]string{"all"})
}

func TestRestartRewritesStartedToRestarted(t *testing.T) {
	e := newTestEngine(minimalProgram("a", []string{"/bin/sleep", "10"}))
	e.Init()

	resp := e.Restart([]string{"a"})
	if !strings.Contains(resp, "restarted") || strings.Contains(resp, "a: started") {
		t.Fatalf("expected response to say restarted, got %q", resp)
	}
	e.Stop([]string{"all"})
}
