package engine

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rouhija/taskmaster/internal/config"
)

// interRetryDelay is the fixed pause between failed spawn attempts within
// a single start's retry budget (spec.md §4.3 step 5).
const interRetryDelay = 100 * time.Millisecond

// maxTailLines bounds the supervisor-owned pipe ring buffers (spec.md §4.9
// needs only the last 10, but a deeper buffer lets `tail` be called more
// than once without losing history between calls).
const maxTailLines = 200

// Start implements spec.md §4.3 for a list of names (or the literal "all").
// Responses for multiple names are concatenated with "|" in input order.
func (e *Engine) Start(names []string) string {
	var parts []string
	for _, name := range e.resolveNames(names) {
		entry, err := e.lookup(name)
		if err != nil {
			parts = append(parts, err.Error())
			continue
		}
		msg, err := e.startOne(entry)
		if err != nil {
			parts = append(parts, err.Error())
			continue
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, "|")
}

// sink is the resolved, spawn-ready form of a configured LogSink: a writer
// to hand to exec.Cmd, plus whichever resource needs cleanup afterwards.
type sink struct {
	writer    *os.File
	buf       *ringBuffer // set for SinkPipe: where drain() deposits lines
	ownedFile *os.File    // set for SinkFile/SinkNull: closed right after spawn
	pipeWrite *os.File    // set for SinkPipe: closed once the program fully stops
}

// startOne runs the full start algorithm for a single entry (spec.md
// §4.3). It returns a human-readable result message; err is only non-nil
// for conditions that prevented attempting a spawn at all (bad dir).
func (e *Engine) startOne(entry *Entry) (string, error) {
	name := entry.Config.Name

	if entry.Runtime.alive() {
		return fmt.Sprintf("%s is already running", name), nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("%s: could not determine working directory: %w", name, err)
	}
	if entry.Config.Dir != "" {
		if err := os.Chdir(entry.Config.Dir); err != nil {
			return "", fmt.Errorf("%s: cannot chdir to %s: %w", name, entry.Config.Dir, err)
		}
	}
	defer os.Chdir(cwd)

	oldUmask := syscall.Umask(entry.Config.Umask)
	defer syscall.Umask(oldUmask)

	out, err := openSink(entry.Config.StdoutLogfile)
	if err != nil {
		return "", fmt.Errorf("%s: cannot open stdout logfile: %w", name, err)
	}
	errSink, err := openSink(entry.Config.StderrLogfile)
	if err != nil {
		out.close()
		return "", fmt.Errorf("%s: cannot open stderr logfile: %w", name, err)
	}

	budget := entry.Config.Restarts + 1
	var rt *Runtime
	var lastErr error

	for attempt := 0; attempt < budget; attempt++ {
		cmd := exec.Command(entry.Config.Command[0], entry.Config.Command[1:]...)
		cmd.Env = buildEnv(entry.Config.Environment)
		cmd.Stdout = out.writer
		cmd.Stderr = errSink.writer
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

		if err := cmd.Start(); err != nil {
			lastErr = err
			if attempt < budget-1 {
				time.Sleep(interRetryDelay)
			}
			continue
		}

		candidate := &Runtime{
			Cmd:        cmd,
			Pid:        cmd.Process.Pid,
			done:       make(chan struct{}),
			stdoutBuf:  out.buf,
			stderrBuf:  errSink.buf,
			stdoutPipe: out.pipeWrite,
			stderrPipe: errSink.pipeWrite,
		}
		go waitForExit(candidate)

		time.Sleep(startupWaitDuration(entry.Config.StartupWait))

		if candidate.alive() {
			candidate.State = Running
			candidate.StartTS = time.Now()
			rt = candidate
			break
		}

		lastErr = candidate.exitErr
		if attempt < budget-1 {
			time.Sleep(interRetryDelay)
		}
	}

	out.closeOwnedFile()
	errSink.closeOwnedFile()

	if rt == nil {
		out.closePipeWrite()
		errSink.closePipeWrite()
		entry.Runtime = &Runtime{State: Stopped}
		_ = lastErr
		return fmt.Sprintf("starting %s was unsuccessful after %d retries", name, entry.Config.Restarts), nil
	}

	entry.Runtime = rt
	return fmt.Sprintf("%s: started", name), nil
}

func startupWaitDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// waitForExit reaps the child exactly once; the engine is the sole owner
// of every child it spawns (SPEC_FULL.md §9's resolution of the UNKNOWN
// open question relies on this).
func waitForExit(rt *Runtime) {
	rt.exitErr = rt.Cmd.Wait()
	close(rt.done)
}

// buildEnv returns nil (meaning "inherit the supervisor's environment")
// when env is empty, or exactly the given KEY=VALUE pairs otherwise
// (spec.md §3: "environment ... default: inherit supervisor environment").
func buildEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// openSink resolves a configured LogSink into something assignable to
// exec.Cmd.Stdout/Stderr, tracking whatever needs cleanup afterwards.
func openSink(ls config.LogSink) (sink, error) {
	switch ls.Kind {
	case config.SinkFile:
		f, err := os.OpenFile(ls.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return sink{}, err
		}
		return sink{writer: f, ownedFile: f}, nil

	case config.SinkNull:
		f, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
		if err != nil {
			return sink{}, err
		}
		return sink{writer: f, ownedFile: f}, nil

	default: // config.SinkPipe
		r, w, err := os.Pipe()
		if err != nil {
			return sink{}, err
		}
		rb := newRingBuffer(maxTailLines)
		go drain(r, rb)
		return sink{writer: w, buf: rb, pipeWrite: w}, nil
	}
}

// close is used only on the early-failure path (stderr sink failed to
// open after stdout succeeded): tear the whole thing down immediately.
func (s sink) close() {
	if s.ownedFile != nil {
		s.ownedFile.Close()
	}
	if s.pipeWrite != nil {
		s.pipeWrite.Close()
	}
}

// closeOwnedFile closes the supervisor's file-backed handle once spawn
// bookkeeping is done; file/null sinks don't need to stay open in the
// supervisor after the child has its own fd (SPEC_FULL.md §9: "implicit
// ownership of subprocess stdio").
func (s sink) closeOwnedFile() {
	if s.ownedFile != nil {
		s.ownedFile.Close()
	}
}

// closePipeWrite closes a pipe sink's write end; only called when no
// child ended up holding it (every spawn attempt in the retry budget
// failed), so the drain goroutine can observe EOF and exit.
func (s sink) closePipeWrite() {
	if s.pipeWrite != nil {
		s.pipeWrite.Close()
	}
}
