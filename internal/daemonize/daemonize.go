// Package daemonize wraps the fork/setsid/close-stdio mechanics of
// daemonizing taskmasterd, following the teacher's use of the go-daemon
// Context type (abligh-goms/smtpd/control.go) with the maintained
// upstream fork (sevlyar/go-daemon) instead of the vendored-in one.
//
// taskmasterd never re-execs itself to send commands the way goms does
// (spec.md has no signal-based remote-control surface beyond SIGHUP/INT/
// TERM on the running process itself), so this package only exposes the
// fork/pidfile half of that pattern.
package daemonize

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sevlyar/go-daemon"
)

// Context holds the daemonization parameters taskmasterd cares about: a
// pidfile location and the umask the forked child should run under.
type Context struct {
	PidFile string
	Umask   int

	ctx *daemon.Context
}

// Daemonize forks into the background. The parent process gets a non-nil
// *os.Process (the forked child) and should exit 0 immediately; the child
// (the actual daemon) gets (nil, nil) and keeps running in-process. It is an
// error to call Daemonize twice in the same process.
func (c *Context) Daemonize() (*os.Process, error) {
	c.ctx = &daemon.Context{
		PidFileName: c.PidFile,
		PidFilePerm: 0644,
		Umask:       c.Umask,
	}

	child, err := c.ctx.Reborn()
	if err != nil {
		return nil, errors.Wrap(err, "daemonize")
	}
	return child, nil
}

// Release removes the pidfile. Call this from the child process on
// shutdown, mirroring the teacher's `defer d.Release()`.
func (c *Context) Release() error {
	if c.ctx == nil {
		return nil
	}
	return c.ctx.Release()
}

// AlreadyRunning checks the configured pidfile for a live process,
// following the teacher's stale-pidfile cleanup logic in
// abligh-goms/smtpd/control.go: Run(). It returns the PID of a live
// daemon if one is found, or 0 if none is running (removing a stale
// pidfile as a side effect).
func AlreadyRunning(pidFile string) (int, error) {
	ctx := &daemon.Context{PidFileName: pidFile}
	proc, err := ctx.Search()
	if err != nil {
		return 0, nil
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidFile)
		return 0, nil
	}
	return proc.Pid, nil
}
