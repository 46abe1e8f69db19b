package engine

import (
	"github.com/rouhija/taskmaster/internal/config"
)

// MonitorTick implements spec.md §4.6: for every RUNNING program, check
// (without blocking) whether its child has exited, and if so apply the
// autorestart policy. It is called opportunistically from the control
// server whenever an accept or recv call times out (spec.md §4.10).
func (e *Engine) MonitorTick() {
	for _, name := range e.order {
		entry := e.catalog[name]
		rt := entry.Runtime
		if rt == nil || rt.State != Running {
			continue
		}
		if rt.alive() {
			continue
		}

		code := exitCode(rt.exitErr)
		rt.closePipes()
		entry.Runtime = &Runtime{State: Exited}

		if !shouldRestart(entry.Config, code) {
			continue
		}

		msg, err := e.startOne(entry)
		if err != nil {
			e.logger.Printf("[ERROR] %s", err)
			continue
		}
		e.logger.Printf("[INFO] autorestart: %s", msg)
	}
}

func shouldRestart(cfg *ProgramConfig, exitCode int) bool {
	switch cfg.AutoRestart {
	case config.RestartAlways:
		return true
	case config.RestartNever:
		return false
	case config.RestartUnexpected:
		_, expected := cfg.ExpectedExit[exitCode]
		return !expected
	default:
		return false
	}
}
