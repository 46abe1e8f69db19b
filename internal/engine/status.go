package engine

import (
	"fmt"
	"strings"
	"time"
)

// Status implements spec.md §4.8: one pipe-separated, space-padded record
// per program, in catalog (insertion) order.
func (e *Engine) Status() string {
	var parts []string
	for _, name := range e.order {
		entry := e.catalog[name]
		parts = append(parts, formatStatusLine(name, entry.Runtime))
	}
	return strings.Join(parts, "|")
}

func formatStatusLine(name string, rt *Runtime) string {
	state := Stopped
	pidStr := "None"
	uptime := "--:--:--"

	if rt != nil {
		state = rt.State
		if rt.State == Running || rt.State == Starting {
			pidStr = fmt.Sprintf("%d", rt.Pid)
			uptime = formatUptime(time.Since(rt.StartTS))
		}
	}

	return fmt.Sprintf("%-25s%-10spid %s, %-11suptime %s", name, state.String(), pidStr, "", uptime)
}

func formatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
