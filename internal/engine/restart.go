package engine

import "strings"

// Restart implements spec.md §4.5: stop(names) followed by start(names),
// with "started" rewritten to "restarted" in the concatenated response.
func (e *Engine) Restart(names []string) string {
	e.Stop(names)
	started := e.Start(names)
	return strings.ReplaceAll(started, "started", "restarted")
}
