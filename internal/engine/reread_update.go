package engine

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/rouhija/taskmaster/internal/config"
)

// Reread implements spec.md §4.7: load a fresh configuration into a
// scratch slot. On failure the scratch is discarded and the active
// configuration is untouched (invariant I6).
func (e *Engine) Reread() string {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		e.mu.Lock()
		e.pending = nil
		e.mu.Unlock()
		return fmt.Sprintf("Configuration error: %s", err)
	}
	e.mu.Lock()
	e.pending = cfg
	e.mu.Unlock()
	return "Configuration file reread successfully - run `update` to apply changes"
}

// diffAction is one planned mutation produced by comparing the pending
// configuration against the baseline (spec.md §4.7's table).
type diffAction struct {
	kind    string // "add", "remove", "change"
	name    string
	program *config.Program // new config, for add/change
}

// Update implements spec.md §4.7's diff table with the two-phase apply
// this spec's expansion settles on (SPEC_FULL.md §4.7, §9): compute the
// full plan first, then apply actions in order. A failure partway through
// is not rolled back (spec.md §4.11's documented caveat).
func (e *Engine) Update() string {
	e.mu.Lock()
	pending := e.pending
	e.mu.Unlock()

	if pending == nil {
		return "no configuration has been reread - run `reread` first"
	}

	plan := diffConfigs(e.baseline, pending)
	if len(plan) == 0 {
		e.mu.Lock()
		e.baseline = pending
		e.pending = nil
		e.mu.Unlock()
		return "no config changes"
	}

	var parts []string
	for _, action := range plan {
		parts = append(parts, e.applyAction(action))
	}

	e.mu.Lock()
	e.baseline = pending
	e.pending = nil
	e.mu.Unlock()

	return strings.Join(parts, "|")
}

func diffConfigs(baseline, pending *config.Config) []diffAction {
	var plan []diffAction

	for _, name := range pending.Names {
		newProg := pending.Programs[name]
		oldProg, existed := baseline.Programs[name]
		switch {
		case !existed:
			plan = append(plan, diffAction{kind: "add", name: name, program: newProg})
		case !reflect.DeepEqual(oldProg, newProg):
			plan = append(plan, diffAction{kind: "change", name: name, program: newProg})
		}
	}

	for _, name := range baseline.Names {
		if _, stillPresent := pending.Programs[name]; !stillPresent {
			plan = append(plan, diffAction{kind: "remove", name: name})
		}
	}

	return plan
}

func (e *Engine) applyAction(action diffAction) string {
	switch action.kind {
	case "add":
		e.catalog[action.name] = &Entry{Config: action.program}
		e.order = append(e.order, action.name)
		if action.program.AutoStart {
			msg, err := e.startOne(e.catalog[action.name])
			if err != nil {
				return err.Error()
			}
			return fmt.Sprintf("%s: added and %s", action.name, msg)
		}
		return fmt.Sprintf("%s: added (stopped)", action.name)

	case "remove":
		entry, ok := e.catalog[action.name]
		if ok {
			e.stopOne(entry)
			delete(e.catalog, action.name)
			e.removeFromOrder(action.name)
		}
		return fmt.Sprintf("%s: removed", action.name)

	case "change":
		entry, ok := e.catalog[action.name]
		if !ok {
			entry = &Entry{}
			e.catalog[action.name] = entry
			e.order = append(e.order, action.name)
		} else {
			e.stopOne(entry)
		}
		entry.Config = action.program
		if action.program.AutoStart {
			msg, err := e.startOne(entry)
			if err != nil {
				return err.Error()
			}
			return fmt.Sprintf("%s: updated and %s", action.name, msg)
		}
		return fmt.Sprintf("%s: updated (stopped)", action.name)
	}
	return fmt.Sprintf("%s: no action", action.name)
}

func (e *Engine) removeFromOrder(name string) {
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			return
		}
	}
}
