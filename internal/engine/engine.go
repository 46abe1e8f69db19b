package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/rouhija/taskmaster/internal/config"
)

// ProgramConfig aliases the config package's validated program shape so the
// rest of this package can refer to it tersely.
type ProgramConfig = config.Program

// Engine owns the program catalog and implements every supervision
// operation named in spec.md §4: init, start, stop, restart, status,
// reread, update, tail, plus the autonomous monitor tick.
//
// All of Engine's exported methods are invoked only from the control
// server's single accept/serve loop and its own ticker (spec.md §5): no two
// calls ever run concurrently, so the catalog itself needs no lock. The
// mutex below exists only to guard e.pending, which reread (think: an
// out-of-band SIGHUP handler, SPEC_FULL.md §6) could in principle touch
// from a different goroutine than update.
type Engine struct {
	logger *log.Logger

	mu       sync.Mutex
	catalog  map[string]*Entry
	order    []string
	baseline *config.Config
	pending  *config.Config

	configPath string
}

// New builds an Engine from a validated configuration; it does not start
// any programs (see Init).
func New(cfg *config.Config, configPath string, logger *log.Logger) *Engine {
	e := &Engine{
		logger:     logger,
		catalog:    make(map[string]*Entry),
		configPath: configPath,
		baseline:   cfg,
	}
	e.order = append(e.order, cfg.Names...)
	for _, name := range cfg.Names {
		e.catalog[name] = &Entry{Config: cfg.Programs[name]}
	}
	return e
}

// Init spawns every autostart program, in catalog order, and logs the
// outcome of each (spec.md §2: "config loader → engine.init (autostart
// programs spawn now)").
func (e *Engine) Init() {
	for _, name := range e.order {
		entry := e.catalog[name]
		if !entry.Config.AutoStart {
			continue
		}
		msg, err := e.startOne(entry)
		if err != nil {
			e.logger.Printf("[ERROR] %s", err)
			continue
		}
		e.logger.Printf("[INFO] %s", msg)
	}
}

// resolveNames expands the literal "all" into every program name in
// catalog (insertion) order; otherwise it returns names verbatim, in the
// order given (spec.md §4.3, §5 ordering guarantees).
func (e *Engine) resolveNames(names []string) []string {
	if len(names) == 1 && names[0] == "all" {
		out := make([]string, len(e.order))
		copy(out, e.order)
		return out
	}
	return names
}

func (e *Engine) lookup(name string) (*Entry, error) {
	entry, ok := e.catalog[name]
	if !ok {
		return nil, fmt.Errorf("%s: no such program", name)
	}
	return entry, nil
}

// Shutdown stops every program and is called once, from main after the
// control server has returned, on the way to process exit (spec.md §5 "shutdown must not be
// re-entrant" — callers are responsible for calling this at most once).
func (e *Engine) Shutdown() {
	e.Stop([]string{"all"})
}
