// Package config loads and validates a taskmasterd configuration document
// (spec.md §4.1, §6.1) into a typed Config. It follows the teacher's
// approach to config parsing (abligh-goms/smtpd/config.go: YAML via
// gopkg.in/yaml.v2 into a typed struct) generalized with an explicit
// per-option validation pass, since the source format here is a dynamic,
// per-program option bag rather than a fixed struct shape.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// defaultSearchPath is the ordered list of locations consulted when no
// -c/--configuration flag is given (SPEC_FULL.md §4.1 "added").
func defaultSearchPath() []string {
	home, _ := os.UserHomeDir()
	paths := []string{"taskmaster.yaml", "taskmaster.yml", "/etc/taskmasterd.conf", "/etc/taskmaster/taskmasterd.conf"}
	if home != "" {
		paths = append(paths, filepath.Join(home, ".taskmasterd.conf"))
	}
	return paths
}

// rawDocument is the loosely-typed shape yaml.v2 decodes the document into,
// before per-option validation promotes it to a Config.
type rawDocument struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Logging  map[string]rawValue            `yaml:"logging"`
	Programs map[string]map[string]rawValue `yaml:"programs"`
}

// rawValue holds one option's YAML value without letting yaml.v2 resolve
// it to a native Go type first. gopkg.in/yaml.v2 applies YAML 1.1 boolean
// resolution (`no`, `yes`, `on`, `off`, ...) before a consumer ever sees
// the value; decoding straight into map[string]interface{} would silently
// turn `autostart: no` into the Go bool false, which then round-trips
// through parseBool as if the document had said "false" — violating
// spec.md §4.1's "Boolean options accept only the literals {true,
// false}." _examples/original_source/taskmaster/config.py sidesteps the
// same problem by loading with yaml.BaseLoader so every scalar stays a
// literal string; rawValue gets the same effect from yaml.v2 by decoding
// each value into a string first (which yaml.v2 services with the node's
// literal text, not its resolved type) and only falling back to a
// generic interface{} decode for option values that are actually lists
// or maps (command, environment, expected_exit).
type rawValue struct {
	text     string
	isScalar bool
	list     interface{}
}

func (r *rawValue) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err == nil {
		r.text = s
		r.isScalar = true
		return nil
	}
	var v interface{}
	if err := unmarshal(&v); err != nil {
		return err
	}
	r.list = v
	return nil
}

// recognizedOptions is the full set of valid per-program keys, used both to
// reject unknown options and to build "did you mean" suggestions.
var recognizedOptions = []string{
	"command", "autostart", "autorestart", "restarts", "kill_timeout",
	"startup_wait", "instances", "stop_signal", "expected_exit",
	"stdout_logfile", "stderr_logfile", "environment", "dir", "umask",
}

// Load finds and parses the configuration file at path, or searches the
// default locations if path is empty, and validates it into a Config.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, candidate := range defaultSearchPath() {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return nil, errDoc("no configuration file found in default search path")
		}
	}

	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read configuration file")
	}

	var raw rawDocument
	if err := yaml.Unmarshal(buf, &raw); err != nil {
		return nil, errors.Wrap(err, "parse configuration YAML")
	}

	return validate(&raw)
}

func validate(raw *rawDocument) (*Config, error) {
	cfg := &Config{
		Server:   Server{Port: raw.Server.Port},
		Programs: make(map[string]*Program),
	}
	if cfg.Server.Port == 0 {
		return nil, errOpt("", "server.port", "is required")
	}

	if raw.Logging != nil {
		lc, err := validateLogging(raw.Logging)
		if err != nil {
			return nil, err
		}
		cfg.Logging = *lc
	}

	// Stable program order: the document's declaration order is lost by the
	// Go map produced from YAML, so we sort names for determinism; the spec
	// only requires *a* consistent insertion order for `status`, not the
	// document's literal order.
	names := make([]string, 0, len(raw.Programs))
	for name := range raw.Programs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		opts := raw.Programs[name]
		prog, err := validateProgram(name, opts)
		if err != nil {
			return nil, err
		}
		for _, expanded := range expand(prog) {
			if _, dup := cfg.Programs[expanded.Name]; dup {
				return nil, errProg(expanded.Name, "duplicate program name after instances expansion")
			}
			cfg.Programs[expanded.Name] = expanded
			cfg.Names = append(cfg.Names, expanded.Name)
		}
	}

	return cfg, nil
}

func validateLogging(opts map[string]rawValue) (*LoggingConfig, error) {
	lc := &LoggingConfig{}
	for k, v := range opts {
		switch k {
		case "file":
			if !v.isScalar {
				return nil, errOpt("", "logging.file", "must be a string")
			}
			lc.File = v.text
		case "file_mode":
			if !v.isScalar {
				return nil, errOpt("", "logging.file_mode", "must be a string")
			}
			lc.FileMode = v.text
		case "syslog_facility":
			if !v.isScalar {
				return nil, errOpt("", "logging.syslog_facility", "must be a string")
			}
			lc.SyslogFacility = v.text
		case "date":
			b, err := parseBool(v.text)
			if err != nil {
				return nil, errOpt("", "logging.date", "%s", err)
			}
			lc.Date = b
		case "time":
			b, err := parseBool(v.text)
			if err != nil {
				return nil, errOpt("", "logging.time", "%s", err)
			}
			lc.Time = b
		case "microseconds":
			b, err := parseBool(v.text)
			if err != nil {
				return nil, errOpt("", "logging.microseconds", "%s", err)
			}
			lc.Microseconds = b
		case "source_file":
			b, err := parseBool(v.text)
			if err != nil {
				return nil, errOpt("", "logging.source_file", "%s", err)
			}
			lc.SourceFile = b
		default:
			return nil, errOpt("", "logging."+k, "unrecognized option%s", suggestion(k, []string{"file", "file_mode", "syslog_facility", "date", "time", "microseconds", "source_file"}))
		}
	}
	return lc, nil
}

// validateProgram applies every per-option validation rule from spec.md
// §4.1 to one program's raw option bag, returning a fully-typed, still
// un-expanded Program (instances expansion happens separately in expand).
func validateProgram(name string, opts map[string]rawValue) (*Program, error) {
	p := &Program{
		Name:         name,
		AutoStart:    true,
		AutoRestart:  defaultAutoRestart,
		Restarts:     3,
		KillTimeout:  3,
		StartupWait:  0.1,
		Instances:    1,
		StopSignal:   syscall.SIGTERM,
		ExpectedExit: map[int]struct{}{0: {}},
		Environment:  map[string]string{},
		Umask:        0o22,
	}

	commandSeen := false
	for key, raw := range opts {
		switch key {
		case "command":
			cmd, err := parseStringList(raw)
			if err != nil || len(cmd) == 0 {
				return nil, errOpt(name, "command", "must be a non-empty list of strings")
			}
			p.Command = cmd
			commandSeen = true

		case "autostart":
			b, err := parseBool(raw.text)
			if err != nil {
				return nil, errOpt(name, "autostart", "%s", err)
			}
			p.AutoStart = b

		case "autorestart":
			switch AutoRestart(raw.text) {
			case RestartAlways, RestartNever, RestartUnexpected:
				p.AutoRestart = AutoRestart(raw.text)
			default:
				return nil, errOpt(name, "autorestart", "must be one of always, never, unexpected")
			}

		case "restarts":
			n, err := parseIntScalar(raw, 10)
			if err != nil || n < 0 {
				return nil, errOpt(name, "restarts", "must be a non-negative integer")
			}
			p.Restarts = n

		case "kill_timeout":
			n, err := parseIntScalar(raw, 10)
			if err != nil || n < 0 {
				return nil, errOpt(name, "kill_timeout", "must be a non-negative integer")
			}
			p.KillTimeout = n

		case "startup_wait":
			f, err := parseFloatScalar(raw)
			if err != nil || f < 0 {
				return nil, errOpt(name, "startup_wait", "must be a non-negative number")
			}
			p.StartupWait = f

		case "instances":
			n, err := parseIntScalar(raw, 10)
			if err != nil || n < 1 {
				return nil, errOpt(name, "instances", "must be a positive integer")
			}
			p.Instances = n

		case "stop_signal":
			n, err := parseIntScalar(raw, 10)
			if err != nil {
				return nil, errOpt(name, "stop_signal", "must be an integer")
			}
			sig, ok := signalMap[n]
			if !ok {
				return nil, errOpt(name, "stop_signal", "must be one of 2 (SIGINT), 3 (SIGQUIT), 9 (SIGKILL), 15 (SIGTERM)")
			}
			p.StopSignal = sig

		case "expected_exit":
			codes, err := parseIntList(raw)
			if err != nil {
				return nil, errOpt(name, "expected_exit", "must be a list of integers")
			}
			p.ExpectedExit = make(map[int]struct{}, len(codes))
			for _, c := range codes {
				p.ExpectedExit[c] = struct{}{}
			}

		case "stdout_logfile":
			sink, err := validateLogfile(raw)
			if err != nil {
				return nil, errOpt(name, "stdout_logfile", "%s", err)
			}
			p.StdoutLogfile = sink

		case "stderr_logfile":
			sink, err := validateLogfile(raw)
			if err != nil {
				return nil, errOpt(name, "stderr_logfile", "%s", err)
			}
			p.StderrLogfile = sink

		case "environment":
			env, err := parseEnvironment(raw)
			if err != nil {
				return nil, errOpt(name, "environment", "%s", err)
			}
			p.Environment = env

		case "dir":
			if !raw.isScalar {
				return nil, errOpt(name, "dir", "must be a string")
			}
			if err := probeDir(raw.text); err != nil {
				return nil, errOpt(name, "dir", "not enterable: %s", err)
			}
			p.Dir = raw.text

		case "umask":
			n, err := parseIntScalar(raw, 8)
			if err != nil || n < 0 {
				return nil, errOpt(name, "umask", "must be a valid octal integer")
			}
			p.Umask = n

		default:
			return nil, errOpt(name, key, "unrecognized option%s", suggestion(key, recognizedOptions))
		}
	}

	if !commandSeen {
		return nil, errOpt(name, "command", "is required")
	}

	return p, nil
}

// expand turns a single parsed Program into N sibling records when
// Instances>1, suffixing each with "(i)" and dropping the base name, per
// spec.md §3/§4.1.
func expand(p *Program) []*Program {
	if p.Instances <= 1 {
		return []*Program{p}
	}
	out := make([]*Program, 0, p.Instances)
	for i := 0; i < p.Instances; i++ {
		clone := *p
		clone.Name = fmt.Sprintf("%s(%d)", p.Name, i)
		out = append(out, &clone)
	}
	return out
}

// suggestion returns a " - did you mean X?" hint when an unknown key is a
// substring of, or contains, exactly one recognized option; empty otherwise.
// This is a deliberately simple containment check, not fuzzy matching (see
// DESIGN.md for why no third-party fuzzy-match library was pulled in).
func suggestion(key string, known []string) string {
	var matches []string
	for _, k := range known {
		if strings.Contains(k, key) || strings.Contains(key, k) {
			matches = append(matches, k)
		}
	}
	if len(matches) == 1 {
		return fmt.Sprintf(" - did you mean %s?", matches[0])
	}
	return ""
}

func validateLogfile(raw rawValue) (LogSink, error) {
	if !raw.isScalar {
		return LogSink{}, fmt.Errorf("must be a string")
	}
	s := raw.text
	if s == "" {
		return LogSink{Kind: SinkPipe}, nil
	}
	if s == "/dev/null" {
		return LogSink{Kind: SinkNull, Path: s}, nil
	}
	if !filepath.IsAbs(s) {
		return LogSink{}, fmt.Errorf("must be an absolute path")
	}
	f, err := os.OpenFile(s, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return LogSink{}, fmt.Errorf("not writable: %w", err)
	}
	f.Close()
	return LogSink{Kind: SinkFile, Path: s}, nil
}

func probeDir(dir string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	defer os.Chdir(cwd)
	return os.Chdir(dir)
}

func parseEnvironment(raw rawValue) (map[string]string, error) {
	items, err := parseStringList(raw)
	if err != nil {
		return nil, fmt.Errorf("must be a list of strings")
	}
	env := make(map[string]string, len(items))
	for _, item := range items {
		parts := strings.SplitN(item, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			return nil, fmt.Errorf("entry %q is not KEY:VALUE", item)
		}
		if _, dup := env[parts[0]]; dup {
			return nil, fmt.Errorf("duplicate key %q", parts[0])
		}
		env[parts[0]] = parts[1]
	}
	return env, nil
}

func parseBool(v string) (bool, error) {
	switch v {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("unknown boolean value %q", v)
	}
}

// parseIntScalar parses a single top-level option's literal text as an
// integer in the given base. Used for the options that are always a lone
// scalar (restarts, kill_timeout, instances, stop_signal, umask).
func parseIntScalar(raw rawValue, base int) (int, error) {
	if !raw.isScalar {
		return 0, fmt.Errorf("not an integer")
	}
	n, err := strconv.ParseInt(raw.text, base, 64)
	return int(n), err
}

// parseFloatScalar parses a single top-level option's literal text as a
// float. Used only for startup_wait.
func parseFloatScalar(raw rawValue) (float64, error) {
	if !raw.isScalar {
		return 0, fmt.Errorf("not a number")
	}
	return strconv.ParseFloat(raw.text, 64)
}

// parseIntItem parses one already-resolved list element (from
// rawValue.list, which falls back to yaml.v2's native interface{}
// resolution) as an integer; used only for expected_exit, whose elements
// are never ambiguous with the {true,false} boolean literals spec.md
// §4.1 restricts.
func parseIntItem(item interface{}) (int, error) {
	switch v := item.(type) {
	case int:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return int(n), err
	default:
		return 0, fmt.Errorf("not an integer: %v", item)
	}
}

func parseStringList(raw rawValue) ([]string, error) {
	list, ok := raw.list.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("element %v is not a string", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func parseIntList(raw rawValue) ([]int, error) {
	list, ok := raw.list.([]interface{})
	if !ok {
		return nil, fmt.Errorf("not a list")
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		n, err := parseIntItem(item)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
