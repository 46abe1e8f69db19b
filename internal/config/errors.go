package config

import "fmt"

// ConfigError is returned by Load/validate on any invalid, missing, or
// unknown configuration option. It is fatal at daemon startup and
// non-fatal (reversible) inside `reread` (spec.md §4.1, §4.7).
type ConfigError struct {
	Program string // program name, or "" for document-level errors
	Option  string // option name, or "" when not tied to a single option
	Message string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Program != "" && e.Option != "":
		return fmt.Sprintf("program %q: option %q: %s", e.Program, e.Option, e.Message)
	case e.Program != "":
		return fmt.Sprintf("program %q: %s", e.Program, e.Message)
	case e.Option != "":
		return fmt.Sprintf("option %q: %s", e.Option, e.Message)
	default:
		return e.Message
	}
}

func errOpt(program, option, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Program: program, Option: option, Message: fmt.Sprintf(format, args...)}
}

func errProg(program, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Program: program, Message: fmt.Sprintf(format, args...)}
}

func errDoc(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Message: fmt.Sprintf(format, args...)}
}
