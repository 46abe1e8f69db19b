// Package logging builds a *log.Logger from a declarative logging
// configuration, following the same shape as the rest of the daemon's
// configuration: a typed struct, validated once, producing either a usable
// logger or an error.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/syslog"
	"os"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
)

// Config controls where and how the daemon logs.
type Config struct {
	File           string // path to a log file; empty means stderr unless SyslogFacility is set
	FileMode       string // octal file mode for File, default 0644
	SyslogFacility string // syslog facility name; set to enable syslog instead of File/stderr
	Date           bool   // include date (log.Ldate)
	Time           bool   // include time (log.Ltime)
	Microseconds   bool   // include microseconds (log.Lmicroseconds)
	SourceFile     bool   // include source file:line (log.Lshortfile)
}

// facilityMap maps textual syslog facility names to their priority constant.
var facilityMap = map[string]syslog.Priority{
	"kern": syslog.LOG_KERN, "user": syslog.LOG_USER, "mail": syslog.LOG_MAIL,
	"daemon": syslog.LOG_DAEMON, "auth": syslog.LOG_AUTH, "syslog": syslog.LOG_SYSLOG,
	"lpr": syslog.LOG_LPR, "news": syslog.LOG_NEWS, "uucp": syslog.LOG_UUCP,
	"cron": syslog.LOG_CRON, "authpriv": syslog.LOG_AUTHPRIV, "ftp": syslog.LOG_FTP,
	"local0": syslog.LOG_LOCAL0, "local1": syslog.LOG_LOCAL1, "local2": syslog.LOG_LOCAL2,
	"local3": syslog.LOG_LOCAL3, "local4": syslog.LOG_LOCAL4, "local5": syslog.LOG_LOCAL5,
	"local6": syslog.LOG_LOCAL6, "local7": syslog.LOG_LOCAL7,
}

// syslogWriter adapts a *syslog.Writer to io.Writer, reading the bracketed
// level prefix ("[INFO] ", "[ERROR] ", ...) off each line and routing to the
// matching syslog priority, then stripping it so syslog isn't doubly tagged.
type syslogWriter struct {
	w *syslog.Writer
}

func newSyslogWriter(facility string) (*syslogWriter, error) {
	f, ok := facilityMap[facility]
	if !ok {
		f = syslog.LOG_DAEMON
	}
	w, err := syslog.New(f|syslog.LOG_INFO, "taskmasterd:")
	if err != nil {
		return nil, err
	}
	return &syslogWriter{w: w}, nil
}

func (s *syslogWriter) Close() error {
	return s.w.Close()
}

// levelRE is not anchored: the logger's date/time/file header, when its
// flags are set, comes before the level prefix on each line.
var levelRE = regexp.MustCompile(`\[([A-Z]+)\] `)

func (s *syslogWriter) Write(p []byte) (int, error) {
	text := string(p)
	level := ""
	if loc := levelRE.FindStringSubmatchIndex(text); loc != nil {
		level = text[loc[2]:loc[3]]
		text = text[:loc[0]] + text[loc[1]:]
	}
	switch level {
	case "DEBUG":
		s.w.Debug(text)
	case "INFO":
		s.w.Info(text)
	case "WARN", "WARNING":
		s.w.Warning(text)
	case "ERROR", "ERR":
		s.w.Err(text)
	case "CRIT":
		s.w.Crit(text)
	default:
		s.w.Notice(text)
	}
	return len(p), nil
}

// New builds a logger and an optional closer for its underlying sink (file
// or syslog connection). Callers should Close() it on shutdown if non-nil.
func New(c Config) (*log.Logger, io.Closer, error) {
	flags := 0
	if c.Date {
		flags |= log.Ldate
	}
	if c.Time {
		flags |= log.Ltime
	}
	if c.Microseconds {
		flags |= log.Lmicroseconds
	}
	if c.SourceFile {
		flags |= log.Lshortfile
	}

	if c.SyslogFacility != "" {
		w, err := newSyslogWriter(c.SyslogFacility)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open syslog")
		}
		return log.New(w, "", flags), w, nil
	}

	if c.File != "" {
		mode := os.FileMode(0644)
		if c.FileMode != "" {
			m, err := strconv.ParseInt(c.FileMode, 8, 32)
			if err != nil {
				return nil, nil, errors.Wrap(err, "parse log file mode")
			}
			mode = os.FileMode(m)
		}
		f, err := os.OpenFile(c.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return nil, nil, errors.Wrap(err, "open log file")
		}
		return log.New(f, "taskmasterd: ", flags), f, nil
	}

	return log.New(os.Stderr, "taskmasterd: ", flags), nil, nil
}

// Fatalf is a small helper mirroring log.Fatalf but usable before a logger
// exists (configuration parse failures at startup, per spec.md §4.11).
func Fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "taskmasterd: "+format+"\n", args...)
	os.Exit(1)
}
