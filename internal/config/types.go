package config

import "syscall"

// AutoRestart is the policy governing whether a program is restarted after
// its child exits.
type AutoRestart string

const (
	RestartAlways      AutoRestart = "always"
	RestartNever       AutoRestart = "never"
	RestartUnexpected  AutoRestart = "unexpected"
	defaultAutoRestart             = RestartAlways
)

// LogSinkKind describes where a stream (stdout/stderr) of a program is wired.
type LogSinkKind int

const (
	// SinkPipe means no logfile path was configured: the supervisor reads
	// the stream itself through a pipe (spec.md §3's "inherit a pipe from
	// the supervisor" sentinel). This is the zero value, matching the
	// default when the option is simply absent from the document.
	SinkPipe LogSinkKind = iota
	// SinkFile means the stream is redirected to an absolute file path.
	SinkFile
	// SinkNull means the stream was explicitly pointed at /dev/null: the
	// supervisor neither captures nor tails it.
	SinkNull
)

// LogSink is the resolved destination for one of a program's output streams.
type LogSink struct {
	Kind LogSinkKind
	Path string // valid when Kind == SinkFile
}

// Program is the immutable, validated configuration for one supervised
// program. When the source config has instances>1, one Program per sibling
// instance is produced by expand, each with its own Name suffixed "(i)".
type Program struct {
	Name          string
	Command       []string
	AutoStart     bool
	AutoRestart   AutoRestart
	Restarts      int
	KillTimeout   int // seconds
	StartupWait   float64
	Instances     int
	StopSignal    syscall.Signal
	ExpectedExit  map[int]struct{}
	StdoutLogfile LogSink
	StderrLogfile LogSink
	Environment   map[string]string
	Dir           string
	Umask         int
}

// Server holds the control-server listen configuration.
type Server struct {
	Port int
}

// Config is the full validated configuration document: the server's listen
// port, the logging setup, and the program catalog in load order (programs
// sorted by name, instances in index order).
type Config struct {
	Server   Server
	Logging  LoggingConfig
	Names    []string // program names in load order, post-expansion
	Programs map[string]*Program
}

// LoggingConfig mirrors internal/logging.Config in config-document shape;
// kept separate so internal/config does not import internal/logging and
// create a dependency cycle with the daemon wiring layer.
type LoggingConfig struct {
	File           string
	FileMode       string
	SyslogFacility string
	Date           bool
	Time           bool
	Microseconds   bool
	SourceFile     bool
}

// signalMap is the fixed set of stop signals the spec allows (§4.1).
var signalMap = map[int]syscall.Signal{
	2:  syscall.SIGINT,
	3:  syscall.SIGQUIT,
	9:  syscall.SIGKILL,
	15: syscall.SIGTERM,
}
