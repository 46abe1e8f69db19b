// Command taskmasterd is the supervisor daemon entry point. It is a thin
// wrapper over internal/config, internal/engine and internal/control,
// following the teacher's main.go -> goms.Run() pattern: flag parsing and
// daemonization mechanics live here, the actual logic lives in the
// internal packages.
package main

import (
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rouhija/taskmaster/internal/config"
	"github.com/rouhija/taskmaster/internal/control"
	"github.com/rouhija/taskmaster/internal/daemonize"
	"github.com/rouhija/taskmaster/internal/engine"
	"github.com/rouhija/taskmaster/internal/logging"
)

var (
	configFile = flag.String("c", "", "Path to configuration file")
	noDaemon   = flag.Bool("n", false, "Run in the foreground instead of daemonizing")
	pidFile    = flag.String("p", "/var/run/taskmasterd.pid", "Path to PID file (daemon mode only)")
)

func init() {
	flag.StringVar(configFile, "configuration", "", "Path to configuration file (long form of -c)")
	flag.BoolVar(noDaemon, "nodaemon", false, "Run in the foreground (long form of -n)")
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logging.Fatalf("[CRIT] configuration error: %v", err)
	}

	if !*noDaemon {
		abs, err := filepath.Abs(*pidFile)
		if err != nil {
			logging.Fatalf("[CRIT] cannot canonicalise pidfile path: %v", err)
		}
		*pidFile = abs

		if pid, err := daemonize.AlreadyRunning(*pidFile); err == nil && pid != 0 {
			logging.Fatalf("[CRIT] taskmasterd already running (pid %d)", pid)
		}

		dctx := &daemonize.Context{PidFile: *pidFile, Umask: 027}
		child, err := dctx.Daemonize()
		if err != nil {
			logging.Fatalf("[CRIT] daemonize: %v", err)
		}
		if child != nil {
			return
		}
		defer dctx.Release()
	}

	logger, logCloser, err := logging.New(logging.Config{
		File:           cfg.Logging.File,
		FileMode:       cfg.Logging.FileMode,
		SyslogFacility: cfg.Logging.SyslogFacility,
		Date:           true,
		Time:           true,
	})
	if err != nil {
		logging.Fatalf("[CRIT] could not set up logging: %v", err)
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	eng := engine.New(cfg, *configFile, logger)
	eng.Init()

	srv, err := control.New(cfg.Server.Port, eng, logger)
	if err != nil {
		logger.Fatalf("[CRIT] could not bind control server: %v", err)
	}

	stopCh := make(chan struct{})
	hup := make(chan os.Signal, 1)
	term := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	signal.Notify(term, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for {
			select {
			case <-hup:
				logger.Printf("[INFO] SIGHUP received: rereading and applying configuration")
				logger.Printf("[INFO] %s", eng.Reread())
				logger.Printf("[INFO] %s", eng.Update())
			case <-term:
				logger.Printf("[INFO] shutdown signal received")
				close(stopCh)
				srv.Close()
				return
			}
		}
	}()

	err = srv.Serve(stopCh)
	if err != nil && err != control.ErrShutdown {
		logger.Printf("[ERROR] control server stopped: %v", err)
	}

	logger.Printf("[INFO] stopping all programs")
	eng.Shutdown()
	os.Exit(0)
}
