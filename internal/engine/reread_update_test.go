package engine

import (
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rouhija/taskmaster/internal/config"
)

func writeTestConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "taskmaster.yaml")
	if err := ioutil.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("could not write config: %v", err)
	}
	return path
}

func TestHotUpdateReplacesCommand(t *testing.T) {
	path := writeTestConfig(t, `
server:
  port: 9001
programs:
  e:
    command: ["/bin/sleep", "10"]
    startup_wait: 0.05
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error loading initial config: %v", err)
	}
	e := New(cfg, path, testLogger())
	e.Init()

	oldPid := e.catalog["e"].Runtime.Pid

	if err := ioutil.WriteFile(path, []byte(`
server:
  port: 9001
programs:
  e:
    command: ["/bin/sleep", "20"]
    startup_wait: 0.05
`), 0644); err != nil {
		t.Fatalf("could not rewrite config: %v", err)
	}

	rereadResp := e.Reread()
	if !strings.Contains(rereadResp, "reread successfully") {
		t.Fatalf("unexpected reread response: %q", rereadResp)
	}

	updateResp := e.Update()
	if !strings.Contains(updateResp, "e:") {
		t.Fatalf("unexpected update response: %q", updateResp)
	}

	newEntry := e.catalog["e"]
	if newEntry.Runtime.State != Running {
		t.Fatalf("expected e to be RUNNING after update, got %v", newEntry.Runtime.State)
	}
	if newEntry.Runtime.Pid == oldPid {
		t.Fatalf("expected a new process after update")
	}
	if len(newEntry.Config.Command) < 2 || newEntry.Config.Command[1] != "20" {
		t.Fatalf("expected updated command, got %v", newEntry.Config.Command)
	}

	e.Stop([]string{"all"})
}

func TestUpdateNoOpWhenUnchanged(t *testing.T) {
	path := writeTestConfig(t, `
server:
  port: 9001
programs:
  g:
    command: ["/bin/sleep", "10"]
    autostart: false
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := New(cfg, path, testLogger())
	e.Init()

	e.Reread()
	resp := e.Update()
	if resp != "no config changes" {
		t.Fatalf("expected a no-op update, got %q", resp)
	}
}

func TestRereadFailurePreservesActiveConfig(t *testing.T) {
	path := writeTestConfig(t, `
server:
  port: 9001
programs:
  h:
    command: ["/bin/sleep", "10"]
    autostart: false
`)
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e := New(cfg, path, testLogger())

	if err := ioutil.WriteFile(path, []byte("not: [valid yaml"), 0644); err != nil {
		t.Fatalf("could not corrupt config: %v", err)
	}

	resp := e.Reread()
	if !strings.Contains(resp, "Configuration error") {
		t.Fatalf("expected a configuration error, got %q", resp)
	}
	if _, ok := e.baseline.Programs["h"]; !ok {
		t.Fatalf("expected active configuration to be preserved")
	}
}
