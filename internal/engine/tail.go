package engine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rouhija/taskmaster/internal/config"
)

// tailLineCount is how many lines `tail` returns (spec.md §4.9: "up to 10
// lines").
const tailLineCount = 10

// tailFileTimeout bounds the file-read case (spec.md §4.9: "a 3-second
// timeout").
const tailFileTimeout = 3 * time.Second

// Tail implements spec.md §4.9. stream must be "stdout" or "stderr".
func (e *Engine) Tail(name, stream string) string {
	entry, err := e.lookup(name)
	if err != nil {
		return err.Error()
	}

	var sink config.LogSink
	switch stream {
	case "stdout":
		sink = entry.Config.StdoutLogfile
	case "stderr":
		sink = entry.Config.StderrLogfile
	default:
		return fmt.Sprintf("%s: unknown stream %q (expected stdout or stderr)", name, stream)
	}

	switch sink.Kind {
	case config.SinkNull:
		return fmt.Sprintf("%s: output is directed to /dev/null", name)

	case config.SinkFile:
		lines, err := tailFile(sink.Path, tailLineCount, tailFileTimeout)
		if err != nil {
			return fmt.Sprintf("%s: could not read %s: %s", name, sink.Path, err)
		}
		return strings.Join(lines, "|")

	default: // config.SinkPipe
		var buf *ringBuffer
		if entry.Runtime != nil {
			if stream == "stdout" {
				buf = entry.Runtime.stdoutBuf
			} else {
				buf = entry.Runtime.stderrBuf
			}
		}
		if buf == nil {
			return fmt.Sprintf("%s: no output captured", name)
		}
		return strings.Join(buf.last(tailLineCount), "|")
	}
}

// tailFile reads up to n of the last lines of path directly, with a bounded
// buffer (SPEC_FULL.md §4.9: "an implementation is free to read the last N
// lines directly from the logfile", in place of shelling out to tail(1)).
func tailFile(path string, n int, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		lines []string
		err   error
	}
	ch := make(chan result, 1)

	go func() {
		lines, err := readLastLines(path, n)
		ch <- result{lines, err}
	}()

	select {
	case r := <-ch:
		return r.lines, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// readLastLines reads at most the trailing 1MiB of path and returns its
// last n lines, bounding memory use on arbitrarily large logfiles.
func readLastLines(path string, n int) ([]string, error) {
	const maxRead = 1 << 20

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := info.Size()
	offset := int64(0)
	if size > maxRead {
		offset = size - maxRead
	}
	if _, err := f.Seek(offset, 0); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(f); err != nil {
		return nil, err
	}

	scanner := bufio.NewScanner(bytes.NewReader(buf.Bytes()))
	scanner.Buffer(make([]byte, 4096), 1<<20)
	var all []string
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if len(all) > n {
		all = all[len(all)-n:]
	}
	return all, nil
}
