package engine

import (
	"bufio"
	"io"
	"sync"
)

// ringBuffer keeps the last maxLines lines written to a supervisor-owned
// pipe so `tail` can read them back non-destructively (spec.md §4.9's
// third case). It is a shared resource between the draining goroutine
// started at spawn time and whatever engine call later reads it, so unlike
// the catalog itself (owned by the single-threaded engine loop) it carries
// its own mutex.
type ringBuffer struct {
	mu       sync.Mutex
	lines    []string
	maxLines int
}

func newRingBuffer(maxLines int) *ringBuffer {
	return &ringBuffer{maxLines: maxLines}
}

func (r *ringBuffer) append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.maxLines {
		r.lines = r.lines[len(r.lines)-r.maxLines:]
	}
}

// last returns (a copy of) up to n of the most recently buffered lines.
func (r *ringBuffer) last(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n > len(r.lines) {
		n = len(r.lines)
	}
	out := make([]string, n)
	copy(out, r.lines[len(r.lines)-n:])
	return out
}

// drain continuously scans rd line by line into the ring buffer until rd
// is closed or returns an error. It is started as its own goroutine at
// spawn time and owns the read end of the pipe exclusively.
func drain(rd io.ReadCloser, buf *ringBuffer) {
	scanner := bufio.NewScanner(rd)
	scanner.Buffer(make([]byte, 4096), 1<<20)
	for scanner.Scan() {
		buf.append(scanner.Text())
	}
	rd.Close()
}
