package logging

import (
	"strings"
	"sync"
)

// Ring keeps the most recent log lines. Each Write is one record.
type Ring struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

// NewRing returns a ring holding up to size lines; size < 1 keeps one.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{lines: make([]string, size)}
}

func (r *Ring) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")

	r.mu.Lock()
	r.lines[r.next] = line
	r.next = (r.next + 1) % len(r.lines)
	if r.next == 0 {
		r.full = true
	}
	r.mu.Unlock()

	return len(p), nil
}

// Lines returns buffered lines oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]string(nil), r.lines[:r.next]...)
	}
	out := make([]string, 0, len(r.lines))
	out = append(out, r.lines[r.next:]...)
	return append(out, r.lines[:r.next]...)
}

// Tail returns at most n of the newest lines.
func (r *Ring) Tail(n int) []string {
	lines := r.Lines()
	if n >= 0 && len(lines) > n {
		return lines[len(lines)-n:]
	}
	return lines
}

// Cap is the ring capacity.
func (r *Ring) Cap() int {
	return len(r.lines)
}
