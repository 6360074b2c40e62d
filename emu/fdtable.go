package emu

import (
	"io"
	"os"
	"sync"
)

// Predefined DOS file handles.
const (
	HandleStdin  uint16 = 0
	HandleStdout uint16 = 1
	HandleStderr uint16 = 2
)

// HandleEntry is an open DOS file handle backed by a host stream.
type HandleEntry struct {
	Name   string
	Reader io.Reader // nil if the handle is write-only
	Writer io.Writer // nil if the handle is read-only
	IsOpen bool
}

// HandleTable maps DOS file handles to host streams.
type HandleTable struct {
	handles map[uint16]*HandleEntry
	next    uint16
	mu      sync.Mutex
}

// NewHandleTable creates a handle table with the standard streams bound.
func NewHandleTable(stdin io.Reader, stdout, stderr io.Writer) *HandleTable {
	t := &HandleTable{
		handles: make(map[uint16]*HandleEntry),
		next:    5, // 3 and 4 are AUX and PRN on DOS
	}

	t.handles[HandleStdin] = &HandleEntry{Name: "stdin", Reader: stdin, IsOpen: true}
	t.handles[HandleStdout] = &HandleEntry{Name: "stdout", Writer: stdout, IsOpen: true}
	t.handles[HandleStderr] = &HandleEntry{Name: "stderr", Writer: stderr, IsOpen: true}

	return t
}

// Bind attaches a host stream to the next free handle.
func (t *HandleTable) Bind(name string, r io.Reader, w io.Writer) uint16 {
	t.mu.Lock()
	defer t.mu.Unlock()

	h := t.next
	t.next++
	t.handles[h] = &HandleEntry{Name: name, Reader: r, Writer: w, IsOpen: true}
	return h
}

// Get returns the entry if the handle exists and is open.
func (t *HandleTable) Get(h uint16) (*HandleEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.handles[h]
	if !exists || !entry.IsOpen {
		return nil, false
	}
	return entry, true
}

// IsOpen checks if a handle is open.
func (t *HandleTable) IsOpen(h uint16) bool {
	_, ok := t.Get(h)
	return ok
}

// Close closes a handle. Host streams that implement io.Closer are closed
// unless they are the process's standard streams.
func (t *HandleTable) Close(h uint16) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, exists := t.handles[h]
	if !exists || !entry.IsOpen {
		return os.ErrInvalid
	}
	entry.IsOpen = false

	streams := []any{entry.Reader}
	if any(entry.Writer) != any(entry.Reader) {
		streams = append(streams, entry.Writer)
	}
	for _, s := range streams {
		if s == os.Stdin || s == os.Stdout || s == os.Stderr {
			continue
		}
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}

// Read reads from a handle.
func (t *HandleTable) Read(h uint16, buf []byte) (int, error) {
	entry, ok := t.Get(h)
	if !ok || entry.Reader == nil {
		return 0, os.ErrInvalid
	}
	n, err := entry.Reader.Read(buf)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

// Write writes to a handle.
func (t *HandleTable) Write(h uint16, buf []byte) (int, error) {
	entry, ok := t.Get(h)
	if !ok || entry.Writer == nil {
		return 0, os.ErrInvalid
	}
	return entry.Writer.Write(buf)
}
