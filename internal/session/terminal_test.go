package session

import (
	"bytes"
	"io"
	"sync"
	"testing"
)

// fakePTY is an in-memory process endpoint for terminal tests. Read blocks
// until the endpoint is closed, like an idle shell.
type fakePTY struct {
	mu      sync.Mutex
	wrote   []byte
	rows    uint16
	cols    uint16
	resizes int
	closes  int

	closeCh   chan struct{}
	closeOnce sync.Once
}

func newFakePTY() *fakePTY {
	return &fakePTY{closeCh: make(chan struct{})}
}

func (p *fakePTY) Read(b []byte) (int, error) {
	<-p.closeCh
	return 0, io.EOF
}

func (p *fakePTY) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.wrote = append(p.wrote, b...)
	return len(b), nil
}

func (p *fakePTY) Resize(rows, cols uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rows = rows
	p.cols = cols
	p.resizes++
	return nil
}

func (p *fakePTY) Close() error {
	p.mu.Lock()
	p.closes++
	p.mu.Unlock()
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

func TestTerminalResize(t *testing.T) {
	reg := NewRegistry()
	fp := newFakePTY()
	term := NewTerminal(reg, "/bin/sh", fp, 4242)

	if err := term.Resize(40, 120); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.rows != 40 || fp.cols != 120 {
		t.Errorf("expected 40x120, got %dx%d", fp.rows, fp.cols)
	}
}

func TestTerminalResizeClamped(t *testing.T) {
	reg := NewRegistry()
	fp := newFakePTY()
	term := NewTerminal(reg, "/bin/sh", fp, 1)

	if err := term.Resize(10000, 10000); err != nil {
		t.Fatalf("Resize: %v", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.rows != MaxResizeRows {
		t.Errorf("expected rows clamped to %d, got %d", MaxResizeRows, fp.rows)
	}
	if fp.cols != MaxResizeCols {
		t.Errorf("expected cols clamped to %d, got %d", MaxResizeCols, fp.cols)
	}
}

func TestTerminalWriteReachesPTY(t *testing.T) {
	reg := NewRegistry()
	fp := newFakePTY()
	term := NewTerminal(reg, "/bin/sh", fp, 1)

	if _, err := term.Write([]byte("ls -la\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if !bytes.Equal(fp.wrote, []byte("ls -la\n")) {
		t.Errorf("unexpected pty input: %q", fp.wrote)
	}
}

func TestTerminalCloseIdempotent(t *testing.T) {
	reg := NewRegistry()
	fp := newFakePTY()
	term := NewTerminal(reg, "/bin/sh", fp, 1)

	term.Close()
	term.Close()

	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.closes != 1 {
		t.Errorf("expected pty closed once, got %d", fp.closes)
	}
}

func TestTerminalRemovedFromRegistryCloses(t *testing.T) {
	reg := NewRegistry()
	fp := newFakePTY()
	term := NewTerminal(reg, "/bin/sh", fp, 1)

	if _, ok := reg.Get(term.ID); !ok {
		t.Fatal("expected terminal registered on creation")
	}

	reg.Remove(term.ID)

	if _, ok := reg.Get(term.ID); ok {
		t.Error("expected terminal gone after Remove")
	}
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.closes != 1 {
		t.Errorf("expected pty closed on removal, got %d closes", fp.closes)
	}
}
