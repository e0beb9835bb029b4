package session

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
)

const (
	// MaxResizeCols and MaxResizeRows clamp resize requests to safe
	// terminal dimensions.
	MaxResizeCols uint16 = 500
	MaxResizeRows uint16 = 300

	// MaxInputMessageSize caps a single input frame written to the shell.
	MaxInputMessageSize = 64 * 1024
)

// PTY is the process-side duplex endpoint of a terminal session.
type PTY interface {
	io.ReadWriteCloser
	Resize(rows, cols uint16) error
}

// filePTY wraps a pty master file.
type filePTY struct {
	f *os.File
}

func (p *filePTY) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *filePTY) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *filePTY) Close() error                { return p.f.Close() }

func (p *filePTY) Resize(rows, cols uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Rows: rows, Cols: cols})
}

// Terminal is one live shell session. The pty master is its input/output
// endpoint and is exclusively owned by this handle; the registry entry is
// removed on explicit close or when the shell process exits.
type Terminal struct {
	ID        string
	PID       int
	Shell     string
	CreatedAt time.Time

	pty       PTY
	cmd       *exec.Cmd
	closeOnce sync.Once
	done      chan struct{}
}

// StartTerminal spawns the shell on a fresh pty and registers the session.
func StartTerminal(reg *Registry, shell string) (*Terminal, error) {
	cmd := exec.Command(shell)
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start pty for %s: %w", shell, err)
	}

	t := NewTerminal(reg, shell, &filePTY{f: ptmx}, cmd.Process.Pid)
	t.cmd = cmd

	// Reap the shell and drop the registry entry once the process exits,
	// whether it exited on its own or because the pty was closed.
	go func() {
		cmd.Wait()
		close(t.done)
		reg.Remove(t.ID)
		log.Printf("terminal: session %s shell exited (pid=%d)", t.ID, t.PID)
	}()

	log.Printf("terminal: session %s started (pid=%d shell=%s)", t.ID, t.PID, shell)
	return t, nil
}

// NewTerminal wires an existing process endpoint into a registered Terminal.
// StartTerminal uses it with a real pty; tests substitute an in-memory one.
func NewTerminal(reg *Registry, shell string, p PTY, pid int) *Terminal {
	t := &Terminal{
		ID:        reg.NewID(),
		PID:       pid,
		Shell:     shell,
		CreatedAt: time.Now(),
		pty:       p,
		done:      make(chan struct{}),
	}
	reg.Add(t)
	return t
}

func (t *Terminal) SessionID() string { return t.ID }

func (t *Terminal) SessionKind() Kind { return KindTerminal }

// Read reads shell output from the pty master.
func (t *Terminal) Read(p []byte) (int, error) { return t.pty.Read(p) }

// Write writes input to the shell. The pty master is unbuffered, so input
// reaches the process immediately.
func (t *Terminal) Write(p []byte) (int, error) { return t.pty.Write(p) }

// Resize applies new terminal dimensions, clamped to safe upper bounds.
func (t *Terminal) Resize(rows, cols uint16) error {
	if cols > MaxResizeCols {
		cols = MaxResizeCols
	}
	if rows > MaxResizeRows {
		rows = MaxResizeRows
	}
	log.Printf("terminal: session %s resize rows=%d cols=%d", t.ID, rows, cols)
	return t.pty.Resize(rows, cols)
}

// Done is closed when the shell process has exited.
func (t *Terminal) Done() <-chan struct{} { return t.done }

// Close ends the session: the pty endpoint is closed and the shell process
// is killed. Safe to call more than once.
func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		t.pty.Close()
		if t.cmd != nil && t.cmd.Process != nil {
			t.cmd.Process.Kill()
		}
		log.Printf("terminal: session %s closed", t.ID)
	})
	return nil
}
