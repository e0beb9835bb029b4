// Package vncserver tracks the machine-local VNC server and resolves tunnel
// targets against it. The server process itself is managed by an external
// collaborator; this package only knows whether it is up and which port it
// is bound to.
package vncserver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPort is the conventional RFB port, used when an explicit external
// target names no port.
const DefaultPort = 5900

var (
	// ErrNotRunning is returned when a tunnel targets the local server but
	// no server is listening.
	ErrNotRunning = errors.New("local vnc server is not running")
	// ErrPortMismatch is returned when a tunnel names a loopback port that
	// differs from the live server's bound port.
	ErrPortMismatch = errors.New("requested port does not match the running vnc server")
)

// Tracker records the liveness and bound port of the local VNC server.
type Tracker struct {
	mu      sync.Mutex
	running bool
	port    int
}

func NewTracker(port int) *Tracker {
	return &Tracker{port: port}
}

// SetRunning marks the local server as up on the given port.
func (t *Tracker) SetRunning(port int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = true
	t.port = port
}

// SetStopped marks the local server as down.
func (t *Tracker) SetStopped() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running = false
}

// Running reports whether the local server is believed to be up.
func (t *Tracker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Port returns the tracked local server port.
func (t *Tracker) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.port
}

// Probe dials the tracked port on loopback and updates the liveness flag.
func (t *Tracker) Probe() bool {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), 500*time.Millisecond)
	if err != nil {
		t.SetStopped()
		return false
	}
	conn.Close()
	t.SetRunning(port)
	return true
}

// StartProber re-probes the local server on the given interval until ctx is
// cancelled, so target resolution works from the tracked state without
// opening sockets on the request path.
func (t *Tracker) StartProber(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				was := t.Running()
				if now := t.Probe(); now != was {
					log.Printf("vncserver: local server running=%v port=%d", now, t.Port())
				}
			}
		}
	}()
}

// Resolve maps a requested tunnel target to a dialable address. An empty or
// loopback host resolves to the live local server and fails if it is down or
// if the supplied port mismatches its bound port; any other host is dialed
// as given.
func (t *Tracker) Resolve(host string, port int) (string, error) {
	if host == "" || isLoopback(host) {
		t.mu.Lock()
		defer t.mu.Unlock()
		if !t.running {
			return "", ErrNotRunning
		}
		if port != 0 && port != t.port {
			return "", fmt.Errorf("%w: requested %d, live %d", ErrPortMismatch, port, t.port)
		}
		return net.JoinHostPort("127.0.0.1", strconv.Itoa(t.port)), nil
	}

	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port)), nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
