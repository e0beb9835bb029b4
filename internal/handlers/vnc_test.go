package handlers

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// startEcho runs a TCP echo server standing in for a VNC endpoint.
func startEcho(t *testing.T) (addr *net.TCPAddr) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return ln.Addr().(*net.TCPAddr)
}

func TestVNCWSRejectedWhenServerDown(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	// Loopback target with no tracked server fails before any socket opens.
	resp, err := http.Get(srv.URL + "/api/v1/vnc/ws")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestVNCWSPortMismatch(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	api.VNC.SetRunning(5901)

	resp, err := http.Get(srv.URL + "/api/v1/vnc/ws?host=127.0.0.1&port=5902")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 on port mismatch, got %d", resp.StatusCode)
	}
}

func TestVNCWSInvalidPort(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/vnc/ws?port=bogus")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestVNCWSRelaysBytes(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	echo := startEcho(t)
	api.VNC.SetRunning(echo.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, wsURL(srv, "/api/v1/vnc/ws"), &websocket.DialOptions{
		Subprotocols: []string{"binary"},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	payload := []byte("RFB 003.008\n\x01\x02\x03\x04")
	if err := conn.Write(ctx, websocket.MessageBinary, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	// TCP may split the echo across frames; accumulate until it is complete.
	var got []byte
	for len(got) < len(payload) {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read echoed bytes: %v", err)
		}
		if msgType != websocket.MessageBinary {
			t.Fatalf("expected binary frame, got %v", msgType)
		}
		got = append(got, data...)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("echo mismatch: sent %q, got %q", payload, got)
	}

	conn.Close(websocket.StatusNormalClosure, "")
}
