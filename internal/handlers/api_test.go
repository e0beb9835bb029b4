package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/remdesk/agent/internal/recording"
	"github.com/remdesk/agent/internal/session"
	"github.com/remdesk/agent/internal/vncserver"
)

func newTestAPI(t *testing.T) (*API, string) {
	t.Helper()
	dir := t.TempDir()
	reg := session.NewRegistry()
	rec := recording.NewManager(reg, recording.Config{
		Dir:            dir,
		ProfileFolders: true,
		PauseDelay:     25 * time.Millisecond,
		RetentionDays:  30,
	})
	api := &API{
		Sessions:   reg,
		Recordings: rec,
		VNC:        vncserver.NewTracker(5900),
		Shell:      "/bin/sh",
	}
	return api, dir
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
}

// wsURL rewrites an httptest server URL into a websocket URL for the path.
func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

// fakePTY is an in-memory process endpoint; Read blocks until close.
type fakePTY struct {
	mu      sync.Mutex
	wrote   []byte
	rows    uint16
	cols    uint16
	resizes int

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
	p.closeOnce.Do(func() { close(p.closeCh) })
	return nil
}

func (p *fakePTY) input() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.wrote))
	copy(out, p.wrote)
	return out
}

func TestHealthCheck(t *testing.T) {
	api, _ := newTestAPI(t)
	srv := httptest.NewServer(api.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}
