package recording

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/remdesk/agent/internal/session"
)

// fileExt is the container extension for recording files. The browser
// uploads encoded video chunks; this core never touches the codec.
const fileExt = ".webm"

// Config holds recording behavior settings.
type Config struct {
	// Dir is the recordings root folder.
	Dir string
	// ProfileFolders nests files under <dir>/<profile-id>/ when set.
	ProfileFolders bool
	// MaxDuration auto-stops a session after this wall-clock time.
	// Zero disables the limit.
	MaxDuration time.Duration
	// PauseDelay is how long motion must be absent before a motion-enabled
	// session pauses.
	PauseDelay time.Duration
	// RetentionDays is the default age threshold for Sweep.
	RetentionDays int
}

// Manager owns the recording sessions and their files. Live sessions are
// registered in the shared session registry; there is no separate index, so
// listings merge the registry with a filesystem scan.
type Manager struct {
	reg *session.Registry
	cfg Config
}

func NewManager(reg *session.Registry, cfg Config) *Manager {
	return &Manager{reg: reg, cfg: cfg}
}

// RetentionDays returns the configured default sweep threshold.
func (m *Manager) RetentionDays() int { return m.cfg.RetentionDays }

// Start allocates a session id and output file and begins a recording. The
// session enters Starting, then Recording once the sink accepts bytes. If
// the sink cannot be opened the session is registered in Error state (it
// stays listed until deleted) and the error is returned.
func (m *Manager) Start(profileID, profileName string, motionDetection bool) (*Session, error) {
	dir := m.cfg.Dir
	if m.cfg.ProfileFolders && profileID != "" {
		dir = filepath.Join(dir, profileID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create recordings folder: %w", err)
	}

	s := &Session{
		ID:            m.reg.NewID(),
		ProfileID:     profileID,
		ProfileName:   profileName,
		StartedAt:     time.Now(),
		MotionEnabled: motionDetection,
		state:         StateStarting,
		pauseDelay:    m.cfg.PauseDelay,
		lastMotion:    time.Now(),
	}
	s.Path = filepath.Join(dir, s.ID+fileExt)
	log.Printf("recording: session %s starting (profile=%s file=%s)", s.ID, profileID, s.Path)

	f, err := os.Create(s.Path)
	if err != nil {
		s.mu.Lock()
		s.failLocked(fmt.Errorf("open sink: %w", err))
		s.mu.Unlock()
		m.reg.Add(s)
		return nil, fmt.Errorf("open recording sink: %w", err)
	}

	s.mu.Lock()
	s.file = f
	s.setStateLocked(StateRecording)
	if m.cfg.MaxDuration > 0 {
		s.maxTimer = time.AfterFunc(m.cfg.MaxDuration, func() {
			log.Printf("recording: session %s reached max duration, stopping", s.ID)
			s.Stop()
		})
	}
	s.mu.Unlock()

	m.reg.Add(s)
	return s, nil
}

// Get returns the live recording session for id.
func (m *Manager) Get(id string) (*Session, bool) {
	h, ok := m.reg.Get(id)
	if !ok {
		return nil, false
	}
	s, ok := h.(*Session)
	return s, ok
}

// Delete removes a recording: the registry entry (stopping the session if
// still live) and the file on disk. Recordings known only from the
// filesystem are located by scanning for their id.
func (m *Manager) Delete(id string) error {
	if s, ok := m.Get(id); ok {
		m.reg.Remove(id)
		if err := os.Remove(s.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("delete recording file: %w", err)
		}
		log.Printf("recording: session %s deleted (file=%s)", id, s.Path)
		return nil
	}

	path, ok := m.findFile(id)
	if !ok {
		return session.ErrNotFound
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete recording file: %w", err)
	}
	log.Printf("recording: deleted recording file %s", path)
	return nil
}

// List returns metadata for every known recording: live sessions from the
// registry plus files on disk with no backing session. Frame counters are
// only available while a session is in memory.
func (m *Manager) List() []Metadata {
	livePaths := make(map[string]bool)
	var out []Metadata

	for _, h := range m.reg.List(session.KindRecording) {
		s, ok := h.(*Session)
		if !ok {
			continue
		}
		md := s.Metadata()
		livePaths[md.Path] = true
		out = append(out, md)
	}

	m.walkFiles(func(path string, info fs.FileInfo) {
		if livePaths[path] {
			return
		}
		mod := info.ModTime()
		out = append(out, Metadata{
			ID:        strings.TrimSuffix(filepath.Base(path), fileExt),
			ProfileID: m.profileFor(path),
			Path:      path,
			State:     StateStopped,
			StartedAt: mod,
			StoppedAt: &mod,
			SizeBytes: info.Size(),
		})
	})

	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// activePaths returns the files belonging to non-terminal sessions; these
// are never deletion candidates for the sweeper.
func (m *Manager) activePaths() map[string]bool {
	keep := make(map[string]bool)
	for _, h := range m.reg.List(session.KindRecording) {
		s, ok := h.(*Session)
		if !ok {
			continue
		}
		if !s.Terminal() {
			keep[s.Path] = true
		}
	}
	return keep
}

// walkFiles visits every recording file under the root, including profile
// subfolders. A missing root is an empty result, not an error.
func (m *Manager) walkFiles(visit func(path string, info fs.FileInfo)) {
	filepath.WalkDir(m.cfg.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path != m.cfg.Dir {
				log.Printf("recording: scan %s: %v", path, err)
			}
			return nil
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), fileExt) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			log.Printf("recording: stat %s: %v", path, err)
			return nil
		}
		visit(path, info)
		return nil
	})
}

func (m *Manager) findFile(id string) (string, bool) {
	var found string
	m.walkFiles(func(path string, _ fs.FileInfo) {
		if strings.TrimSuffix(filepath.Base(path), fileExt) == id {
			found = path
		}
	})
	return found, found != ""
}

// profileFor derives the profile id from a file's parent folder when profile
// subfolders are enabled.
func (m *Manager) profileFor(path string) string {
	if !m.cfg.ProfileFolders {
		return ""
	}
	parent := filepath.Dir(path)
	if parent == filepath.Clean(m.cfg.Dir) {
		return ""
	}
	return filepath.Base(parent)
}
