// Package recording manages screen-capture recording sessions: a state
// machine per session ingesting chunked uploads into a video file, a
// listing layer that merges live sessions with files found on disk, and a
// retention sweeper. Recordings are independent of any live tunnel.
package recording

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/remdesk/agent/internal/session"
)

// State is the lifecycle state of a recording session. States only advance
// (Starting → Recording → Stopped/Error) except for the Paused⇄Recording
// oscillation driven by motion detection.
type State string

const (
	StateStarting  State = "starting"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateStopped   State = "stopped"
	StateError     State = "error"
)

var (
	// ErrInvalidState rejects an operation that is not valid in the
	// session's current state (e.g. a chunk upload after stop).
	ErrInvalidState = errors.New("operation not valid in current recording state")
	// ErrMotionDisabled rejects frame stats for a session that was started
	// without motion detection.
	ErrMotionDisabled = errors.New("motion detection not enabled for this session")
)

// Session is one live recording. Chunk appends are serialized by the
// session mutex so file order always matches arrival order; the file handle
// is exclusively owned by the session.
type Session struct {
	ID            string
	ProfileID     string
	ProfileName   string
	StartedAt     time.Time
	Path          string
	MotionEnabled bool

	mu             sync.Mutex
	state          State
	stoppedAt      *time.Time
	file           *os.File
	sizeBytes      int64
	chunksReceived int64
	framesRecorded int64
	framesSkipped  int64
	lastMotion     time.Time
	pauseDelay     time.Duration
	maxTimer       *time.Timer
	lastErr        error
}

func (s *Session) SessionID() string { return s.ID }

func (s *Session) SessionKind() session.Kind { return session.KindRecording }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Terminal reports whether the session has reached a terminal state.
func (s *Session) Terminal() bool {
	st := s.State()
	return st == StateStopped || st == StateError
}

// ReceiveChunk appends one uploaded chunk to the file sink. Valid only while
// Recording or Paused; anything else is an explicit rejection. A sink write
// failure is unrecoverable and moves the session to Error.
func (s *Session) ReceiveChunk(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording && s.state != StatePaused {
		return fmt.Errorf("%w: chunk on %s session %s", ErrInvalidState, s.state, s.ID)
	}
	if _, err := s.file.Write(p); err != nil {
		s.failLocked(fmt.Errorf("append chunk: %w", err))
		return err
	}
	s.chunksReceived++
	s.sizeBytes += int64(len(p))
	return nil
}

// UpdateFrameStats records one motion-detection result. A sustained absence
// of motion beyond the pause delay (measured from the last positive
// detection) pauses the recording; a positive detection resumes it
// immediately.
func (s *Session) UpdateFrameStats(motionDetected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.MotionEnabled {
		return fmt.Errorf("%w: session %s", ErrMotionDisabled, s.ID)
	}
	if s.state != StateRecording && s.state != StatePaused {
		return fmt.Errorf("%w: frame stats on %s session %s", ErrInvalidState, s.state, s.ID)
	}

	if motionDetected {
		s.framesRecorded++
		s.lastMotion = time.Now()
		if s.state == StatePaused {
			s.setStateLocked(StateRecording)
		}
		return nil
	}

	s.framesSkipped++
	if s.state == StateRecording && time.Since(s.lastMotion) > s.pauseDelay {
		s.setStateLocked(StatePaused)
	}
	return nil
}

// Stop flushes and closes the sink and moves the session to Stopped. Valid
// from any non-terminal state and idempotent: repeated calls keep the
// terminal state and never double-close the sink.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

// Close satisfies session.Handle; registry removal stops the session.
func (s *Session) Close() error { return s.Stop() }

func (s *Session) stopLocked() {
	if s.state == StateStopped || s.state == StateError {
		return
	}
	if s.maxTimer != nil {
		s.maxTimer.Stop()
	}
	now := time.Now()
	s.stoppedAt = &now
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			log.Printf("recording: session %s sink flush: %v", s.ID, err)
		}
		s.file.Close()
		s.file = nil
	}
	s.setStateLocked(StateStopped)
}

// failLocked moves the session to Error and closes the sink. Fatal only to
// this session, never to the process.
func (s *Session) failLocked(err error) {
	if s.state == StateStopped || s.state == StateError {
		return
	}
	s.lastErr = err
	if s.maxTimer != nil {
		s.maxTimer.Stop()
	}
	now := time.Now()
	s.stoppedAt = &now
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	log.Printf("recording: session %s sink error: %v", s.ID, err)
	s.setStateLocked(StateError)
}

func (s *Session) setStateLocked(next State) {
	prev := s.state
	s.state = next
	log.Printf("recording: session %s %s -> %s", s.ID, prev, next)
}

// Metadata is an immutable summary of a recording session. For sessions no
// longer in memory it is reconstructed purely from the file on disk, so the
// frame counters are zero there.
type Metadata struct {
	ID              string     `json:"id"`
	ProfileID       string     `json:"profile_id,omitempty"`
	ProfileName     string     `json:"profile_name,omitempty"`
	Path            string     `json:"path"`
	State           State      `json:"state"`
	StartedAt       time.Time  `json:"started_at"`
	StoppedAt       *time.Time `json:"stopped_at,omitempty"`
	SizeBytes       int64      `json:"size_bytes"`
	ChunksReceived  int64      `json:"chunks_received"`
	MotionEnabled   bool       `json:"motion_detection"`
	FramesRecorded  int64      `json:"frames_recorded"`
	FramesSkipped   int64      `json:"frames_skipped"`
	DurationSeconds float64    `json:"duration_seconds,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Metadata returns a point-in-time summary of the session.
func (s *Session) Metadata() Metadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	md := Metadata{
		ID:             s.ID,
		ProfileID:      s.ProfileID,
		ProfileName:    s.ProfileName,
		Path:           s.Path,
		State:          s.state,
		StartedAt:      s.StartedAt,
		StoppedAt:      s.stoppedAt,
		SizeBytes:      s.sizeBytes,
		ChunksReceived: s.chunksReceived,
		MotionEnabled:  s.MotionEnabled,
		FramesRecorded: s.framesRecorded,
		FramesSkipped:  s.framesSkipped,
	}
	if s.stoppedAt != nil {
		md.DurationSeconds = s.stoppedAt.Sub(s.StartedAt).Seconds()
	}
	if s.lastErr != nil {
		md.Error = s.lastErr.Error()
	}
	return md
}
