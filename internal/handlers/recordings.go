package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/remdesk/agent/internal/recording"
	"github.com/remdesk/agent/internal/session"
)

// maxChunkSize caps a single uploaded chunk body.
const maxChunkSize = 32 * 1024 * 1024

type startRecordingRequest struct {
	ProfileID       string `json:"profile_id"`
	ProfileName     string `json:"profile_name"`
	MotionDetection bool   `json:"motion_detection"`
}

type frameStatsRequest struct {
	MotionDetected bool `json:"motion_detected"`
}

// StartRecording begins a new recording session for a profile.
func (a *API) StartRecording(w http.ResponseWriter, r *http.Request) {
	var req startRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s, err := a.Recordings.Start(req.ProfileID, req.ProfileName, req.MotionDetection)
	if err != nil {
		log.Printf("recording: start failed (profile=%s): %v", req.ProfileID, err)
		writeError(w, http.StatusInternalServerError, "Failed to start recording")
		return
	}

	writeJSON(w, http.StatusCreated, s.Metadata())
}

// UploadChunk appends one binary chunk to a recording session's file.
func (a *API) UploadChunk(w http.ResponseWriter, r *http.Request) {
	s, ok := a.Recordings.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Recording session not found")
		return
	}

	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read chunk body")
		return
	}
	if len(chunk) == 0 {
		writeError(w, http.StatusBadRequest, "Empty chunk")
		return
	}

	if err := s.ReceiveChunk(chunk); err != nil {
		if errors.Is(err, recording.ErrInvalidState) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to persist chunk")
		return
	}

	md := s.Metadata()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"chunks_received": md.ChunksReceived,
		"size_bytes":      md.SizeBytes,
	})
}

// ReportFrameStats records a motion-detection result for a session.
func (a *API) ReportFrameStats(w http.ResponseWriter, r *http.Request) {
	s, ok := a.Recordings.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Recording session not found")
		return
	}

	var req frameStatsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := s.UpdateFrameStats(req.MotionDetected); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	md := s.Metadata()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":           md.State,
		"frames_recorded": md.FramesRecorded,
		"frames_skipped":  md.FramesSkipped,
	})
}

// StopRecording finalizes a recording session. Idempotent.
func (a *API) StopRecording(w http.ResponseWriter, r *http.Request) {
	s, ok := a.Recordings.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Recording session not found")
		return
	}

	s.Stop()
	writeJSON(w, http.StatusOK, s.Metadata())
}

// ListRecordings returns live recording sessions plus recordings
// reconstructed from files on disk.
func (a *API) ListRecordings(w http.ResponseWriter, r *http.Request) {
	list := a.Recordings.List()
	if list == nil {
		list = []recording.Metadata{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recordings": list,
	})
}

// DeleteRecording removes a recording session and its file.
func (a *API) DeleteRecording(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := a.Recordings.Delete(id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Recording not found")
			return
		}
		log.Printf("recording: delete %s failed: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete recording")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// SweepRecordings runs a retention sweep. The age threshold comes from the
// max_age_days query parameter, defaulting to the configured retention.
func (a *API) SweepRecordings(w http.ResponseWriter, r *http.Request) {
	maxAgeDays := a.Recordings.RetentionDays()
	if ps := r.URL.Query().Get("max_age_days"); ps != "" {
		p, err := strconv.Atoi(ps)
		if err != nil || p <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid max_age_days")
			return
		}
		maxAgeDays = p
	}

	deleted := a.Recordings.Sweep(maxAgeDays)
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}
