// Package handlers exposes the agent's live-session operations over HTTP and
// WebSocket: terminal session management and tunneling, VNC tunneling, and
// recording session control. Authentication and outer routing belong to the
// web-layer collaborator.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/remdesk/agent/internal/recording"
	"github.com/remdesk/agent/internal/session"
	"github.com/remdesk/agent/internal/vncserver"
)

// API bundles the live-session dependencies for the HTTP surface. All
// dependencies are injected; there is no package-level state.
type API struct {
	Sessions   *session.Registry
	Recordings *recording.Manager
	VNC        *vncserver.Tracker
	Shell      string
}

// Routes returns the agent's route tree.
func (a *API) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", a.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/terminal/sessions", a.CreateTerminalSession)
		r.Get("/terminal/sessions", a.ListTerminalSessions)
		r.Delete("/terminal/sessions/{id}", a.CloseTerminalSession)
		r.Get("/terminal/sessions/{id}/ws", a.TerminalWS)

		r.Get("/vnc/ws", a.VNCWS)

		r.Post("/recordings", a.StartRecording)
		r.Get("/recordings", a.ListRecordings)
		r.Post("/recordings/sweep", a.SweepRecordings)
		r.Post("/recordings/{id}/chunks", a.UploadChunk)
		r.Post("/recordings/{id}/frames", a.ReportFrameStats)
		r.Post("/recordings/{id}/stop", a.StopRecording)
		r.Delete("/recordings/{id}", a.DeleteRecording)
	})

	return r
}

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "remdesk-agent",
	})
}
