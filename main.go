package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/robfig/cron/v3"

	"github.com/remdesk/agent/internal/config"
	"github.com/remdesk/agent/internal/handlers"
	"github.com/remdesk/agent/internal/recording"
	"github.com/remdesk/agent/internal/session"
	"github.com/remdesk/agent/internal/vncserver"
)

func main() {
	cfg := config.Load()

	registry := session.NewRegistry()

	recorder := recording.NewManager(registry, recording.Config{
		Dir:            cfg.RecordingsDir,
		ProfileFolders: cfg.ProfileFolders,
		MaxDuration:    cfg.MaxRecordingDuration,
		PauseDelay:     cfg.MotionPauseDelay,
		RetentionDays:  cfg.RetentionDays,
	})

	vnc := vncserver.NewTracker(cfg.VNCPort)
	if vnc.Probe() {
		log.Printf("vncserver: local server detected on port %d", cfg.VNCPort)
	} else {
		log.Printf("vncserver: no local server on port %d, loopback tunnels will be rejected", cfg.VNCPort)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vnc.StartProber(sigCtx, 30*time.Second)

	// Scheduled retention sweeps
	var sched *cron.Cron
	if cfg.RetentionDays > 0 {
		sched = cron.New()
		if _, err := sched.AddFunc(cfg.SweepSchedule, func() {
			recorder.Sweep(cfg.RetentionDays)
		}); err != nil {
			log.Fatalf("invalid sweep schedule %q: %v", cfg.SweepSchedule, err)
		}
		sched.Start()
		log.Printf("recording: retention sweep scheduled (%s, max age %d days)",
			cfg.SweepSchedule, cfg.RetentionDays)
	}

	api := &handlers.API{
		Sessions:   registry,
		Recordings: recorder,
		VNC:        vnc,
		Shell:      cfg.Shell,
	}

	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Mount("/", api.Routes())

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	go func() {
		log.Printf("remdesk-agent listening on %s (shell=%s recordings=%s)",
			cfg.ListenAddr, cfg.Shell, cfg.RecordingsDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-sigCtx.Done()
	log.Println("Shutting down...")

	if sched != nil {
		sched.Stop()
	}

	// Close every live session so ptys and file sinks are released.
	for _, h := range registry.List("") {
		registry.Remove(h.SessionID())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
