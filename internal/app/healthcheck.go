package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/specialistvlad/tkalgrid/internal/ctxlog"
	"github.com/specialistvlad/tkalgrid/internal/statusstore"
)

// healthHandler answers liveness probes.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

type statusResponse struct {
	Jobs   []statusstore.Entry       `json:"jobs"`
	Counts map[statusstore.State]int `json:"counts"`
}

// statusHandler serves the latest state of every job as JSON, or of a
// single job when the `job` query parameter is set.
func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Status endpoint hit.", "remote_addr", r.RemoteAddr)

	var body any
	if name := r.URL.Query().Get("job"); name != "" {
		body = a.store.Get(name)
	} else {
		resp := statusResponse{Jobs: a.store.Snapshot(), Counts: map[statusstore.State]int{}}
		if resp.Jobs == nil {
			resp.Jobs = []statusstore.Entry{}
		}
		for _, e := range resp.Jobs {
			resp.Counts[e.State]++
		}
		body = resp
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Could not encode status.", "error", err)
	}
}

func (a *App) healthMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.healthHandler)
	mux.HandleFunc("/status", a.statusHandler)
	return mux
}

// startHealthCheckServer runs the health check HTTP server in the background
// when a port is configured.
func (a *App) startHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	logger.Debug("Configuring health check server.")
	if a.config.HealthcheckPort <= 0 {
		logger.Debug("Health check server not started: disabled")
		return nil
	}

	addr := fmt.Sprintf(":%d", a.config.HealthcheckPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health check server: %w", err)
	}
	a.httpServer = &http.Server{Addr: addr, Handler: a.healthMux(), ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		// Serve returns ErrServerClosed on graceful shutdown.
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Health check server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeHealthCheckServer() error {
	logger := ctxlog.FromContext(a.ctx)
	if a.httpServer == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	ctx, cancel := context.WithTimeout(a.ctx, 5*time.Second)
	defer cancel()

	logger.Info("🩺 Shutting down health check server...")
	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	a.httpServer = nil
	logger.Debug("Health check server shut down gracefully.")
	return nil
}

// withHealthCheck runs fn while the health check server is up.
func (a *App) withHealthCheck(fn func() error) error {
	if err := a.startHealthCheckServer(); err != nil {
		return err
	}
	runErr := fn()
	if err := a.closeHealthCheckServer(); err != nil && runErr == nil {
		return err
	}
	return runErr
}
