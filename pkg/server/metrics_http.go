package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// MetricsHandler serves /metrics in Prometheus text exposition format and
// /healthz.
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	return mux
}

// serveMetrics runs the metrics HTTP endpoint until ctx is cancelled. An
// empty MetricsAddr disables it.
func (s *Server) serveMetrics(ctx context.Context) error {
	addr := s.cfg.MetricsAddr
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.MetricsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() { _ = srv.Close() })
	defer stop()

	s.logger.Info("metrics HTTP listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: metrics http: %w", err)
	}
	return nil
}

// handleMetrics writes all metrics in Prometheus text exposition format.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	m := s.metrics
	uptime := time.Since(m.startTime).Seconds()

	s.mu.Lock()
	online := int64(s.sessions.Count())
	rooms := int64(len(s.rooms))
	s.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable; suppress errcheck.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}
	writeFloat := func(name, help, mtype string, value float64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %f\n", name, value)
	}

	writeFloat("matchlobby_uptime_seconds", "Lobby uptime in seconds.", "gauge", uptime)

	write("matchlobby_connections_active", "Current client connections.", "gauge",
		m.ActiveConnections.Load())
	write("matchlobby_connections_total", "Lifetime client connections accepted.", "counter",
		m.TotalConnections.Load())
	write("matchlobby_disconnects_total", "Total client disconnects.", "counter",
		m.TotalDisconnects.Load())
	write("matchlobby_protocol_errors_total", "Connections dropped for protocol errors.", "counter",
		m.ProtocolErrors.Load())

	write("matchlobby_sessions_online", "Logged-in sessions.", "gauge", online)
	write("matchlobby_logins_success_total", "Successful logins.", "counter",
		m.SuccessfulLogins.Load())
	write("matchlobby_logins_failed_total", "Failed logins.", "counter",
		m.FailedLogins.Load())

	write("matchlobby_rooms_live", "Live rooms.", "gauge", rooms)
	write("matchlobby_rooms_created_total", "Rooms created.", "counter",
		m.RoomsCreated.Load())
	write("matchlobby_rooms_deleted_total", "Rooms deleted.", "counter",
		m.RoomsDeleted.Load())

	write("matchlobby_matches_active", "Running match endpoints.", "gauge",
		int64(s.matches.Active()))
	write("matchlobby_matches_started_total", "Matches started.", "counter",
		m.MatchesStarted.Load())
	write("matchlobby_matches_finished_total", "Matches finished.", "counter",
		m.MatchesFinished.Load())

	write("matchlobby_invites_total", "Invitations queued.", "counter",
		m.InvitesSent.Load())
	write("matchlobby_events_sent_total", "Push events written.", "counter",
		m.EventsSent.Load())
	write("matchlobby_broadcast_failures_total", "Push events that failed to write.", "counter",
		m.BroadcastFailures.Load())

	write("matchlobby_downloads_total", "Completed game downloads.", "counter",
		m.Downloads.Load())
	write("matchlobby_transfer_failures_total", "Failed game downloads.", "counter",
		m.TransferFailures.Load())
}
