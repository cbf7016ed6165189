package server

import (
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"
)

// Metrics tracks lobby runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	// Connection counters
	TotalConnections  atomic.Int64 // lifetime client connections accepted
	ActiveConnections atomic.Int64 // current client connections
	TotalDisconnects  atomic.Int64 // clean + unclean disconnects
	ProtocolErrors    atomic.Int64 // connections dropped for bad framing

	// Login counters
	SuccessfulLogins atomic.Int64
	FailedLogins     atomic.Int64

	// Room and match counters
	RoomsCreated    atomic.Int64
	RoomsDeleted    atomic.Int64
	MatchesStarted  atomic.Int64
	MatchesFinished atomic.Int64
	InvitesSent     atomic.Int64

	// Event delivery
	EventsSent        atomic.Int64 // push events written
	BroadcastFailures atomic.Int64 // push events that failed to write

	// Bulk transfer
	Downloads        atomic.Int64
	TransferFailures atomic.Int64
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{
		startTime: time.Now(),
	}
}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	Uptime        string `json:"uptime"`
	UptimeSeconds int64  `json:"uptime_seconds"`

	ActiveConnections int64 `json:"active_connections"`
	TotalConnections  int64 `json:"total_connections"`
	TotalDisconnects  int64 `json:"total_disconnects"`
	ProtocolErrors    int64 `json:"protocol_errors"`

	SuccessfulLogins int64 `json:"successful_logins"`
	FailedLogins     int64 `json:"failed_logins"`

	RoomsCreated    int64 `json:"rooms_created"`
	RoomsDeleted    int64 `json:"rooms_deleted"`
	MatchesStarted  int64 `json:"matches_started"`
	MatchesFinished int64 `json:"matches_finished"`
	InvitesSent     int64 `json:"invites_sent"`

	EventsSent        int64 `json:"events_sent"`
	BroadcastFailures int64 `json:"broadcast_failures"`

	Downloads        int64 `json:"downloads"`
	TransferFailures int64 `json:"transfer_failures"`
}

// Snapshot returns a read-consistent snapshot of all metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	uptime := time.Since(m.startTime)
	return MetricsSnapshot{
		Uptime:            uptime.Truncate(time.Second).String(),
		UptimeSeconds:     int64(uptime.Seconds()),
		ActiveConnections: m.ActiveConnections.Load(),
		TotalConnections:  m.TotalConnections.Load(),
		TotalDisconnects:  m.TotalDisconnects.Load(),
		ProtocolErrors:    m.ProtocolErrors.Load(),
		SuccessfulLogins:  m.SuccessfulLogins.Load(),
		FailedLogins:      m.FailedLogins.Load(),
		RoomsCreated:      m.RoomsCreated.Load(),
		RoomsDeleted:      m.RoomsDeleted.Load(),
		MatchesStarted:    m.MatchesStarted.Load(),
		MatchesFinished:   m.MatchesFinished.Load(),
		InvitesSent:       m.InvitesSent.Load(),
		EventsSent:        m.EventsSent.Load(),
		BroadcastFailures: m.BroadcastFailures.Load(),
		Downloads:         m.Downloads.Load(),
		TransferFailures:  m.TransferFailures.Load(),
	}
}

// JSON returns the metrics snapshot as a JSON string.
func (m *Metrics) JSON() string {
	data, err := json.MarshalIndent(m.Snapshot(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// LogSummary writes a periodic metrics summary to logger.
func (m *Metrics) LogSummary(logger *slog.Logger) {
	s := m.Snapshot()
	logger.Info("metrics",
		"uptime", s.Uptime,
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"matches_started", s.MatchesStarted,
		"matches_finished", s.MatchesFinished,
		"broadcast_failures", s.BroadcastFailures,
	)
}

// StartPeriodicLog starts a goroutine that logs metrics every interval.
// It stops when the done channel is closed.
func (m *Metrics) StartPeriodicLog(logger *slog.Logger, interval time.Duration, done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary(logger)
			}
		}
	}()
}
