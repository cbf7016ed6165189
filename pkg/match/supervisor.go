// Package match runs ephemeral per-match network endpoints.
//
// A Supervisor binds a listener for each started match, arms an idle timer
// and hands back a Handle. Every way a match can end (idle expiry, a
// force_stop instruction, a match_result from a player, or a direct Stop)
// goes through Handle.Stop, which runs its cleanup once and resolves the
// handle's completion channel once.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stop reasons reported in Result.Reason.
const (
	ReasonIdleTimeout  = "idle_timeout"
	ReasonForcedStop   = "forced_stop"
	ReasonOpponentLeft = "opponent_left_room"
	ReasonFinished     = "finished"
	ReasonShutdown     = "server_shutdown"
)

var (
	// ErrNoFreePort is returned by Start when no port could be bound.
	ErrNoFreePort = errors.New("match: no free port")
	// ErrStopped is returned by Start after Close.
	ErrStopped = errors.New("match: supervisor stopped")
)

// Config controls where match endpoints bind and how long they live.
type Config struct {
	BindHost      string        // interface to bind ("" = all)
	AdvertiseHost string        // host handed to players
	PortMin       int           // inclusive range; 0/0 = OS-assigned port
	PortMax       int           //
	IdleTimeout   time.Duration // stop a match that has not finished by then
	ReadTimeout   time.Duration // per-connection idle limit on the control listener
}

// DefaultConfig returns the defaults used by the lobby.
func DefaultConfig() Config {
	return Config{
		AdvertiseHost: "127.0.0.1",
		IdleTimeout:   10 * time.Minute,
		ReadTimeout:   30 * time.Second,
	}
}

// Validate checks the port range and timeouts.
func (c Config) Validate() error {
	if (c.PortMin == 0) != (c.PortMax == 0) {
		return errors.New("match: port range needs both min and max")
	}
	if c.PortMin < 0 || c.PortMax > 65535 || c.PortMin > c.PortMax {
		return fmt.Errorf("match: invalid port range %d-%d", c.PortMin, c.PortMax)
	}
	if c.IdleTimeout <= 0 {
		return errors.New("match: idle timeout must be positive")
	}
	if c.ReadTimeout <= 0 {
		return errors.New("match: read timeout must be positive")
	}
	return nil
}

// Supervisor starts and tracks match endpoints.
type Supervisor struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Handle // matchID -> handle
	closed bool
}

// NewSupervisor creates a supervisor. A nil logger selects slog.Default().
func NewSupervisor(cfg Config, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		cfg:    cfg,
		logger: logger.With("component", "match"),
		active: make(map[string]*Handle),
	}
}

// Start binds a listener for roomID, spawns its accept loop and arms the
// idle timer.
func (s *Supervisor) Start(roomID string) (*Handle, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrStopped
	}

	ln, err := s.listen()
	if err != nil {
		return nil, err
	}
	tcpAddr, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		_ = ln.Close()
		return nil, fmt.Errorf("match: unexpected listener address %T", ln.Addr())
	}

	h := &Handle{
		RoomID:    roomID,
		MatchID:   uuid.NewString(),
		Host:      s.advertiseHost(),
		Port:      tcpAddr.Port,
		StartedAt: time.Now(),
		sup:       s,
		ln:        ln,
		dialAddr:  dialAddr(tcpAddr),
		conns:     make(map[net.Conn]struct{}),
		done:      make(chan Result, 1),
		stopped:   make(chan struct{}),
	}
	h.alive.Store(true)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return nil, ErrStopped
	}
	s.active[h.MatchID] = h
	s.mu.Unlock()

	h.timer = time.AfterFunc(s.cfg.IdleTimeout, func() { h.Stop(ReasonIdleTimeout) })
	go h.acceptLoop()

	s.logger.Info("match started", "room", roomID, "match", h.MatchID, "addr", h.Addr())
	return h, nil
}

// listen binds the real listener directly. With no range the OS picks the
// port; with a range, candidates are tried in random order.
func (s *Supervisor) listen() (net.Listener, error) {
	if s.cfg.PortMin == 0 && s.cfg.PortMax == 0 {
		ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.BindHost, "0"))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoFreePort, err)
		}
		return ln, nil
	}

	n := s.cfg.PortMax - s.cfg.PortMin + 1
	for _, i := range rand.Perm(n) {
		port := s.cfg.PortMin + i
		ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.BindHost, strconv.Itoa(port)))
		if err == nil {
			return ln, nil
		}
		s.logger.Debug("match port busy", "port", port, "err", err)
	}
	return nil, fmt.Errorf("%w in range %d-%d", ErrNoFreePort, s.cfg.PortMin, s.cfg.PortMax)
}

func (s *Supervisor) advertiseHost() string {
	if s.cfg.AdvertiseHost != "" {
		return s.cfg.AdvertiseHost
	}
	if s.cfg.BindHost != "" {
		return s.cfg.BindHost
	}
	return "127.0.0.1"
}

// dialAddr is the address the lobby itself uses to reach a match listener.
func dialAddr(a *net.TCPAddr) string {
	ip := a.IP
	if ip == nil || ip.IsUnspecified() {
		ip = net.IPv4(127, 0, 0, 1)
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(a.Port))
}

func (s *Supervisor) remove(h *Handle) {
	s.mu.Lock()
	delete(s.active, h.MatchID)
	s.mu.Unlock()
}

// Active returns the number of running matches.
func (s *Supervisor) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// ForceStop delivers a force_stop instruction to the match endpoint over
// its own listener and waits for the handle to stop. If delivery fails or
// ctx ends first, the handle is stopped directly. It returns the delivery
// error, if any; the match is stopped either way.
func (s *Supervisor) ForceStop(ctx context.Context, h *Handle, reason string) error {
	if !h.Alive() {
		return nil
	}
	if reason == "" {
		reason = ReasonForcedStop
	}

	err := SendForceStop(ctx, h.dialAddr, reason)
	if err != nil {
		s.logger.Warn("force stop delivery failed, stopping directly", "match", h.MatchID, "err", err)
		h.Stop(reason)
		return err
	}

	select {
	case <-h.Stopped():
	case <-ctx.Done():
		h.Stop(reason)
	}
	return nil
}

// StopAll stops every running match with reason.
func (s *Supervisor) StopAll(reason string) {
	s.mu.Lock()
	handles := make([]*Handle, 0, len(s.active))
	for _, h := range s.active {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		h.Stop(reason)
	}
}

// Close refuses further Start calls and stops every running match.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.StopAll(ReasonShutdown)
}
