// Package accountd implements the account service: credentials, the online
// set, persisted room records and the game catalog, served over the same
// length-prefixed framing the lobby uses.
package accountd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/matchlobby/pkg/datastore"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// Dependencies holds external dependencies for the service.
// Server assumes ownership of Store and will Close() it when Run returns.
type Dependencies struct {
	Store datastore.DataProviderFactory
}

// Server is the account service.
type Server struct {
	cfg   Config
	store datastore.DataProviderFactory

	// online mirrors lobby logins. It is runtime state only and is cleared
	// by reset_runtime when a lobby starts.
	mu     sync.Mutex
	online map[string]struct{}

	addrMu sync.Mutex
	addr   net.Addr
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	return &Server{
		cfg:    cfg,
		store:  deps.Store,
		online: make(map[string]struct{}),
	}
}

// Addr returns the bound listener address once Serve has started.
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.addr
}

// Run listens on cfg.Addr and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.store == nil {
		return errors.New("accountd: missing store dependency")
	}
	defer func() { _ = s.store.Close() }()

	if s.cfg.GamesFile != "" {
		if err := LoadGamesFromYAML(s.cfg.GamesFile, s.store.NonTx()); err != nil {
			slog.Error("failed to load games catalog", "file", s.cfg.GamesFile, "err", err)
		}
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("accountd: listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.addrMu.Lock()
	s.addr = ln.Addr()
	s.addrMu.Unlock()
	slog.Info("account service listening", "addr", ln.Addr().String())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
					return nil
				}
				slog.Error("accept error", "err", err)
				continue
			}
			go s.handleConn(ctx, conn)
		}
	})
	err := g.Wait()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

// handleConn answers calls on one connection until the peer hangs up.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()
	remote := conn.RemoteAddr().String()

	for {
		if ctx.Err() != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))

		var call pb.AccountCall
		if err := protocol.Read(conn, &call); err != nil {
			if err != io.EOF && !isTimeout(err) {
				slog.Debug("account call read failed", "remote", remote, "err", err)
			}
			return
		}

		reply := s.dispatch(ctx, &call)

		_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.IdleTimeout))
		if err := protocol.Write(conn, reply); err != nil {
			slog.Debug("account reply write failed", "remote", remote, "err", err)
			return
		}
	}
}

// setOnline records presence. The lobby's session registry decides whether
// a second login is allowed, so a repeated login is not refused here.
func (s *Server) setOnline(username string) {
	s.mu.Lock()
	s.online[username] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) setOffline(username string) {
	s.mu.Lock()
	delete(s.online, username)
	s.mu.Unlock()
}

// Online returns the sorted online set.
func (s *Server) Online() []string {
	s.mu.Lock()
	users := make([]string, 0, len(s.online))
	for u := range s.online {
		users = append(users, u)
	}
	s.mu.Unlock()
	sort.Strings(users)
	return users
}

func (s *Server) resetOnline() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.online)
	s.online = make(map[string]struct{})
	return n
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
