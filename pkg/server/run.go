package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NicolasHaas/matchlobby/pkg/gateway"
)

const (
	resetAttempts     = 5
	resetInitialDelay = 200 * time.Millisecond
	resetMaxDelay     = 5 * time.Second
)

// Run clears state a previous lobby run left in the account service, then
// serves clients and the metrics endpoint until ctx is cancelled or the
// process receives SIGINT/SIGTERM.
func (s *Server) Run(ctx context.Context) error {
	if s.accounts == nil {
		return errors.New("server: missing accounts dependency")
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := s.resetRuntime(ctx); err != nil {
		s.logger.Error("reset_runtime failed, continuing with stale account state", "err", err)
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Serve(gctx, ln) })
	g.Go(func() error { return s.serveMetrics(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down...")
		s.Shutdown()
		return nil
	})
	s.metrics.StartPeriodicLog(s.logger, 60*time.Second, gctx.Done())

	s.logger.Info("lobby running",
		"addr", ln.Addr().String(),
		"accounts", s.cfg.AccountsAddr,
		"advertise", s.cfg.AdvertiseHost,
	)
	return g.Wait()
}

// Shutdown stops accepting, closes every client connection, waits for
// their teardown and stops all matches. It is safe to call more than once.
func (s *Server) Shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()

		s.mu.Lock()
		ln := s.listener
		open := make([]*Session, 0, len(s.active))
		for sess := range s.active {
			open = append(open, sess)
		}
		s.mu.Unlock()

		if ln != nil {
			_ = ln.Close()
		}
		for _, sess := range open {
			_ = sess.conn.Close()
		}
		s.conns.Wait()
		s.matches.Close()
	})
}

// resetRuntime retries transport failures with exponential backoff; a
// refusal from the service is final.
func (s *Server) resetRuntime(ctx context.Context) error {
	delay := resetInitialDelay
	var err error
	for attempt := 1; attempt <= resetAttempts; attempt++ {
		if err = s.accounts.ResetRuntime(ctx); err == nil {
			s.logger.Info("account service runtime state reset")
			return nil
		}
		var refused *gateway.Error
		if errors.As(err, &refused) {
			return err
		}
		s.logger.Warn("reset_runtime attempt failed", "attempt", attempt, "err", err)
		if attempt == resetAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, resetMaxDelay)
	}
	return fmt.Errorf("server: reset_runtime after %d attempts: %w", resetAttempts, err)
}
