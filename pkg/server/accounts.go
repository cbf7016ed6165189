package server

import (
	"context"
	"errors"

	"github.com/NicolasHaas/matchlobby/pkg/gateway"
	"github.com/NicolasHaas/matchlobby/pkg/model"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// accountErr maps an account service failure to the error sent to the
// client. Refusals keep the service's code.
func accountErr(err error) error {
	var refused *gateway.Error
	switch {
	case errors.As(err, &refused):
		return refused.AppError()
	case errors.Is(err, gateway.ErrUnavailable):
		return model.ErrServiceUnavailable
	default:
		return model.ErrInternal
	}
}

// persistErr is accountErr for writes whose refusal the client sees as
// persistence_rejected.
func persistErr(err error) error {
	var refused *gateway.Error
	if errors.As(err, &refused) {
		return model.Errorf(model.CodePersistenceRejected, "%s", refused.Msg)
	}
	return accountErr(err)
}

// Register creates an account.
func (s *Server) Register(ctx context.Context, username, password string) error {
	if err := s.accounts.Register(ctx, username, password); err != nil {
		return accountErr(err)
	}
	s.logger.Info("user registered", "user", username)
	return nil
}

// Login verifies credentials with the account service and binds the
// session to username. The in-memory registry is checked first and has the
// final say.
func (s *Server) Login(ctx context.Context, sess *Session, username, password string) error {
	s.mu.Lock()
	switch {
	case sess.username != "":
		s.mu.Unlock()
		return model.ErrAlreadyLoggedIn
	case s.sessions.Lookup(username) != nil:
		s.mu.Unlock()
		s.metrics.FailedLogins.Add(1)
		return model.ErrAlreadyOnline
	}
	s.mu.Unlock()

	if err := s.accounts.Login(ctx, username, password); err != nil {
		s.metrics.FailedLogins.Add(1)
		return accountErr(err)
	}

	s.mu.Lock()
	err := s.sessions.Register(username, sess)
	s.mu.Unlock()
	if err != nil {
		s.metrics.FailedLogins.Add(1)
		return err
	}

	s.metrics.SuccessfulLogins.Add(1)
	s.logger.Info("user logged in", "user", username, "session", sess.ID, "remote", sess.remote)
	return nil
}

// Logout leaves the caller's room and ends its login.
func (s *Server) Logout(sess *Session) error {
	s.mu.Lock()
	loggedIn := sess.username != ""
	s.mu.Unlock()
	if !loggedIn {
		return model.ErrNotLoggedIn
	}
	s.release(sess)
	return nil
}

// release is the single teardown path for a session's login: it leaves the
// current room, deregisters the username, clears the mailbox and logs the
// user out of the account service.
func (s *Server) release(sess *Session) {
	s.mu.Lock()
	user := sess.username
	var out *leaveOutcome
	if r := s.rooms[sess.roomID]; r != nil && user != "" && r.has(user) {
		o := s.leaveLocked(sess, r)
		out = &o
	}
	if user != "" {
		s.sessions.Remove(user)
		sess.username = ""
	}
	sess.roomID = ""
	sess.mailbox = nil
	clear(sess.invited)
	s.mu.Unlock()

	if out != nil {
		s.afterLeave(*out)
	}
	if user == "" {
		return
	}
	if err := s.accounts.Logout(context.WithoutCancel(s.ctx), user); err != nil {
		s.logger.Warn("account logout failed", "user", user, "err", err)
	}
	s.logger.Info("user logged out", "user", user, "session", sess.ID)
}

// WhoOnline lists logged-in users from the in-memory registry.
func (s *Server) WhoOnline(sess *Session) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.username == "" {
		return nil, model.ErrNotLoggedIn
	}
	return s.sessions.Usernames(), nil
}

// ListGames returns the game catalog.
func (s *Server) ListGames(ctx context.Context) ([]pb.GameInfo, error) {
	games, err := s.accounts.ListGames(ctx)
	if err != nil {
		return nil, accountErr(err)
	}
	return games, nil
}

// MyDownloads lists the games the caller downloaded.
func (s *Server) MyDownloads(ctx context.Context, sess *Session) ([]pb.DownloadInfo, error) {
	user, err := s.username(sess)
	if err != nil {
		return nil, err
	}
	downloads, err := s.accounts.MyDownloads(ctx, user)
	if err != nil {
		return nil, accountErr(err)
	}
	return downloads, nil
}

// RateGame stores the caller's rating for a game they downloaded.
func (s *Server) RateGame(ctx context.Context, sess *Session, game string, score int, comment string) error {
	user, err := s.username(sess)
	if err != nil {
		return err
	}
	if err := s.accounts.RateGame(ctx, user, game, score, sanitizeText(comment)); err != nil {
		return accountErr(err)
	}
	s.logger.Info("game rated", "user", user, "game", game, "score", score)
	return nil
}

// ListRatings returns every rating for a game.
func (s *Server) ListRatings(ctx context.Context, game string) ([]pb.RatingInfo, error) {
	ratings, err := s.accounts.ListRatings(ctx, game)
	if err != nil {
		return nil, accountErr(err)
	}
	return ratings, nil
}

func (s *Server) username(sess *Session) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.username == "" {
		return "", model.ErrNotLoggedIn
	}
	return sess.username, nil
}
