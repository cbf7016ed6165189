package server

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"
	"unicode"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// errQuit ends the connection after its reply is written.
var errQuit = errors.New("server: client quit")

// Serve accepts lobby clients on ln until ctx is cancelled or ln is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("lobby listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn serves one client connection. Its deferred teardown is the
// only place a session is destroyed.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	sess := newSession(conn, s.cfg.WriteTimeout)

	s.mu.Lock()
	if s.ctx.Err() != nil || ctx.Err() != nil {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.active[sess] = struct{}{}
	s.mu.Unlock()

	s.metrics.TotalConnections.Add(1)
	s.metrics.ActiveConnections.Add(1)
	s.logger.Debug("new client connection", "session", sess.ID, "remote", sess.remote)

	defer func() {
		s.release(sess)
		s.mu.Lock()
		delete(s.active, sess)
		s.mu.Unlock()
		_ = conn.Close()
		s.metrics.ActiveConnections.Add(-1)
		s.metrics.TotalDisconnects.Add(1)
		s.logger.Debug("client disconnected", "session", sess.ID, "remote", sess.remote)
	}()

	for {
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
			case errors.Is(err, protocol.ErrProtocol):
				s.metrics.ProtocolErrors.Add(1)
				s.logger.Info("dropping connection on protocol error", "session", sess.ID, "remote", sess.remote, "err", err)
			default:
				s.logger.Debug("read error", "session", sess.ID, "err", err)
			}
			return
		}

		req, err := msg.Request()
		if err != nil {
			s.reply(sess, msg.ReqID, nil, model.Errorf(model.CodeBadRequest, "%v", err))
			continue
		}

		resp, err := s.dispatch(ctx, sess, msg.ReqID, req)
		switch {
		case errors.Is(err, errQuit):
			s.reply(sess, msg.ReqID, resp, nil)
			return
		case errors.Is(err, protocol.ErrProtocol):
			s.metrics.ProtocolErrors.Add(1)
			s.logger.Info("dropping connection on protocol error", "session", sess.ID, "remote", sess.remote, "err", err)
			return
		case err != nil && !isAppError(err):
			s.logger.Info("dropping connection", "session", sess.ID, "remote", sess.remote, "err", err)
			return
		case resp == nil && err == nil:
			// handler wrote its own response
		default:
			s.reply(sess, msg.ReqID, resp, err)
		}
	}
}

// dispatch runs one request. A *model.Error is reported to the client and
// the connection stays open.
func (s *Server) dispatch(ctx context.Context, sess *Session, reqID string, req pb.Request) (*pb.Response, error) {
	switch r := req.(type) {
	case *pb.Register:
		return okResponse("registered"), s.Register(ctx, r.Username, r.Password)

	case *pb.Login:
		if err := s.Login(ctx, sess, r.Username, r.Password); err != nil {
			return nil, err
		}
		return &pb.Response{Status: pb.StatusOK, Msg: "logged in", Username: r.Username}, nil

	case *pb.Logout:
		return okResponse("logged out"), s.Logout(sess)

	case *pb.WhoOnline:
		users, err := s.WhoOnline(sess)
		return &pb.Response{Status: pb.StatusOK, Users: users}, err

	case *pb.CreateRoom:
		vis := model.Public
		if !r.Public {
			vis = model.Private
		}
		info, err := s.CreateRoom(ctx, sess, vis)
		return &pb.Response{Status: pb.StatusOK, Msg: "room created", Room: &info}, err

	case *pb.ListRooms:
		rooms, err := s.ListRooms(ctx)
		return &pb.Response{Status: pb.StatusOK, Rooms: rooms}, err

	case *pb.JoinRoom:
		info, err := s.Join(sess, r.RoomID, false)
		return &pb.Response{Status: pb.StatusOK, Msg: "joined", Room: &info}, err

	case *pb.LeaveRoom:
		return okResponse("left"), s.Leave(sess, r.RoomID)

	case *pb.StartGame:
		ep, err := s.Start(ctx, sess, r.RoomID, r.Game)
		return &pb.Response{Status: pb.StatusOK, Msg: "started", Game: ep}, err

	case *pb.Invite:
		roomID, err := s.Invite(sess, r.Target)
		return &pb.Response{Status: pb.StatusOK, Msg: "invite sent", Room: &pb.RoomInfo{ID: roomID}}, err

	case *pb.PullNotices:
		notices, err := s.PullNotices(sess)
		return &pb.Response{Status: pb.StatusOK, Notices: notices}, err

	case *pb.AcceptInvite:
		info, err := s.AcceptInvite(sess, r.RoomID)
		return &pb.Response{Status: pb.StatusOK, Msg: "joined", Room: &info}, err

	case *pb.ListGames:
		games, err := s.ListGames(ctx)
		return &pb.Response{Status: pb.StatusOK, Games: games}, err

	case *pb.DownloadGame:
		return nil, s.DownloadGame(ctx, sess, reqID, r.Game)

	case *pb.MyDownloads:
		downloads, err := s.MyDownloads(ctx, sess)
		return &pb.Response{Status: pb.StatusOK, Downloads: downloads}, err

	case *pb.RateGame:
		return okResponse("rated"), s.RateGame(ctx, sess, r.Game, r.Score, r.Comment)

	case *pb.ListRatings:
		ratings, err := s.ListRatings(ctx, r.Game)
		return &pb.Response{Status: pb.StatusOK, Ratings: ratings}, err

	case *pb.Ping:
		return okResponse("pong"), nil

	case *pb.Quit:
		return okResponse("bye"), errQuit

	default:
		return nil, model.ErrBadRequest
	}
}

// reply answers reqID with resp, or with an error response when err is
// set. Internal errors are reported by code only.
func (s *Server) reply(sess *Session, reqID string, resp *pb.Response, err error) {
	if err != nil {
		resp = errorResponse(err)
	}
	if werr := sess.Send(&pb.Message{ReqID: reqID, Response: resp}); werr != nil {
		s.logger.Debug("response write failed", "session", sess.ID, "err", werr)
	}
}

func okResponse(msg string) *pb.Response {
	return &pb.Response{Status: pb.StatusOK, Msg: msg}
}

func errorResponse(err error) *pb.Response {
	var appErr *model.Error
	if !errors.As(err, &appErr) {
		appErr = model.ErrInternal
	}
	return &pb.Response{Status: pb.StatusError, Code: string(appErr.Code), Msg: appErr.Msg}
}

func isAppError(err error) bool {
	var appErr *model.Error
	return errors.As(err, &appErr)
}

// sanitizeText strips control characters from user-supplied text that is
// stored and shown to other users.
func sanitizeText(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
