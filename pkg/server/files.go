package server

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// gameFile resolves a game's package: the first regular file in
// <GamesDir>/<game>/.
func (s *Server) gameFile(game string) (string, error) {
	if game == "" || game != filepath.Base(game) || strings.HasPrefix(game, ".") {
		return "", model.Errorf(model.CodeBadRequest, "invalid game name")
	}
	dir := filepath.Join(s.cfg.GamesDir, game)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", model.ErrNoSuchGame
		}
		s.logger.Error("read games dir failed", "dir", dir, "err", err)
		return "", model.ErrInternal
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			return filepath.Join(dir, e.Name()), nil
		}
	}
	return "", model.ErrNoSuchGame
}

// DownloadGame runs the bulk transfer handshake: a ready response naming
// the file and its size, the raw byte stream, then the client's
// transfer_ack. It writes its own response. A *model.Error means nothing
// was sent yet; any other error leaves the connection unusable.
func (s *Server) DownloadGame(ctx context.Context, sess *Session, reqID, game string) error {
	user, err := s.username(sess)
	if err != nil {
		return err
	}
	path, err := s.gameFile(game)
	if err != nil {
		return err
	}
	f, err := os.Open(path) //nolint:gosec // resolved under the configured games dir
	if err != nil {
		s.logger.Error("open game file failed", "path", path, "err", err)
		return model.ErrInternal
	}
	defer func() { _ = f.Close() }()
	info, err := f.Stat()
	if err != nil {
		return model.ErrInternal
	}

	ready := &pb.Message{ReqID: reqID, Response: &pb.Response{
		Status: pb.StatusOK,
		Msg:    "ready",
		File:   &pb.FileInfo{Name: filepath.Base(path), Size: info.Size()},
	}}
	start := time.Now()
	err = sess.exclusive(func(conn net.Conn) error {
		_ = conn.SetWriteDeadline(start.Add(s.cfg.TransferTimeout))
		if err := protocol.WriteMessage(conn, ready); err != nil {
			return err
		}
		return protocol.SendStream(conn, f, info.Size())
	})
	if err != nil {
		s.metrics.TransferFailures.Add(1)
		return fmt.Errorf("server: send %s: %w", game, err)
	}

	_ = sess.conn.SetReadDeadline(start.Add(s.cfg.TransferTimeout))
	msg, err := protocol.ReadMessage(sess.conn)
	_ = sess.conn.SetReadDeadline(time.Time{})
	if err != nil {
		s.metrics.TransferFailures.Add(1)
		return fmt.Errorf("server: read transfer ack: %w", err)
	}
	if msg.TransferAck == nil {
		s.metrics.TransferFailures.Add(1)
		return fmt.Errorf("%w: expected transfer_ack after stream", protocol.ErrProtocol)
	}
	if !msg.TransferAck.Success {
		s.metrics.TransferFailures.Add(1)
		s.logger.Warn("client rejected download", "user", user, "game", game, "reason", msg.TransferAck.Error)
		return nil
	}

	s.metrics.Downloads.Add(1)
	s.logger.Info("game downloaded", "user", user, "game", game, "bytes", info.Size(), "took", time.Since(start).Round(time.Millisecond))
	if err := s.accounts.RecordDownload(ctx, user, game); err != nil {
		s.logger.Warn("record download failed", "user", user, "game", game, "err", err)
	}
	return nil
}
