package server

import (
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// Invite queues an invitation to the caller's room in target's mailbox.
func (s *Server) Invite(sess *Session, target string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user := sess.username
	if user == "" {
		return "", model.ErrNotLoggedIn
	}
	r := s.rooms[sess.roomID]
	if r == nil {
		return "", model.ErrNotInRoom
	}
	if target == user {
		return "", model.Errorf(model.CodeBadRequest, "cannot invite yourself")
	}
	if r.full() {
		return "", model.ErrRoomFull
	}
	t := s.sessions.Lookup(target)
	if t == nil {
		return "", model.ErrTargetOffline
	}

	t.mailbox = append(t.mailbox, model.Invite{From: user, RoomID: r.id, CreatedAt: time.Now()})
	t.invited[r.id] = true
	s.metrics.InvitesSent.Add(1)
	return r.id, nil
}

// PullNotices drains the caller's mailbox.
func (s *Server) PullNotices(sess *Session) ([]pb.InviteInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.username == "" {
		return nil, model.ErrNotLoggedIn
	}
	out := make([]pb.InviteInfo, 0, len(sess.mailbox))
	for _, inv := range sess.mailbox {
		out = append(out, pb.InviteInfo{From: inv.From, RoomID: inv.RoomID, CreatedAt: inv.CreatedAt.Unix()})
	}
	sess.mailbox = nil
	return out, nil
}

// AcceptInvite joins a room the caller was invited to, private or not.
func (s *Server) AcceptInvite(sess *Session, roomID string) (pb.RoomInfo, error) {
	return s.Join(sess, roomID, true)
}
