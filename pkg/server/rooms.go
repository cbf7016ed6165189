package server

import (
	"context"
	"encoding/hex"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/matchlobby/pkg/match"
	"github.com/NicolasHaas/matchlobby/pkg/model"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// room is a live room. All fields are guarded by Server.mu.
type room struct {
	id         string
	owner      string
	visibility model.Visibility
	members    []string // join order
	state      model.RoomState
	match      *match.Handle
	game       string
	createdAt  time.Time
}

func (r *room) info() pb.RoomInfo {
	return pb.RoomInfo{
		ID:      r.id,
		Owner:   r.owner,
		Public:  r.visibility == model.Public,
		State:   r.state.String(),
		Members: slices.Clone(r.members),
	}
}

func (r *room) has(name string) bool { return slices.Contains(r.members, name) }

func (r *room) full() bool { return len(r.members) >= model.RoomCapacity }

func (r *room) remove(name string) {
	r.members = slices.DeleteFunc(r.members, func(m string) bool { return m == name })
}

// newRoomIDLocked returns an unused id of the form r-<8 hex>.
func (s *Server) newRoomIDLocked() string {
	for {
		u := uuid.New()
		id := "r-" + hex.EncodeToString(u[:4])
		if _, taken := s.rooms[id]; !taken {
			return id
		}
	}
}

// CreateRoom persists a room through the account service, then creates it
// OPEN with the caller as owner and only member.
func (s *Server) CreateRoom(ctx context.Context, sess *Session, vis model.Visibility) (pb.RoomInfo, error) {
	s.mu.Lock()
	owner := sess.username
	if owner == "" {
		s.mu.Unlock()
		return pb.RoomInfo{}, model.ErrNotLoggedIn
	}
	if sess.roomID != "" {
		s.mu.Unlock()
		return pb.RoomInfo{}, model.ErrAlreadyInRoom
	}
	id := s.newRoomIDLocked()
	s.mu.Unlock()

	rec := pb.RoomRecord{ID: id, Owner: owner, Public: vis == model.Public, Open: true}
	if err := s.accounts.CreateRoom(ctx, rec); err != nil {
		s.logger.Error("persist room failed", "room", id, "owner", owner, "err", err)
		return pb.RoomInfo{}, persistErr(err)
	}

	s.mu.Lock()
	if _, taken := s.rooms[id]; taken {
		s.mu.Unlock()
		return pb.RoomInfo{}, model.ErrInternal
	}
	r := &room{
		id:         id,
		owner:      owner,
		visibility: vis,
		members:    []string{owner},
		state:      model.RoomOpen,
		createdAt:  time.Now(),
	}
	s.rooms[id] = r
	sess.roomID = id
	info := r.info()
	s.mu.Unlock()

	s.metrics.RoomsCreated.Add(1)
	s.logger.Info("room created", "room", id, "owner", owner, "visibility", vis)
	return info, nil
}

// Join adds the caller to a room. With invited set, a private room admits
// a session that holds an invite for it. Joining a room twice is a no-op.
func (s *Server) Join(sess *Session, roomID string, invited bool) (pb.RoomInfo, error) {
	s.mu.Lock()
	user := sess.username
	if user == "" {
		s.mu.Unlock()
		return pb.RoomInfo{}, model.ErrNotLoggedIn
	}
	r := s.rooms[roomID]
	if r == nil {
		s.mu.Unlock()
		return pb.RoomInfo{}, model.ErrNoSuchRoom
	}
	if r.has(user) {
		info := r.info()
		s.mu.Unlock()
		return info, nil
	}
	if err := s.checkJoinLocked(sess, r, invited); err != nil {
		s.mu.Unlock()
		return pb.RoomInfo{}, err
	}

	r.members = append(r.members, user)
	sess.roomID = r.id
	delete(sess.invited, r.id)
	info := r.info()
	// the joiner learns the membership from its own response
	ds := s.fanout(r, roomStatusEvent(r), user)
	s.mu.Unlock()

	s.deliver(ds)
	s.logger.Info("room joined", "room", roomID, "user", user, "invited", invited)
	return info, nil
}

func (s *Server) checkJoinLocked(sess *Session, r *room, invited bool) error {
	switch {
	case sess.roomID != "":
		return model.ErrAlreadyInRoom
	case r.visibility == model.Private && !(invited && sess.invited[r.id]):
		return model.ErrPrivateRoom
	case r.state == model.RoomPlaying:
		return model.ErrRoomClosed
	case r.full():
		return model.ErrRoomFull
	}
	return nil
}

// leaveOutcome is the work left to do after a member was removed under
// the lock.
type leaveOutcome struct {
	roomID     string
	user       string
	deleted    bool
	stop       *match.Handle
	deliveries []delivery
}

// Leave removes the caller from roomID, or from its current room when
// roomID is empty.
func (s *Server) Leave(sess *Session, roomID string) error {
	s.mu.Lock()
	user := sess.username
	if user == "" {
		s.mu.Unlock()
		return model.ErrNotLoggedIn
	}
	if roomID == "" {
		roomID = sess.roomID
	}
	r := s.rooms[roomID]
	if r == nil || !r.has(user) {
		s.mu.Unlock()
		return model.ErrNotMember
	}
	out := s.leaveLocked(sess, r)
	s.mu.Unlock()

	s.afterLeave(out)
	return nil
}

func (s *Server) leaveLocked(sess *Session, r *room) leaveOutcome {
	user := sess.username
	r.remove(user)
	sess.roomID = ""
	out := leaveOutcome{roomID: r.id, user: user}

	if len(r.members) == 0 {
		delete(s.rooms, r.id)
		out.deleted = true
		out.stop = r.match
		r.match = nil
		return out
	}
	if r.owner == user {
		r.owner = r.members[0]
	}
	if r.match != nil && len(r.members) < model.RoomCapacity {
		// finish resets the room and broadcasts once the match is down
		out.stop = r.match
		return out
	}
	out.deliveries = s.fanout(r, roomStatusEvent(r), "")
	return out
}

func (s *Server) afterLeave(out leaveOutcome) {
	s.deliver(out.deliveries)

	if out.stop != nil {
		ctx, cancel := context.WithTimeout(s.ctx, s.cfg.ForceStopTimeout)
		if err := s.matches.ForceStop(ctx, out.stop, match.ReasonOpponentLeft); err != nil {
			s.logger.Warn("force stop not delivered", "room", out.roomID, "match", out.stop.MatchID, "err", err)
		}
		cancel()
	}

	if out.deleted {
		s.metrics.RoomsDeleted.Add(1)
		if err := s.accounts.DeleteRoom(s.ctx, out.roomID); err != nil {
			s.logger.Warn("delete room record failed", "room", out.roomID, "err", err)
		}
	}
	s.logger.Info("room left", "room", out.roomID, "user", out.user, "deleted", out.deleted)
}

// Start launches a match for a full room owned by the caller and
// announces the endpoint to both members.
func (s *Server) Start(ctx context.Context, sess *Session, roomID, game string) (*pb.Endpoint, error) {
	s.mu.Lock()
	user := sess.username
	if user == "" {
		s.mu.Unlock()
		return nil, model.ErrNotLoggedIn
	}
	if roomID == "" {
		roomID = sess.roomID
	}
	r := s.rooms[roomID]
	switch {
	case r == nil:
		s.mu.Unlock()
		return nil, model.ErrNoSuchRoom
	case r.owner != user:
		s.mu.Unlock()
		return nil, model.ErrNotOwner
	case r.state == model.RoomPlaying:
		s.mu.Unlock()
		return nil, model.ErrAlreadyPlaying
	case len(r.members) < model.RoomCapacity:
		s.mu.Unlock()
		return nil, model.ErrInsufficientPlayers
	}
	// Reserve the room while the endpoint binds.
	r.state = model.RoomPlaying
	s.mu.Unlock()

	h, err := s.matches.Start(r.id)
	if err != nil {
		s.mu.Lock()
		r.state = model.RoomOpen
		var ds []delivery
		if s.rooms[r.id] == r {
			ds = s.fanout(r, roomStatusEvent(r), "")
		}
		s.mu.Unlock()
		s.deliver(ds)

		s.logger.Error("match start failed", "room", r.id, "err", err)
		if errors.Is(err, match.ErrNoFreePort) {
			return nil, model.ErrNoFreePort
		}
		return nil, model.ErrInternal
	}

	s.mu.Lock()
	if s.rooms[r.id] != r || len(r.members) < model.RoomCapacity {
		// membership changed while binding
		live := s.rooms[r.id] == r
		var ds []delivery
		if live {
			r.state = model.RoomOpen
			ds = s.fanout(r, roomStatusEvent(r), "")
		}
		s.mu.Unlock()
		h.Stop(match.ReasonOpponentLeft)
		s.deliver(ds)
		if !live {
			return nil, model.ErrNoSuchRoom
		}
		return nil, model.ErrInsufficientPlayers
	}
	r.match = h
	r.game = game
	ds := s.fanout(r, gameStartedEvent(r), "")
	s.mu.Unlock()

	go s.watch(h)
	s.deliver(ds)
	s.metrics.MatchesStarted.Add(1)

	if err := s.accounts.CloseRoom(ctx, r.id); err != nil {
		s.logger.Warn("close room record failed", "room", r.id, "err", err)
	}
	s.logger.Info("match launched", "room", r.id, "match", h.MatchID, "addr", h.Addr(), "game", game)
	return h.Endpoint(), nil
}

// watch waits for the match's single result.
func (s *Server) watch(h *match.Handle) {
	res, ok := <-h.Done()
	if !ok {
		return
	}
	s.finish(res)
}

// finish resets the room after its match ended and announces the result
// followed by the new room state.
func (s *Server) finish(res match.Result) {
	s.metrics.MatchesFinished.Add(1)

	s.mu.Lock()
	r := s.rooms[res.RoomID]
	if r == nil || r.match == nil || r.match.MatchID != res.MatchID {
		s.mu.Unlock()
		s.logger.Debug("match ended for a room that moved on", "room", res.RoomID, "match", res.MatchID, "reason", res.Reason)
		return
	}
	r.match = nil
	r.state = model.RoomOpen
	r.game = ""
	winner := res.Winner
	if winner == "" && res.Reason == match.ReasonOpponentLeft && len(r.members) == 1 {
		winner = r.members[0]
	}
	ds := s.fanout(r, gameFinishedEvent(r.id, res.Reason, winner), "")
	ds = append(ds, s.fanout(r, roomStatusEvent(r), "")...)
	s.mu.Unlock()

	s.deliver(ds)
	if err := s.accounts.OpenRoom(s.ctx, res.RoomID); err != nil {
		s.logger.Warn("open room record failed", "room", res.RoomID, "err", err)
	}
	s.logger.Info("match finished", "room", res.RoomID, "match", res.MatchID, "reason", res.Reason, "winner", winner)
}

// ListRooms returns the public rooms the account service knows, with
// membership and state taken from the live rooms.
func (s *Server) ListRooms(ctx context.Context) ([]pb.RoomInfo, error) {
	recs, err := s.accounts.ListRooms(ctx)
	if err != nil {
		return nil, accountErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]pb.RoomInfo, 0, len(recs))
	for _, rec := range recs {
		if !rec.Public {
			continue
		}
		if r := s.rooms[rec.ID]; r != nil {
			out = append(out, r.info())
			continue
		}
		state := model.RoomOpen
		if !rec.Open {
			state = model.RoomPlaying
		}
		out = append(out, pb.RoomInfo{
			ID:      rec.ID,
			Owner:   rec.Owner,
			Public:  true,
			State:   state.String(),
			Members: []string{},
		})
	}
	return out, nil
}
