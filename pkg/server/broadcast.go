package server

import (
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// delivery is one frame owed to one session, computed under Server.mu and
// written after it is released.
type delivery struct {
	to  *Session
	msg *pb.Message
}

// fanout resolves the live sessions of r's members and returns a delivery
// of msg for each, skipping exclude. Requires Server.mu.
func (s *Server) fanout(r *room, msg *pb.Message, exclude string) []delivery {
	out := make([]delivery, 0, len(r.members))
	for _, name := range r.members {
		if name == exclude {
			continue
		}
		if sess := s.sessions.Lookup(name); sess != nil {
			out = append(out, delivery{to: sess, msg: msg})
		}
	}
	return out
}

// deliver writes each frame. A failed write is logged and counted; it never
// stops delivery to the remaining sessions. Must not hold Server.mu.
func (s *Server) deliver(ds []delivery) {
	for _, d := range ds {
		if err := d.to.Send(d.msg); err != nil {
			s.metrics.BroadcastFailures.Add(1)
			s.logger.Warn("event delivery failed", "session", d.to.ID, "remote", d.to.remote, "err", err)
			continue
		}
		s.metrics.EventsSent.Add(1)
	}
}

func roomStatusEvent(r *room) *pb.Message {
	return &pb.Message{RoomStatus: &pb.RoomStatus{Room: r.info()}}
}

func gameStartedEvent(r *room) *pb.Message {
	ep := r.match.Endpoint()
	return &pb.Message{GameStarted: &pb.GameStarted{Room: r.id, Host: ep.Host, Port: ep.Port}}
}

func gameFinishedEvent(roomID, reason, winner string) *pb.Message {
	return &pb.Message{GameFinished: &pb.GameFinished{Room: roomID, Reason: reason, Winner: winner}}
}
