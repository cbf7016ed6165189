package match

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// Result is delivered once on a handle's completion channel.
type Result struct {
	RoomID  string
	MatchID string
	Reason  string
	Winner  string
}

// Handle is one running match endpoint.
type Handle struct {
	RoomID    string
	MatchID   string
	Host      string // advertised host
	Port      int
	StartedAt time.Time

	sup      *Supervisor
	ln       net.Listener
	dialAddr string
	timer    *time.Timer
	alive    atomic.Bool

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	once    sync.Once
	result  Result
	done    chan Result
	stopped chan struct{}
}

// Addr returns the advertised host:port.
func (h *Handle) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// Endpoint returns the advertised address in wire form.
func (h *Handle) Endpoint() *pb.Endpoint {
	return &pb.Endpoint{Room: h.RoomID, Host: h.Host, Port: h.Port}
}

// Alive reports whether the match is still running.
func (h *Handle) Alive() bool { return h.alive.Load() }

// Done yields the match result exactly once, then is closed.
func (h *Handle) Done() <-chan Result { return h.done }

// Stopped is closed when the match has stopped.
func (h *Handle) Stopped() <-chan struct{} { return h.stopped }

// Result returns the final result. It is only meaningful after Stopped.
func (h *Handle) Result() Result {
	<-h.stopped
	return h.result
}

// Stop ends the match with reason. Only the first call has any effect; it
// reports whether this call was the one that stopped the match.
func (h *Handle) Stop(reason string) bool {
	return h.finish(Result{RoomID: h.RoomID, MatchID: h.MatchID, Reason: reason})
}

func (h *Handle) finish(res Result) bool {
	fired := false
	h.once.Do(func() {
		fired = true
		h.alive.Store(false)
		if h.timer != nil {
			h.timer.Stop()
		}
		_ = h.ln.Close()

		h.connMu.Lock()
		for c := range h.conns {
			_ = c.Close()
		}
		h.conns = nil
		h.connMu.Unlock()

		h.sup.remove(h)
		h.result = res
		close(h.stopped)
		h.done <- res
		close(h.done)

		h.sup.logger.Info("match stopped",
			"room", h.RoomID,
			"match", h.MatchID,
			"reason", res.Reason,
			"winner", res.Winner,
			"duration", time.Since(h.StartedAt).Round(time.Millisecond),
		)
	})
	return fired
}

func (h *Handle) acceptLoop() {
	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if !h.Alive() || errors.Is(err, net.ErrClosed) {
				return
			}
			h.sup.logger.Warn("match accept error", "match", h.MatchID, "err", err)
			continue
		}
		if !h.track(conn) {
			_ = conn.Close()
			return
		}
		go h.serveConn(conn)
	}
}

func (h *Handle) track(conn net.Conn) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.conns == nil {
		return false
	}
	h.conns[conn] = struct{}{}
	return true
}

func (h *Handle) untrack(conn net.Conn) {
	h.connMu.Lock()
	if h.conns != nil {
		delete(h.conns, conn)
	}
	h.connMu.Unlock()
}

// serveConn answers control frames on one connection. Players use it to
// report a result; the lobby uses it to deliver force_stop.
func (h *Handle) serveConn(conn net.Conn) {
	defer func() {
		h.untrack(conn)
		_ = conn.Close()
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(h.sup.cfg.ReadTimeout))
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && h.Alive() {
				h.sup.logger.Debug("match connection closed", "match", h.MatchID, "err", err)
			}
			return
		}

		switch {
		case msg.ForceStop != nil:
			reason := msg.ForceStop.Reason
			if reason == "" {
				reason = ReasonForcedStop
			}
			h.reply(conn, msg.ReqID, &pb.Response{Status: pb.StatusOK, Msg: "stopping"})
			h.Stop(reason)
			return

		case msg.MatchResult != nil:
			reason := msg.MatchResult.Reason
			if reason == "" {
				reason = ReasonFinished
			}
			h.reply(conn, msg.ReqID, &pb.Response{Status: pb.StatusOK})
			h.finish(Result{RoomID: h.RoomID, MatchID: h.MatchID, Reason: reason, Winner: msg.MatchResult.Winner})
			return

		case msg.Ping != nil:
			h.reply(conn, msg.ReqID, &pb.Response{Status: pb.StatusOK})

		default:
			h.reply(conn, msg.ReqID, &pb.Response{Status: pb.StatusError, Code: "bad_request", Msg: "unsupported match control message"})
		}
	}
}

func (h *Handle) reply(conn net.Conn, reqID string, resp *pb.Response) {
	_ = conn.SetWriteDeadline(time.Now().Add(h.sup.cfg.ReadTimeout))
	if err := protocol.WriteMessage(conn, &pb.Message{ReqID: reqID, Response: resp}); err != nil {
		h.sup.logger.Debug("match reply failed", "match", h.MatchID, "err", err)
	}
}

// SendForceStop dials a match endpoint, sends force_stop and waits for the
// acknowledgement.
func SendForceStop(ctx context.Context, addr, reason string) error {
	return sendControl(ctx, addr, &pb.Message{ForceStop: &pb.ForceStop{Reason: reason}})
}

// ReportResult dials a match endpoint and reports a natural finish.
func ReportResult(ctx context.Context, addr, winner, reason string) error {
	return sendControl(ctx, addr, &pb.Message{MatchResult: &pb.MatchResult{Winner: winner, Reason: reason}})
}

func sendControl(ctx context.Context, addr string, msg *pb.Message) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("match: dial %s: %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := protocol.WriteMessage(conn, msg); err != nil {
		return fmt.Errorf("match: send control: %w", err)
	}
	resp, err := protocol.ReadMessage(conn)
	if err != nil {
		return fmt.Errorf("match: read ack: %w", err)
	}
	if !resp.Response.OK() {
		return fmt.Errorf("match: control refused: %+v", resp.Response)
	}
	return nil
}
