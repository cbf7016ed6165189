// Package client is a lobby client library.
//
// A Client multiplexes one lobby connection: requests carry a generated
// req_id, a single reader goroutine routes each response to its waiting
// caller, and push events are queued on Events(). While a download is in
// flight the connection carries raw bytes, so other requests wait until
// its transfer_ack has been written.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

var (
	// ErrTimeout is returned when no response arrives within the wait bound.
	ErrTimeout = errors.New("client: timed out waiting for response")
	// ErrClosed is returned once the connection is gone.
	ErrClosed = errors.New("client: connection closed")
)

// Options tunes a Client. Zero values select defaults.
type Options struct {
	Timeout         time.Duration // wait bound per request (default 5s)
	TransferTimeout time.Duration // wait bound for a download (default 2m)
	EventBuffer     int           // queued push events before drops (default 64)
	Logger          *slog.Logger
}

type result struct {
	resp *pb.Response
	err  error
}

// streamFunc consumes the raw bytes that follow an OK response and returns
// the transfer_ack to send. A returned error leaves the connection unusable.
type streamFunc func(r io.Reader, resp *pb.Response) (*pb.TransferAck, error)

// call is one in-flight request. Streamed calls run on the reader goroutine
// and end with release, which hands the connection back to other requests.
type call struct {
	ch      chan result
	stream  streamFunc
	release func()

	// detached is set when the caller stopped waiting on a streamed call.
	// The reader still consumes the stream, discarding it.
	detached bool
}

// Client is a connection to a lobby.
type Client struct {
	conn   net.Conn
	opts   Options
	logger *slog.Logger

	writeMu sync.Mutex
	// transferMu is held exclusively from sending download_game until its
	// transfer_ack is written; plain requests take it shared to send.
	transferMu sync.RWMutex

	mu      sync.Mutex
	pending map[string]*call
	closed  bool

	events chan *pb.Message
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the lobby at addr and starts the reader.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect lobby: %w", err)
	}
	return New(conn, opts), nil
}

// New wraps an established connection and starts the reader.
func New(conn net.Conn, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.TransferTimeout <= 0 {
		opts.TransferTimeout = 2 * time.Minute
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		conn:    conn,
		opts:    opts,
		logger:  logger.With("component", "client"),
		pending: make(map[string]*call),
		events:  make(chan *pb.Message, opts.EventBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Events delivers push events (room_status, game_started, game_finished).
// It is closed when the connection ends.
func (c *Client) Events() <-chan *pb.Message { return c.events }

// Done is closed when the connection is lost.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close closes the connection.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

func (c *Client) send(msg *pb.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.WriteMessage(c.conn, msg)
}

// Do sends req and waits for its response. A non-OK response is returned
// as a *model.Error carrying the lobby's code.
func (c *Client) Do(ctx context.Context, req pb.Request) (*pb.Response, error) {
	return c.do(ctx, req, nil, c.opts.Timeout)
}

// do registers a call, sends req and waits for the result. A streamed call
// owns the connection until the reader has written its transfer_ack.
func (c *Client) do(ctx context.Context, req pb.Request, stream streamFunc, wait time.Duration) (*pb.Response, error) {
	id := uuid.NewString()
	cl := &call{ch: make(chan result, 1), stream: stream}

	if stream != nil {
		c.transferMu.Lock()
		var once sync.Once
		cl.release = func() { once.Do(c.transferMu.Unlock) }
	} else {
		c.transferMu.RLock()
	}
	sent := func() {
		if stream == nil {
			c.transferMu.RUnlock()
		}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		sent()
		cl.done()
		return nil, ErrClosed
	}
	c.pending[id] = cl
	c.mu.Unlock()

	err := c.send(pb.NewRequest(id, req))
	sent()
	if err != nil {
		c.forget(id)
		cl.done()
		return nil, fmt.Errorf("client: send: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	select {
	case res := <-cl.ch:
		if res.err != nil {
			return res.resp, res.err
		}
		if !res.resp.OK() {
			return res.resp, &model.Error{Code: model.Code(res.resp.Code), Msg: res.resp.Msg}
		}
		return res.resp, nil
	case <-ctx.Done():
		if stream != nil {
			c.detach(id)
		} else {
			c.forget(id)
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, ctx.Err()
	case <-c.done:
		// the reader may have delivered just before exiting
		select {
		case res := <-cl.ch:
			if res.err == nil && !res.resp.OK() {
				return res.resp, &model.Error{Code: model.Code(res.resp.Code), Msg: res.resp.Msg}
			}
			return res.resp, res.err
		default:
		}
		return nil, ErrClosed
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// detach keeps a streamed call registered after its caller gave up, so a
// late ready response is still followed by consuming the stream.
func (c *Client) detach(id string) {
	c.mu.Lock()
	if cl := c.pending[id]; cl != nil {
		cl.detached = true
	}
	c.mu.Unlock()
}

func (cl *call) done() {
	if cl.release != nil {
		cl.release()
	}
}

// consume runs a streamed call's stream and writes the transfer_ack.
func (c *Client) consume(cl *call, detached bool, resp *pb.Response) error {
	defer cl.done()
	if detached {
		if resp.File == nil {
			return fmt.Errorf("%w: ready response without file info", protocol.ErrProtocol)
		}
		if _, err := protocol.RecvStream(c.conn, io.Discard, resp.File.Size); err != nil {
			return err
		}
		c.logger.Debug("discarded abandoned download", "file", resp.File.Name)
		return c.send(&pb.Message{TransferAck: &pb.TransferAck{Error: "download abandoned"}})
	}
	ack, err := cl.stream(c.conn, resp)
	if err != nil {
		return err
	}
	if err := c.send(&pb.Message{TransferAck: ack}); err != nil {
		return fmt.Errorf("client: send transfer ack: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		msg, err := protocol.ReadMessage(c.conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.logger.Debug("lobby connection closed")
			} else {
				c.logger.Warn("lobby read error", "err", err)
			}
			return
		}

		if msg.IsEvent() {
			select {
			case c.events <- msg:
			default:
				c.logger.Warn("event queue full, dropping event")
			}
			continue
		}
		if msg.Response == nil {
			c.logger.Debug("ignoring unexpected frame", "req_id", msg.ReqID)
			continue
		}

		c.mu.Lock()
		cl := c.pending[msg.ReqID]
		delete(c.pending, msg.ReqID)
		detached := cl != nil && cl.detached
		c.mu.Unlock()
		if cl == nil {
			c.logger.Debug("dropping late response", "req_id", msg.ReqID)
			continue
		}

		if cl.stream != nil && msg.Response.OK() {
			if err := c.consume(cl, detached, msg.Response); err != nil {
				// a partly consumed stream leaves the connection unusable
				cl.ch <- result{resp: msg.Response, err: err}
				return
			}
		}
		cl.done()
		cl.ch <- result{resp: msg.Response}
	}
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		abandoned := c.pending
		c.pending = make(map[string]*call)
		c.mu.Unlock()
		for _, cl := range abandoned {
			cl.done()
		}
		_ = c.conn.Close()
		close(c.done)
		close(c.events)
	})
}
