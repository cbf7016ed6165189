// Package gateway is the lobby's client for the account service.
//
// Every call dials a fresh connection, sends one framed request and reads
// one framed reply under a bounded timeout. A non-OK reply is returned as
// *Error and is authoritative; transport failures wrap ErrUnavailable.
// Nothing is retried.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// DefaultTimeout bounds a single call when the caller passes zero.
const DefaultTimeout = 3 * time.Second

// ErrUnavailable is wrapped by every dial, I/O or timeout failure.
var ErrUnavailable = errors.New("gateway: account service unavailable")

// Error is a refusal returned by the account service.
type Error struct {
	Op   string
	Code string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: %s refused: %s: %s", e.Op, e.Code, e.Msg)
}

// AppError converts the refusal into an application error with the
// service's code.
func (e *Error) AppError() *model.Error {
	return &model.Error{Code: model.Code(e.Code), Msg: e.Msg}
}

// Client calls the account service at a fixed address.
type Client struct {
	addr    string
	timeout time.Duration
	dialer  net.Dialer
}

// New creates a client for addr. timeout <= 0 selects DefaultTimeout.
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{addr: addr, timeout: timeout}
}

// Addr returns the account service address.
func (c *Client) Addr() string { return c.addr }

func (c *Client) call(ctx context.Context, op string, call *pb.AccountCall) (*pb.AccountReply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := protocol.Write(conn, call); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	var reply pb.AccountReply
	if err := protocol.Read(conn, &reply); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	if reply.Status != pb.StatusOK {
		return &reply, &Error{Op: op, Code: reply.Code, Msg: reply.Msg}
	}
	return &reply, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "register", &pb.AccountCall{Register: &pb.Credentials{Username: username, Password: password}})
	return err
}

// Login verifies credentials and marks the user online.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, "login", &pb.AccountCall{Login: &pb.Credentials{Username: username, Password: password}})
	return err
}

// Logout marks the user offline.
func (c *Client) Logout(ctx context.Context, username string) error {
	_, err := c.call(ctx, "logout", &pb.AccountCall{Logout: &pb.UserRef{Username: username}})
	return err
}

// WhoOnline lists users the account service considers online.
func (c *Client) WhoOnline(ctx context.Context) ([]string, error) {
	reply, err := c.call(ctx, "who_online", &pb.AccountCall{WhoOnline: &pb.Empty{}})
	if err != nil {
		return nil, err
	}
	return reply.Users, nil
}

// CreateRoom persists a new room record.
func (c *Client) CreateRoom(ctx context.Context, room pb.RoomRecord) error {
	_, err := c.call(ctx, "create_room", &pb.AccountCall{CreateRoom: &room})
	return err
}

// CloseRoom marks a room as playing.
func (c *Client) CloseRoom(ctx context.Context, id string) error {
	_, err := c.call(ctx, "close_room", &pb.AccountCall{CloseRoom: &pb.RoomRef{ID: id}})
	return err
}

// OpenRoom marks a room as open again.
func (c *Client) OpenRoom(ctx context.Context, id string) error {
	_, err := c.call(ctx, "open_room", &pb.AccountCall{OpenRoom: &pb.RoomRef{ID: id}})
	return err
}

// DeleteRoom removes a room record.
func (c *Client) DeleteRoom(ctx context.Context, id string) error {
	_, err := c.call(ctx, "delete_room", &pb.AccountCall{DeleteRoom: &pb.RoomRef{ID: id}})
	return err
}

// ListRooms returns every persisted room record.
func (c *Client) ListRooms(ctx context.Context) ([]pb.RoomRecord, error) {
	reply, err := c.call(ctx, "list_rooms", &pb.AccountCall{ListRooms: &pb.Empty{}})
	if err != nil {
		return nil, err
	}
	return reply.Rooms, nil
}

// ResetRuntime clears the online set and room records left by a previous
// lobby run.
func (c *Client) ResetRuntime(ctx context.Context) error {
	_, err := c.call(ctx, "reset_runtime", &pb.AccountCall{ResetRuntime: &pb.Empty{}})
	return err
}

// ListGames returns the game catalog.
func (c *Client) ListGames(ctx context.Context) ([]pb.GameInfo, error) {
	reply, err := c.call(ctx, "list_games", &pb.AccountCall{ListGames: &pb.Empty{}})
	if err != nil {
		return nil, err
	}
	return reply.Games, nil
}

// RecordDownload counts a completed download.
func (c *Client) RecordDownload(ctx context.Context, username, game string) error {
	_, err := c.call(ctx, "record_download", &pb.AccountCall{RecordDownload: &pb.DownloadRecord{Username: username, Game: game}})
	return err
}

// MyDownloads lists the games a user downloaded, most recent first.
func (c *Client) MyDownloads(ctx context.Context, username string) ([]pb.DownloadInfo, error) {
	reply, err := c.call(ctx, "my_downloads", &pb.AccountCall{MyDownloads: &pb.UserRef{Username: username}})
	if err != nil {
		return nil, err
	}
	return reply.Downloads, nil
}

// RateGame stores a rating. The service refuses users who never downloaded
// the game.
func (c *Client) RateGame(ctx context.Context, username, game string, score int, comment string) error {
	_, err := c.call(ctx, "rate_game", &pb.AccountCall{RateGame: &pb.RatingRecord{
		Username: username,
		Game:     game,
		Score:    score,
		Comment:  comment,
	}})
	return err
}

// ListRatings returns all ratings for a game.
func (c *Client) ListRatings(ctx context.Context, game string) ([]pb.RatingInfo, error) {
	reply, err := c.call(ctx, "list_ratings", &pb.AccountCall{ListRatings: &pb.GameRef{Game: game}})
	if err != nil {
		return nil, err
	}
	return reply.Ratings, nil
}
