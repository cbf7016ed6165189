package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/NicolasHaas/matchlobby/pkg/model"
	"github.com/NicolasHaas/matchlobby/pkg/protocol"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, password string) error {
	_, err := c.Do(ctx, &pb.Register{Username: username, Password: password})
	return err
}

// Login binds this connection to username.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.Do(ctx, &pb.Login{Username: username, Password: password})
	return err
}

// Logout leaves the current room and ends the login; the connection stays
// open.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, &pb.Logout{})
	return err
}

// WhoOnline lists logged-in users.
func (c *Client) WhoOnline(ctx context.Context) ([]string, error) {
	resp, err := c.Do(ctx, &pb.WhoOnline{})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// CreateRoom creates a room owned by the caller.
func (c *Client) CreateRoom(ctx context.Context, public bool) (pb.RoomInfo, error) {
	resp, err := c.Do(ctx, &pb.CreateRoom{Public: public})
	if err != nil {
		return pb.RoomInfo{}, err
	}
	return roomOf(resp)
}

// ListRooms lists public rooms.
func (c *Client) ListRooms(ctx context.Context) ([]pb.RoomInfo, error) {
	resp, err := c.Do(ctx, &pb.ListRooms{})
	if err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// JoinRoom joins a public room.
func (c *Client) JoinRoom(ctx context.Context, roomID string) (pb.RoomInfo, error) {
	resp, err := c.Do(ctx, &pb.JoinRoom{RoomID: roomID})
	if err != nil {
		return pb.RoomInfo{}, err
	}
	return roomOf(resp)
}

// LeaveRoom leaves roomID, or the current room when roomID is empty.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	_, err := c.Do(ctx, &pb.LeaveRoom{RoomID: roomID})
	return err
}

// StartGame starts a match in a room the caller owns.
func (c *Client) StartGame(ctx context.Context, roomID, game string) (*pb.Endpoint, error) {
	resp, err := c.Do(ctx, &pb.StartGame{RoomID: roomID, Game: game})
	if err != nil {
		return nil, err
	}
	if resp.Game == nil {
		return nil, fmt.Errorf("client: start_game response without endpoint")
	}
	return resp.Game, nil
}

// Invite invites target to the caller's current room.
func (c *Client) Invite(ctx context.Context, target string) error {
	_, err := c.Do(ctx, &pb.Invite{Target: target})
	return err
}

// PullNotices drains the caller's invite mailbox.
func (c *Client) PullNotices(ctx context.Context) ([]pb.InviteInfo, error) {
	resp, err := c.Do(ctx, &pb.PullNotices{})
	if err != nil {
		return nil, err
	}
	return resp.Notices, nil
}

// AcceptInvite joins the room an invitation names.
func (c *Client) AcceptInvite(ctx context.Context, roomID string) (pb.RoomInfo, error) {
	resp, err := c.Do(ctx, &pb.AcceptInvite{RoomID: roomID})
	if err != nil {
		return pb.RoomInfo{}, err
	}
	return roomOf(resp)
}

// ListGames returns the game catalog.
func (c *Client) ListGames(ctx context.Context) ([]pb.GameInfo, error) {
	resp, err := c.Do(ctx, &pb.ListGames{})
	if err != nil {
		return nil, err
	}
	return resp.Games, nil
}

// DownloadGame fetches a game's package into dir. The reader goroutine
// writes the file and the transfer_ack; other requests wait until the ack is
// out. A file that arrived intact but could not be saved is reported to the
// lobby as a failed transfer. If ctx ends first the stream is still drained
// so the connection stays usable.
func (c *Client) DownloadGame(ctx context.Context, game, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("client: prepare download dir: %w", err)
	}

	var path string
	var saveErr error
	stream := func(r io.Reader, resp *pb.Response) (*pb.TransferAck, error) {
		if resp.File == nil {
			return nil, fmt.Errorf("%w: ready response without file info", protocol.ErrProtocol)
		}
		name := filepath.Base(resp.File.Name)
		if name == "." || name == ".." || name == string(filepath.Separator) {
			return nil, fmt.Errorf("%w: bad file name %q", protocol.ErrProtocol, resp.File.Name)
		}
		path = filepath.Join(dir, name)
		n, err := protocol.RecvFile(r, path, resp.File.Size)
		if err != nil && n > 0 && n == resp.File.Size && !errors.Is(err, protocol.ErrProtocol) {
			// every byte was read, so the connection is still framed
			saveErr = err
			return &pb.TransferAck{Success: false, Error: err.Error()}, nil
		}
		if err != nil {
			return nil, err
		}
		return &pb.TransferAck{Success: true}, nil
	}

	if _, err := c.do(ctx, &pb.DownloadGame{Game: game}, stream, c.opts.TransferTimeout); err != nil {
		return "", err
	}
	if saveErr != nil {
		return "", model.Errorf(model.CodeTransferFailed, "save %s: %v", path, saveErr)
	}
	return path, nil
}

// RateGame rates a downloaded game.
func (c *Client) RateGame(ctx context.Context, game string, score int, comment string) error {
	_, err := c.Do(ctx, &pb.RateGame{Game: game, Score: score, Comment: comment})
	return err
}

// MyDownloads lists the games this user downloaded, most recent first.
func (c *Client) MyDownloads(ctx context.Context) ([]pb.DownloadInfo, error) {
	resp, err := c.Do(ctx, &pb.MyDownloads{})
	if err != nil {
		return nil, err
	}
	return resp.Downloads, nil
}

// ListRatings returns every rating for a game.
func (c *Client) ListRatings(ctx context.Context, game string) ([]pb.RatingInfo, error) {
	resp, err := c.Do(ctx, &pb.ListRatings{Game: game})
	if err != nil {
		return nil, err
	}
	return resp.Ratings, nil
}

// Ping checks the lobby is answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Do(ctx, &pb.Ping{})
	return err
}

// Quit ends the session and closes the connection.
func (c *Client) Quit(ctx context.Context) error {
	_, err := c.Do(ctx, &pb.Quit{})
	cerr := c.Close()
	if err != nil && !errors.Is(err, ErrClosed) {
		return err
	}
	if cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		return cerr
	}
	return nil
}

// WaitEvent returns the next push event for which match reports true,
// discarding others.
func (c *Client) WaitEvent(ctx context.Context, match func(*pb.Message) bool) (*pb.Message, error) {
	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				return nil, ErrClosed
			}
			if match == nil || match(ev) {
				return ev, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		}
	}
}

func roomOf(resp *pb.Response) (pb.RoomInfo, error) {
	if resp.Room == nil {
		return pb.RoomInfo{}, fmt.Errorf("client: response without room")
	}
	return *resp.Room, nil
}
