// Package pb defines the JSON message bodies exchanged between lobby
// clients, the lobby, and match endpoints.
package pb

import "errors"

// Response status values.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Message wraps every frame sent on a lobby connection.
type Message struct {
	// ReqID correlates a Response with the request that produced it.
	// Push events carry no ReqID.
	ReqID string `json:"req_id,omitempty"`

	// Requests. Only one of these fields should be set.
	Register     *Register     `json:"register,omitempty"`
	Login        *Login        `json:"login,omitempty"`
	Logout       *Logout       `json:"logout,omitempty"`
	WhoOnline    *WhoOnline    `json:"who_online,omitempty"`
	CreateRoom   *CreateRoom   `json:"create_room,omitempty"`
	ListRooms    *ListRooms    `json:"list_rooms,omitempty"`
	JoinRoom     *JoinRoom     `json:"join_room,omitempty"`
	LeaveRoom    *LeaveRoom    `json:"leave_room,omitempty"`
	StartGame    *StartGame    `json:"start_game,omitempty"`
	Invite       *Invite       `json:"invite,omitempty"`
	PullNotices  *PullNotices  `json:"pull_notices,omitempty"`
	AcceptInvite *AcceptInvite `json:"accept_invite,omitempty"`
	ListGames    *ListGames    `json:"list_games,omitempty"`
	DownloadGame *DownloadGame `json:"download_game,omitempty"`
	MyDownloads  *MyDownloads  `json:"my_downloads,omitempty"`
	RateGame     *RateGame     `json:"rate_game,omitempty"`
	ListRatings  *ListRatings  `json:"list_ratings,omitempty"`
	Ping         *Ping         `json:"ping,omitempty"`
	Quit         *Quit         `json:"quit,omitempty"`

	// Bulk transfer completion, sent by the receiving side.
	TransferAck *TransferAck `json:"transfer_ack,omitempty"`

	Response *Response `json:"response,omitempty"`

	// Push events.
	RoomStatus   *RoomStatus   `json:"room_status,omitempty"`
	GameStarted  *GameStarted  `json:"game_started,omitempty"`
	GameFinished *GameFinished `json:"game_finished,omitempty"`

	// Match endpoint control.
	ForceStop   *ForceStop   `json:"force_stop,omitempty"`
	MatchResult *MatchResult `json:"match_result,omitempty"`
}

// ----- Requests -----

// Request is the closed set of client requests a lobby accepts.
type Request interface {
	isRequest()
}

type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Logout struct{}

type WhoOnline struct{}

type CreateRoom struct {
	Public bool `json:"public"`
}

type ListRooms struct{}

type JoinRoom struct {
	RoomID string `json:"room_id"`
}

type LeaveRoom struct {
	RoomID string `json:"room_id"`
}

type StartGame struct {
	RoomID string `json:"room_id"`
	Game   string `json:"game,omitempty"`
}

type Invite struct {
	Target string `json:"target"`
}

type PullNotices struct{}

type AcceptInvite struct {
	RoomID string `json:"room_id"`
}

type ListGames struct{}

type DownloadGame struct {
	Game string `json:"game"`
}

type MyDownloads struct{}

type RateGame struct {
	Game    string `json:"game"`
	Score   int    `json:"score"`
	Comment string `json:"comment,omitempty"`
}

type ListRatings struct {
	Game string `json:"game"`
}

type Ping struct {
	Timestamp int64 `json:"timestamp"`
}

type Quit struct{}

func (*Register) isRequest()     {}
func (*Login) isRequest()        {}
func (*Logout) isRequest()       {}
func (*WhoOnline) isRequest()    {}
func (*CreateRoom) isRequest()   {}
func (*ListRooms) isRequest()    {}
func (*JoinRoom) isRequest()     {}
func (*LeaveRoom) isRequest()    {}
func (*StartGame) isRequest()    {}
func (*Invite) isRequest()       {}
func (*PullNotices) isRequest()  {}
func (*AcceptInvite) isRequest() {}
func (*ListGames) isRequest()    {}
func (*DownloadGame) isRequest() {}
func (*MyDownloads) isRequest()  {}
func (*RateGame) isRequest()     {}
func (*ListRatings) isRequest()  {}
func (*Ping) isRequest()         {}
func (*Quit) isRequest()         {}

var (
	ErrNoRequest        = errors.New("pb: message carries no request")
	ErrMultipleRequests = errors.New("pb: message carries more than one request")
)

// Request returns the single request carried by m.
func (m *Message) Request() (Request, error) {
	var found []Request
	add := func(set bool, r Request) {
		if set {
			found = append(found, r)
		}
	}
	add(m.Register != nil, m.Register)
	add(m.Login != nil, m.Login)
	add(m.Logout != nil, m.Logout)
	add(m.WhoOnline != nil, m.WhoOnline)
	add(m.CreateRoom != nil, m.CreateRoom)
	add(m.ListRooms != nil, m.ListRooms)
	add(m.JoinRoom != nil, m.JoinRoom)
	add(m.LeaveRoom != nil, m.LeaveRoom)
	add(m.StartGame != nil, m.StartGame)
	add(m.Invite != nil, m.Invite)
	add(m.PullNotices != nil, m.PullNotices)
	add(m.AcceptInvite != nil, m.AcceptInvite)
	add(m.ListGames != nil, m.ListGames)
	add(m.DownloadGame != nil, m.DownloadGame)
	add(m.MyDownloads != nil, m.MyDownloads)
	add(m.RateGame != nil, m.RateGame)
	add(m.ListRatings != nil, m.ListRatings)
	add(m.Ping != nil, m.Ping)
	add(m.Quit != nil, m.Quit)

	switch len(found) {
	case 0:
		return nil, ErrNoRequest
	case 1:
		return found[0], nil
	default:
		return nil, ErrMultipleRequests
	}
}

// NewRequest wraps a request in a Message.
func NewRequest(reqID string, req Request) *Message {
	m := &Message{ReqID: reqID}
	switch r := req.(type) {
	case *Register:
		m.Register = r
	case *Login:
		m.Login = r
	case *Logout:
		m.Logout = r
	case *WhoOnline:
		m.WhoOnline = r
	case *CreateRoom:
		m.CreateRoom = r
	case *ListRooms:
		m.ListRooms = r
	case *JoinRoom:
		m.JoinRoom = r
	case *LeaveRoom:
		m.LeaveRoom = r
	case *StartGame:
		m.StartGame = r
	case *Invite:
		m.Invite = r
	case *PullNotices:
		m.PullNotices = r
	case *AcceptInvite:
		m.AcceptInvite = r
	case *ListGames:
		m.ListGames = r
	case *DownloadGame:
		m.DownloadGame = r
	case *MyDownloads:
		m.MyDownloads = r
	case *RateGame:
		m.RateGame = r
	case *ListRatings:
		m.ListRatings = r
	case *Ping:
		m.Ping = r
	case *Quit:
		m.Quit = r
	}
	return m
}

// ----- Responses -----

// Response answers exactly one request.
type Response struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Msg    string `json:"msg,omitempty"`

	Username  string         `json:"username,omitempty"`
	Room      *RoomInfo      `json:"room,omitempty"`
	Rooms     []RoomInfo     `json:"rooms,omitempty"`
	Game      *Endpoint      `json:"game,omitempty"`
	Notices   []InviteInfo   `json:"notices,omitempty"`
	Users     []string       `json:"users,omitempty"`
	Games     []GameInfo     `json:"games,omitempty"`
	Ratings   []RatingInfo   `json:"ratings,omitempty"`
	Downloads []DownloadInfo `json:"downloads,omitempty"`
	File      *FileInfo      `json:"file,omitempty"`
}

// OK reports whether the response carries StatusOK.
func (r *Response) OK() bool {
	return r != nil && r.Status == StatusOK
}

type RoomInfo struct {
	ID      string   `json:"id"`
	Owner   string   `json:"owner"`
	Public  bool     `json:"public"`
	State   string   `json:"state"`
	Members []string `json:"members"`
}

// Endpoint is the advertised address of a running match.
type Endpoint struct {
	Room string `json:"room"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

type InviteInfo struct {
	From      string `json:"from"`
	RoomID    string `json:"room_id"`
	CreatedAt int64  `json:"created_at"` // unix seconds
}

type GameInfo struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Version     string  `json:"version,omitempty"`
	Downloads   int64   `json:"downloads"`
	AvgScore    float64 `json:"avg_score"`
}

type RatingInfo struct {
	Game     string `json:"game"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	Comment  string `json:"comment,omitempty"`
}

// DownloadInfo is one game a user downloaded.
type DownloadInfo struct {
	Game    string `json:"game"`
	Version string `json:"version,omitempty"`
	Count   int64  `json:"count"`
	LastAt  int64  `json:"last_at"` // unix seconds
}

type FileInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

type TransferAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ----- Events -----

type RoomStatus struct {
	Room RoomInfo `json:"room"`
}

type GameStarted struct {
	Room string `json:"room"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

type GameFinished struct {
	Room   string `json:"room"`
	Reason string `json:"reason"`
	Winner string `json:"winner,omitempty"`
}

// IsEvent reports whether m is an unsolicited push event.
func (m *Message) IsEvent() bool {
	return m.RoomStatus != nil || m.GameStarted != nil || m.GameFinished != nil
}

// ----- Match control -----

type ForceStop struct {
	Reason string `json:"reason,omitempty"`
}

type MatchResult struct {
	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}
