package pb

// AccountCall is a single request from the lobby to the account service.
// Only one field should be set.
type AccountCall struct {
	Register       *Credentials    `json:"register,omitempty"`
	Login          *Credentials    `json:"login,omitempty"`
	Logout         *UserRef        `json:"logout,omitempty"`
	WhoOnline      *Empty          `json:"who_online,omitempty"`
	CreateRoom     *RoomRecord     `json:"create_room,omitempty"`
	CloseRoom      *RoomRef        `json:"close_room,omitempty"`
	OpenRoom       *RoomRef        `json:"open_room,omitempty"`
	DeleteRoom     *RoomRef        `json:"delete_room,omitempty"`
	ListRooms      *Empty          `json:"list_rooms,omitempty"`
	ResetRuntime   *Empty          `json:"reset_runtime,omitempty"`
	ListGames      *Empty          `json:"list_games,omitempty"`
	RecordDownload *DownloadRecord `json:"record_download,omitempty"`
	MyDownloads    *UserRef        `json:"my_downloads,omitempty"`
	RateGame       *RatingRecord   `json:"rate_game,omitempty"`
	ListRatings    *GameRef        `json:"list_ratings,omitempty"`
}

// AccountReply answers an AccountCall.
type AccountReply struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
	Msg    string `json:"msg,omitempty"`

	Users     []string       `json:"users,omitempty"`
	Rooms     []RoomRecord   `json:"rooms,omitempty"`
	Games     []GameInfo     `json:"games,omitempty"`
	Ratings   []RatingInfo   `json:"ratings,omitempty"`
	Downloads []DownloadInfo `json:"downloads,omitempty"`
}

type Empty struct{}

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type UserRef struct {
	Username string `json:"username"`
}

type RoomRef struct {
	ID string `json:"id"`
}

type RoomRecord struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Public bool   `json:"public"`
	Open   bool   `json:"open"`
}

type GameRef struct {
	Game string `json:"game"`
}

type DownloadRecord struct {
	Username string `json:"username"`
	Game     string `json:"game"`
}

type RatingRecord struct {
	Username string `json:"username"`
	Game     string `json:"game"`
	Score    int    `json:"score"`
	Comment  string `json:"comment,omitempty"`
}
