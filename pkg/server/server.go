// Package server implements the match lobby.
//
// One goroutine serves each client connection. Sessions, rooms and invite
// mailboxes share one coordination lock (Server.mu); code holding it never
// performs I/O. Operations compute the frames other sessions must receive
// while locked and write them after unlocking.
package server

import (
	"context"
	"log/slog"
	"net"
	"sync"

	"github.com/NicolasHaas/matchlobby/pkg/gateway"
	"github.com/NicolasHaas/matchlobby/pkg/match"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

// Accounts is the account service as the lobby uses it. *gateway.Client
// implements it; refusals are *gateway.Error and transport failures wrap
// gateway.ErrUnavailable.
type Accounts interface {
	Register(ctx context.Context, username, password string) error
	Login(ctx context.Context, username, password string) error
	Logout(ctx context.Context, username string) error
	CreateRoom(ctx context.Context, room pb.RoomRecord) error
	CloseRoom(ctx context.Context, id string) error
	OpenRoom(ctx context.Context, id string) error
	DeleteRoom(ctx context.Context, id string) error
	ListRooms(ctx context.Context) ([]pb.RoomRecord, error)
	ResetRuntime(ctx context.Context) error
	ListGames(ctx context.Context) ([]pb.GameInfo, error)
	RecordDownload(ctx context.Context, username, game string) error
	MyDownloads(ctx context.Context, username string) ([]pb.DownloadInfo, error)
	RateGame(ctx context.Context, username, game string, score int, comment string) error
	ListRatings(ctx context.Context, game string) ([]pb.RatingInfo, error)
}

var _ Accounts = (*gateway.Client)(nil)

// Dependencies holds external dependencies for the server.
type Dependencies struct {
	Accounts Accounts          // required
	Matches  *match.Supervisor // built from Config when nil
	Logger   *slog.Logger      // slog.Default() when nil
}

// Server is the lobby.
type Server struct {
	cfg      Config
	accounts Accounts
	matches  *match.Supervisor
	metrics  *Metrics
	logger   *slog.Logger

	mu       sync.Mutex // coordination lock
	sessions *SessionRegistry
	rooms    map[string]*room
	active   map[*Session]struct{} // every open connection, logged in or not
	listener net.Listener

	conns        sync.WaitGroup
	shutdownOnce sync.Once
	ctx          context.Context
	cancel       context.CancelFunc
}

// New creates a new Server instance.
func New(cfg Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	matches := deps.Matches
	if matches == nil {
		matches = match.NewSupervisor(cfg.matchConfig(), logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		accounts: deps.Accounts,
		matches:  matches,
		metrics:  NewMetrics(),
		logger:   logger,
		sessions: NewSessionRegistry(),
		rooms:    make(map[string]*room),
		active:   make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Metrics returns the server metrics.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Online returns the logged-in usernames, sorted.
func (s *Server) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions.Usernames()
}

// RoomCount returns the number of live rooms.
func (s *Server) RoomCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
