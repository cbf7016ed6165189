package accountd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/NicolasHaas/matchlobby/pkg/crypto"
	"github.com/NicolasHaas/matchlobby/pkg/datastore"
	"github.com/NicolasHaas/matchlobby/pkg/model"
	pb "github.com/NicolasHaas/matchlobby/pkg/protocol/pb"
)

func ok() *pb.AccountReply {
	return &pb.AccountReply{Status: pb.StatusOK}
}

func fail(code model.Code, msg string) *pb.AccountReply {
	return &pb.AccountReply{Status: pb.StatusError, Code: string(code), Msg: msg}
}

func internal(op string, err error) *pb.AccountReply {
	slog.Error("account call failed", "op", op, "err", err)
	return fail(model.CodeInternal, "internal error")
}

// dispatch routes one call to its handler.
func (s *Server) dispatch(ctx context.Context, call *pb.AccountCall) *pb.AccountReply {
	switch {
	case call.Register != nil:
		return s.handleRegister(call.Register)
	case call.Login != nil:
		return s.handleLogin(call.Login)
	case call.Logout != nil:
		s.setOffline(call.Logout.Username)
		return ok()
	case call.WhoOnline != nil:
		reply := ok()
		reply.Users = s.Online()
		return reply
	case call.CreateRoom != nil:
		return s.handleCreateRoom(call.CreateRoom)
	case call.CloseRoom != nil:
		return s.handleSetRoomOpen(call.CloseRoom.ID, false)
	case call.OpenRoom != nil:
		return s.handleSetRoomOpen(call.OpenRoom.ID, true)
	case call.DeleteRoom != nil:
		if err := s.store.NonTx().DeleteRoom(call.DeleteRoom.ID); err != nil {
			return internal("delete_room", err)
		}
		return ok()
	case call.ListRooms != nil:
		return s.handleListRooms()
	case call.ResetRuntime != nil:
		return s.handleResetRuntime()
	case call.ListGames != nil:
		return s.handleListGames()
	case call.RecordDownload != nil:
		return s.handleRecordDownload(call.RecordDownload)
	case call.MyDownloads != nil:
		return s.handleMyDownloads(call.MyDownloads.Username)
	case call.RateGame != nil:
		return s.handleRateGame(ctx, call.RateGame)
	case call.ListRatings != nil:
		return s.handleListRatings(call.ListRatings.Game)
	default:
		return fail(model.CodeBadRequest, "unknown call")
	}
}

func (s *Server) handleRegister(req *pb.Credentials) *pb.AccountReply {
	if err := model.ValidateUsername(req.Username); err != nil {
		return fail(model.CodeBadRequest, err.Error())
	}
	if err := model.ValidatePassword(req.Password); err != nil {
		return fail(model.CodeBadRequest, err.Error())
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return internal("register", err)
	}
	if _, err := s.store.NonTx().CreateUser(req.Username, crypto.HashPassword(req.Password, salt), salt); err != nil {
		if errors.Is(err, datastore.ErrDuplicate) {
			return fail(model.CodeUserExists, "username already taken")
		}
		return internal("register", err)
	}
	slog.Info("user registered", "user", req.Username)
	return ok()
}

func (s *Server) handleLogin(req *pb.Credentials) *pb.AccountReply {
	user, err := s.store.NonTx().GetUserByUsername(req.Username)
	if err != nil {
		return internal("login", err)
	}
	if user == nil || !crypto.VerifyPassword(req.Password, user.Salt, user.PasswordHash) {
		return fail(model.CodeBadCredentials, "invalid username or password")
	}
	s.setOnline(user.Username)
	return ok()
}

func (s *Server) handleCreateRoom(req *pb.RoomRecord) *pb.AccountReply {
	err := s.store.NonTx().CreateRoom(&model.RoomRecord{
		ID:     req.ID,
		Owner:  req.Owner,
		Public: req.Public,
		Open:   req.Open,
	})
	if errors.Is(err, datastore.ErrDuplicate) {
		return fail(model.CodePersistenceRejected, "room id already exists")
	}
	if err != nil {
		return internal("create_room", err)
	}
	return ok()
}

func (s *Server) handleSetRoomOpen(id string, open bool) *pb.AccountReply {
	err := s.store.NonTx().SetRoomOpen(id, open)
	if errors.Is(err, datastore.ErrNotFound) {
		return fail(model.CodeNoSuchRoom, "room not found")
	}
	if err != nil {
		return internal("set_room_open", err)
	}
	return ok()
}

func (s *Server) handleListRooms() *pb.AccountReply {
	rooms, err := s.store.NonTx().ListRooms()
	if err != nil {
		return internal("list_rooms", err)
	}
	reply := ok()
	for _, r := range rooms {
		reply.Rooms = append(reply.Rooms, pb.RoomRecord{ID: r.ID, Owner: r.Owner, Public: r.Public, Open: r.Open})
	}
	return reply
}

func (s *Server) handleResetRuntime() *pb.AccountReply {
	users := s.resetOnline()
	rooms, err := s.store.NonTx().DeleteAllRooms()
	if err != nil {
		return internal("reset_runtime", err)
	}
	slog.Info("runtime state reset", "online_cleared", users, "rooms_cleared", rooms)
	return ok()
}

func (s *Server) handleListGames() *pb.AccountReply {
	games, err := s.store.NonTx().ListGames()
	if err != nil {
		return internal("list_games", err)
	}
	reply := ok()
	for _, g := range games {
		reply.Games = append(reply.Games, pb.GameInfo{
			Name:        g.Name,
			Description: g.Description,
			Version:     g.Version,
			Downloads:   g.Downloads,
			AvgScore:    g.AvgScore,
		})
	}
	return reply
}

// lookupUserGame resolves the user and game a download or rating refers to.
func lookupUserGame(st datastore.DataStore, username, game string) (*model.User, *model.Game, *pb.AccountReply) {
	user, err := st.GetUserByUsername(username)
	if err != nil {
		return nil, nil, internal("lookup user", err)
	}
	if user == nil {
		return nil, nil, fail(model.CodeBadRequest, "unknown user")
	}
	g, err := st.GetGame(game)
	if err != nil {
		return nil, nil, internal("lookup game", err)
	}
	if g == nil {
		return nil, nil, fail(model.CodeNoSuchGame, "game not found")
	}
	return user, g, nil
}

func (s *Server) handleRecordDownload(req *pb.DownloadRecord) *pb.AccountReply {
	st := s.store.NonTx()
	user, game, reply := lookupUserGame(st, req.Username, req.Game)
	if reply != nil {
		return reply
	}
	if err := st.RecordDownload(user.ID, game.ID); err != nil {
		return internal("record_download", err)
	}
	return ok()
}

func (s *Server) handleMyDownloads(username string) *pb.AccountReply {
	downloads, err := s.store.NonTx().ListDownloads(username)
	if err != nil {
		return internal("my_downloads", err)
	}
	reply := ok()
	for _, d := range downloads {
		reply.Downloads = append(reply.Downloads, pb.DownloadInfo{
			Game:    d.Game,
			Version: d.Version,
			Count:   d.Count,
			LastAt:  d.LastAt.Unix(),
		})
	}
	return reply
}

func (s *Server) handleRateGame(ctx context.Context, req *pb.RatingRecord) *pb.AccountReply {
	r := model.Rating{Score: req.Score, Comment: req.Comment}
	if err := r.Validate(); err != nil {
		return fail(model.CodeInvalidScore, err.Error())
	}

	tx, err := s.store.Tx(ctx)
	if err != nil {
		return internal("rate_game", err)
	}
	defer func() { _ = tx.Rollback() }()

	user, game, reply := lookupUserGame(tx, req.Username, req.Game)
	if reply != nil {
		return reply
	}
	downloaded, err := tx.HasDownloaded(user.ID, game.ID)
	if err != nil {
		return internal("rate_game", err)
	}
	if !downloaded {
		return fail(model.CodeNotDownloaded, "download the game before rating it")
	}
	if err := tx.UpsertRating(user.ID, game.ID, req.Score, req.Comment); err != nil {
		return internal("rate_game", err)
	}
	if err := tx.Commit(); err != nil {
		return internal("rate_game", err)
	}
	return ok()
}

func (s *Server) handleListRatings(game string) *pb.AccountReply {
	ratings, err := s.store.NonTx().ListRatings(game)
	if err != nil {
		return internal("list_ratings", err)
	}
	reply := ok()
	for _, r := range ratings {
		reply.Ratings = append(reply.Ratings, pb.RatingInfo{
			Game:     r.Game,
			Username: r.Username,
			Score:    r.Score,
			Comment:  r.Comment,
		})
	}
	return reply
}
