package datastore

import (
	"context"
	"errors"

	"github.com/NicolasHaas/matchlobby/pkg/model"
)

var (
	// ErrDuplicate is returned when an insert violates a uniqueness constraint.
	ErrDuplicate = errors.New("datastore: duplicate")
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("datastore: not found")
)

type DataProviderFactory interface {
	NonTx() DataStore
	Tx(context.Context) (DataStoreTx, error)
	Close() error
}

type DataStoreTx interface {
	DataStore
	Rollback() error
	Commit() error
}

// DataStore defines the persistence interface for accounts, rooms and the
// game catalog. Lookups return (nil, nil) when nothing matches.
type DataStore interface {
	UserReadProvider
	UserWriteProvider

	RoomReadProvider
	RoomWriteProvider

	GameReadProvider
	GameWriteProvider

	RatingReadProvider
	RatingWriteProvider
}

// Compile-time check: *ProviderFactory implements DataProviderFactory.
var _ DataProviderFactory = (*ProviderFactory)(nil)

type UserReadProvider interface {
	GetUserByUsername(username string) (*model.User, error)
	ListUsers() ([]model.User, error)
}

type UserWriteProvider interface {
	CreateUser(username string, passwordHash, salt []byte) (*model.User, error)
}

type RoomReadProvider interface {
	GetRoom(id string) (*model.RoomRecord, error)
	ListRooms() ([]model.RoomRecord, error)
}

type RoomWriteProvider interface {
	CreateRoom(room *model.RoomRecord) error
	SetRoomOpen(id string, open bool) error
	DeleteRoom(id string) error
	DeleteAllRooms() (int64, error)
}

type GameReadProvider interface {
	GetGame(name string) (*model.Game, error)
	ListGames() ([]model.Game, error)
	HasDownloaded(userID, gameID int64) (bool, error)
	ListDownloads(username string) ([]model.Download, error)
}

type GameWriteProvider interface {
	UpsertGame(game *model.Game) error
	RecordDownload(userID, gameID int64) error
}

type RatingReadProvider interface {
	ListRatings(game string) ([]model.Rating, error)
}

type RatingWriteProvider interface {
	UpsertRating(userID, gameID int64, score int, comment string) error
}
