package datastore_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/NicolasHaas/matchlobby/pkg/crypto"
	"github.com/NicolasHaas/matchlobby/pkg/datastore"
	"github.com/NicolasHaas/matchlobby/pkg/model"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func NewTestSqlConn(t *testing.T) (*datastore.ProviderFactory, error) {
	t.Helper()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	st, err := datastore.NewProviderFactory(dbPath)
	if err != nil {
		return nil, fmt.Errorf("store_test: failed to open db: %w", err)
	}

	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			fmt.Printf("Error closing database: %v\n", err)
		}
	})

	return st, nil
}

func seedUser(t *testing.T, st datastore.DataStore, username string) *model.User {
	t.Helper()
	salt, err := crypto.GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	u, err := st.CreateUser(username, crypto.HashPassword("secret", salt), salt)
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func seedGame(t *testing.T, st datastore.DataStore, name string) *model.Game {
	t.Helper()
	g := &model.Game{Name: name, Description: name + " game", Version: "1.0", File: name + ".py"}
	if err := st.UpsertGame(g); err != nil {
		t.Fatalf("UpsertGame(%s): %v", name, err)
	}
	return g
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	type tcase struct {
		username  string
		seed      bool
		expectErr error
	}

	tcases := map[string]tcase{
		"minimum_required_fields": {
			username: "johndoe",
		},
		"injection_username": { // SQL injection contains invalid chars (quotes, spaces, equals)
			username:  "' OR '1'='1",
			expectErr: model.ErrUsernameInvalidChars,
		},
		"empty_username": {
			username:  "",
			expectErr: model.ErrUsernameEmpty,
		},
		"duplicate_username": {
			username:  "janedoe",
			seed:      true,
			expectErr: datastore.ErrDuplicate,
		},
	}

	fn := func(tc tcase) func(*testing.T) {
		return func(t *testing.T) {
			store, err := NewTestSqlConn(t)
			if err != nil {
				t.Fatalf("failed to open test connection: %v", err)
			}
			if tc.seed {
				seedUser(t, store.NonTx(), tc.username)
			}

			got, err := store.NonTx().CreateUser(tc.username, []byte("hash"), []byte("salt"))
			if tc.expectErr != nil {
				if !errors.Is(err, tc.expectErr) {
					t.Fatalf("CreateUser: got err %v, want %v", err, tc.expectErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CreateUser: unexpected error: %v", err)
			}

			want := &model.User{
				Username:     tc.username,
				PasswordHash: []byte("hash"),
				Salt:         []byte("salt"),
			}
			if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.User{}, "ID", "CreatedAt")); diff != "" {
				t.Errorf("store.NonTx().CreateUser mismatch (-want +got):\n%s", diff)
			}
		}
	}

	for name, tc := range tcases {
		t.Run(name, fn(tc))
	}
}

func TestGetUserByUsername(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	seeded := seedUser(t, store.NonTx(), "johndoe")

	got, err := store.NonTx().GetUserByUsername("johndoe")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if diff := cmp.Diff(seeded, got, cmpopts.IgnoreFields(model.User{}, "CreatedAt")); diff != "" {
		t.Fatalf("GetUserByUsername mismatch (-want +got):\n%s", diff)
	}
	if !crypto.VerifyPassword("secret", got.Salt, got.PasswordHash) {
		t.Fatal("stored hash does not verify")
	}

	missing, err := store.NonTx().GetUserByUsername("nobody")
	if err != nil || missing != nil {
		t.Fatalf("GetUserByUsername(nobody) = %v, %v; want nil, nil", missing, err)
	}
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	for _, name := range []string{"alice", "bob", "carol"} {
		seedUser(t, store.NonTx(), name)
	}

	users, err := store.NonTx().ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	var names []string
	for _, u := range users {
		names = append(names, u.Username)
		if u.PasswordHash != nil {
			t.Errorf("ListUsers leaked password hash for %s", u.Username)
		}
	}
	if diff := cmp.Diff([]string{"alice", "bob", "carol"}, names); diff != "" {
		t.Errorf("ListUsers mismatch (-want +got):\n%s", diff)
	}
}

func TestRoomLifecycle(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	st := store.NonTx()

	room := &model.RoomRecord{ID: "r-1", Owner: "alice", Public: true, Open: true}
	if err := st.CreateRoom(room); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err := st.CreateRoom(room); !errors.Is(err, datastore.ErrDuplicate) {
		t.Fatalf("CreateRoom duplicate: got %v, want ErrDuplicate", err)
	}

	if err := st.SetRoomOpen("r-1", false); err != nil {
		t.Fatalf("SetRoomOpen: %v", err)
	}
	got, err := st.GetRoom("r-1")
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	want := &model.RoomRecord{ID: "r-1", Owner: "alice", Public: true, Open: false}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.RoomRecord{}, "CreatedAt")); diff != "" {
		t.Errorf("GetRoom mismatch (-want +got):\n%s", diff)
	}

	if err := st.SetRoomOpen("r-missing", true); !errors.Is(err, datastore.ErrNotFound) {
		t.Errorf("SetRoomOpen missing: got %v, want ErrNotFound", err)
	}

	if err := st.DeleteRoom("r-1"); err != nil {
		t.Fatalf("DeleteRoom: %v", err)
	}
	if err := st.DeleteRoom("r-1"); err != nil {
		t.Fatalf("DeleteRoom twice: %v", err)
	}
	if got, _ := st.GetRoom("r-1"); got != nil {
		t.Fatalf("GetRoom after delete = %+v, want nil", got)
	}
}

func TestDeleteAllRooms(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	st := store.NonTx()
	for _, id := range []string{"r-a", "r-b", "r-c"} {
		if err := st.CreateRoom(&model.RoomRecord{ID: id, Owner: "alice", Public: true, Open: true}); err != nil {
			t.Fatalf("CreateRoom(%s): %v", id, err)
		}
	}

	n, err := st.DeleteAllRooms()
	if err != nil {
		t.Fatalf("DeleteAllRooms: %v", err)
	}
	if n != 3 {
		t.Errorf("DeleteAllRooms removed %d, want 3", n)
	}
	rooms, err := st.ListRooms()
	if err != nil {
		t.Fatalf("ListRooms: %v", err)
	}
	if len(rooms) != 0 {
		t.Errorf("ListRooms after reset = %d rooms, want 0", len(rooms))
	}
}

func TestUpsertGame(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	st := store.NonTx()

	first := seedGame(t, st, "guess")
	again := &model.Game{Name: "guess", Description: "updated", Version: "2.0", File: "guess.py"}
	if err := st.UpsertGame(again); err != nil {
		t.Fatalf("UpsertGame update: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("UpsertGame changed id: %d -> %d", first.ID, again.ID)
	}

	got, err := st.GetGame("guess")
	if err != nil {
		t.Fatalf("GetGame: %v", err)
	}
	want := &model.Game{ID: first.ID, Name: "guess", Description: "updated", Version: "2.0", File: "guess.py"}
	if diff := cmp.Diff(want, got, cmpopts.IgnoreFields(model.Game{}, "CreatedAt")); diff != "" {
		t.Errorf("GetGame mismatch (-want +got):\n%s", diff)
	}

	if err := st.UpsertGame(&model.Game{Name: "  "}); !errors.Is(err, model.ErrGameNameEmpty) {
		t.Errorf("UpsertGame blank name: got %v", err)
	}
	if g, err := st.GetGame("missing"); g != nil || err != nil {
		t.Errorf("GetGame(missing) = %v, %v; want nil, nil", g, err)
	}
}

func TestDownloadsAndRatings(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}
	st := store.NonTx()
	alice := seedUser(t, st, "alice")
	bob := seedUser(t, st, "bob")
	game := seedGame(t, st, "guess")

	ok, err := st.HasDownloaded(alice.ID, game.ID)
	if err != nil || ok {
		t.Fatalf("HasDownloaded before download = %v, %v", ok, err)
	}
	for i := 0; i < 2; i++ {
		if err := st.RecordDownload(alice.ID, game.ID); err != nil {
			t.Fatalf("RecordDownload: %v", err)
		}
	}
	if err := st.RecordDownload(bob.ID, game.ID); err != nil {
		t.Fatalf("RecordDownload: %v", err)
	}
	if ok, _ := st.HasDownloaded(alice.ID, game.ID); !ok {
		t.Fatal("HasDownloaded after download = false")
	}

	downloads, err := st.ListDownloads("alice")
	if err != nil {
		t.Fatalf("ListDownloads: %v", err)
	}
	wantDownloads := []model.Download{{Game: "guess", Version: game.Version, Count: 2}}
	if diff := cmp.Diff(wantDownloads, downloads, cmpopts.IgnoreFields(model.Download{}, "LastAt")); diff != "" {
		t.Errorf("ListDownloads mismatch (-want +got):\n%s", diff)
	}
	if len(downloads) == 1 && downloads[0].LastAt.IsZero() {
		t.Error("ListDownloads LastAt is zero")
	}
	if downloads, err := st.ListDownloads("nobody"); err != nil || len(downloads) != 0 {
		t.Errorf("ListDownloads(nobody) = %v, %v; want empty", downloads, err)
	}

	if err := st.UpsertRating(alice.ID, game.ID, 4, "nice"); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	if err := st.UpsertRating(alice.ID, game.ID, 5, "great"); err != nil {
		t.Fatalf("UpsertRating replace: %v", err)
	}
	if err := st.UpsertRating(bob.ID, game.ID, 2, ""); err != nil {
		t.Fatalf("UpsertRating: %v", err)
	}
	if err := st.UpsertRating(bob.ID, game.ID, 9, ""); !errors.Is(err, model.ErrScoreRange) {
		t.Fatalf("UpsertRating out of range: got %v", err)
	}

	ratings, err := st.ListRatings("guess")
	if err != nil {
		t.Fatalf("ListRatings: %v", err)
	}
	want := []model.Rating{
		{Game: "guess", Username: "alice", Score: 5, Comment: "great"},
		{Game: "guess", Username: "bob", Score: 2},
	}
	sortByUser := cmpopts.SortSlices(func(a, b model.Rating) bool { return a.Username < b.Username })
	if diff := cmp.Diff(want, ratings, sortByUser, cmpopts.IgnoreFields(model.Rating{}, "CreatedAt")); diff != "" {
		t.Errorf("ListRatings mismatch (-want +got):\n%s", diff)
	}

	games, err := st.ListGames()
	if err != nil {
		t.Fatalf("ListGames: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("ListGames returned %d games", len(games))
	}
	if games[0].Downloads != 3 {
		t.Errorf("Downloads = %d, want 3", games[0].Downloads)
	}
	if games[0].AvgScore != 3.5 {
		t.Errorf("AvgScore = %v, want 3.5", games[0].AvgScore)
	}
}

func TestTxRollback(t *testing.T) {
	t.Parallel()

	store, err := NewTestSqlConn(t)
	if err != nil {
		t.Fatalf("failed to open test connection: %v", err)
	}

	tx, err := store.Tx(context.Background())
	if err != nil {
		t.Fatalf("Tx: %v", err)
	}
	if err := tx.CreateRoom(&model.RoomRecord{ID: "r-tx", Owner: "alice", Open: true}); err != nil {
		t.Fatalf("CreateRoom in tx: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if got, err := store.NonTx().GetRoom("r-tx"); got != nil || err != nil {
		t.Fatalf("GetRoom after rollback = %v, %v; want nil, nil", got, err)
	}
}
