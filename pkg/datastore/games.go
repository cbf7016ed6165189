package datastore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/NicolasHaas/matchlobby/pkg/model"
)

const gameColumns = `g.id, g.name, g.description, g.version, g.file, g.created_at,
	COALESCE((SELECT SUM(d.count) FROM downloads d WHERE d.game_id = g.id), 0),
	COALESCE((SELECT AVG(r.score) FROM ratings r WHERE r.game_id = g.id), 0.0)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*model.Game, error) {
	g := &model.Game{}
	var createdAt string
	if err := row.Scan(&g.ID, &g.Name, &g.Description, &g.Version, &g.File, &createdAt, &g.Downloads, &g.AvgScore); err != nil {
		return nil, err
	}
	parsed, err := parseDBTime(createdAt)
	if err != nil {
		return nil, err
	}
	g.CreatedAt = parsed
	return g, nil
}

// UpsertGame inserts a catalog entry or updates the existing one with the
// same name. game.ID is set on return.
func (s *baseProvider) UpsertGame(game *model.Game) error {
	if err := game.Validate(); err != nil {
		return fmt.Errorf("datastore: upsert game: %w", err)
	}
	ctx := context.Background()
	_, err := s.ExecContext(ctx, `
		INSERT INTO games (name, description, version, file) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			version     = excluded.version,
			file        = excluded.file`,
		game.Name, game.Description, game.Version, game.File)
	if err != nil {
		return fmt.Errorf("datastore: upsert game: %w", err)
	}
	if err := s.QueryRowContext(ctx, "SELECT id FROM games WHERE name = ?", game.Name).Scan(&game.ID); err != nil {
		return fmt.Errorf("datastore: upsert game: %w", err)
	}
	return nil
}

// GetGame retrieves a game and its download/rating aggregates by name.
func (s *baseProvider) GetGame(name string) (*model.Game, error) {
	row := s.QueryRowContext(context.Background(), "SELECT "+gameColumns+" FROM games g WHERE g.name = ?", name)
	g, err := scanGame(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get game: %w", err)
	}
	return g, nil
}

// ListGames returns the whole catalog ordered by name.
func (s *baseProvider) ListGames() ([]model.Game, error) {
	rows, err := s.QueryContext(context.Background(), "SELECT "+gameColumns+" FROM games g ORDER BY g.name")
	if err != nil {
		return nil, fmt.Errorf("datastore: list games: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var games []model.Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("datastore: scan game: %w", err)
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

// RecordDownload counts one more download of a game by a user.
func (s *baseProvider) RecordDownload(userID, gameID int64) error {
	_, err := s.ExecContext(context.Background(), `
		INSERT INTO downloads (user_id, game_id, count, last_at) VALUES (?, ?, 1, ?)
		ON CONFLICT(user_id, game_id) DO UPDATE SET
			count   = count + 1,
			last_at = excluded.last_at`,
		userID, gameID, formatDBTime(time.Now()))
	if err != nil {
		return fmt.Errorf("datastore: record download: %w", err)
	}
	return nil
}

// HasDownloaded reports whether the user downloaded the game at least once.
func (s *baseProvider) HasDownloaded(userID, gameID int64) (bool, error) {
	var n int
	err := s.QueryRowContext(context.Background(),
		"SELECT COUNT(*) FROM downloads WHERE user_id = ? AND game_id = ? AND count > 0", userID, gameID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("datastore: has downloaded: %w", err)
	}
	return n > 0, nil
}

// ListDownloads returns the games a user downloaded, most recent first.
func (s *baseProvider) ListDownloads(username string) ([]model.Download, error) {
	rows, err := s.QueryContext(context.Background(), `
		SELECT g.name, g.version, d.count, d.last_at
		FROM downloads d
		JOIN users u ON u.id = d.user_id
		JOIN games g ON g.id = d.game_id
		WHERE u.username = ? AND d.count > 0
		ORDER BY d.last_at DESC, g.name`, username)
	if err != nil {
		return nil, fmt.Errorf("datastore: list downloads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var downloads []model.Download
	for rows.Next() {
		var d model.Download
		var lastAt string
		if err := rows.Scan(&d.Game, &d.Version, &d.Count, &lastAt); err != nil {
			return nil, fmt.Errorf("datastore: scan download: %w", err)
		}
		if d.LastAt, err = parseDBTime(lastAt); err != nil {
			return nil, fmt.Errorf("datastore: scan download: %w", err)
		}
		downloads = append(downloads, d)
	}
	return downloads, rows.Err()
}

// UpsertRating stores a user's rating of a game, replacing an earlier one.
func (s *baseProvider) UpsertRating(userID, gameID int64, score int, comment string) error {
	r := model.Rating{Score: score, Comment: comment}
	if err := r.Validate(); err != nil {
		return fmt.Errorf("datastore: rate game: %w", err)
	}
	_, err := s.ExecContext(context.Background(), `
		INSERT INTO ratings (user_id, game_id, score, comment, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, game_id) DO UPDATE SET
			score      = excluded.score,
			comment    = excluded.comment,
			created_at = excluded.created_at`,
		userID, gameID, score, comment, formatDBTime(time.Now()))
	if err != nil {
		return fmt.Errorf("datastore: rate game: %w", err)
	}
	return nil
}

// ListRatings returns all ratings for a game, newest first.
func (s *baseProvider) ListRatings(game string) ([]model.Rating, error) {
	rows, err := s.QueryContext(context.Background(), `
		SELECT g.name, u.username, r.score, r.comment, r.created_at
		FROM ratings r
		JOIN users u ON u.id = r.user_id
		JOIN games g ON g.id = r.game_id
		WHERE g.name = ?
		ORDER BY r.created_at DESC, u.username`, game)
	if err != nil {
		return nil, fmt.Errorf("datastore: list ratings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ratings []model.Rating
	for rows.Next() {
		var r model.Rating
		var createdAt string
		if err := rows.Scan(&r.Game, &r.Username, &r.Score, &r.Comment, &createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan rating: %w", err)
		}
		if r.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, fmt.Errorf("datastore: scan rating: %w", err)
		}
		ratings = append(ratings, r)
	}
	return ratings, rows.Err()
}
