package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MinScore = 1
	MaxScore = 5

	MaxCommentLength = 500
)

var ErrGameNameEmpty = errors.New("game name must not be empty")
var ErrScoreRange = fmt.Errorf("score must be between %d and %d", MinScore, MaxScore)
var ErrCommentTooLong = fmt.Errorf("comment must not exceed %d characters", MaxCommentLength)

// Game is a catalog entry whose package file the lobby serves.
type Game struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	File        string    `json:"file"` // file name inside the lobby games directory
	Downloads   int64     `json:"downloads"`
	AvgScore    float64   `json:"avg_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// Validate checks the fields required to store a game.
func (g *Game) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrGameNameEmpty
	}
	return nil
}

// Download summarises one user's downloads of one game.
type Download struct {
	Game    string    `json:"game"`
	Version string    `json:"version"`
	Count   int64     `json:"count"`
	LastAt  time.Time `json:"last_at"`
}

// Rating is one user's score for one game.
type Rating struct {
	Game      string    `json:"game"`
	Username  string    `json:"username"`
	Score     int       `json:"score"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate checks score range and comment length.
func (r *Rating) Validate() error {
	if r.Score < MinScore || r.Score > MaxScore {
		return ErrScoreRange
	}
	if utf8.RuneCountInString(r.Comment) > MaxCommentLength {
		return ErrCommentTooLong
	}
	return nil
}
