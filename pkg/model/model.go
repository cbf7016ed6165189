// Package model defines the core domain types for the match lobby.
package model

import (
	"fmt"
	"time"
)

// RoomCapacity is the maximum number of members in a room.
const RoomCapacity = 2

// RoomState is the lifecycle state of a live room.
type RoomState int

const (
	RoomOpen    RoomState = iota // accepting joins or waiting for a second player
	RoomPlaying                  // match running, joins refused
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomPlaying:
		return "playing"
	default:
		return "unknown"
	}
}

// Visibility controls whether a room can be joined without an invite.
type Visibility int

const (
	Public Visibility = iota
	Private
)

func (v Visibility) String() string {
	if v == Private {
		return "private"
	}
	return "public"
}

// ParseVisibility converts a string to a Visibility.
func ParseVisibility(s string) (Visibility, error) {
	switch s {
	case "public", "":
		return Public, nil
	case "private":
		return Private, nil
	default:
		return Public, fmt.Errorf("unknown visibility %q", s)
	}
}

// Invite is a pending invitation in a session's mailbox.
type Invite struct {
	From      string    `json:"from"`
	RoomID    string    `json:"room_id"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomRecord is the persisted view of a room held by the account service.
type RoomRecord struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Public    bool      `json:"public"`
	Open      bool      `json:"open"`
	CreatedAt time.Time `json:"created_at"`
}
