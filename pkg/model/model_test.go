package model

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"valid simple", "alice", nil},
		{"valid with numbers", "user123", nil},
		{"valid with underscore", "my_user", nil},
		{"valid with hyphen", "my-user", nil},
		{"valid mixed", "A-b_3", nil},
		{"valid max length", strings.Repeat("a", MaxUsernameLength), nil},
		{"empty", "", ErrUsernameEmpty},
		{"too long", strings.Repeat("a", MaxUsernameLength+1), ErrUsernameTooLong},
		{"contains space", "has space", ErrUsernameInvalidChars},
		{"contains dot", "user.name", ErrUsernameInvalidChars},
		{"contains @", "user@name", ErrUsernameInvalidChars},
		{"unicode letter", "ñoño", ErrUsernameInvalidChars},
		{"tab character", "user\tname", ErrUsernameInvalidChars},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if err != tt.wantErr {
				t.Errorf("ValidateUsername(%q) = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"single char", "x", nil},
		{"typical", "hunter2", nil},
		{"max length", strings.Repeat("p", MaxPasswordLength), nil},
		{"empty", "", ErrPasswordLength},
		{"too long", strings.Repeat("p", MaxPasswordLength+1), ErrPasswordLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidatePassword(tt.input); err != tt.wantErr {
				t.Errorf("ValidatePassword(len=%d) = %v, want %v", len(tt.input), err, tt.wantErr)
			}
		})
	}
}

func TestRatingValidate(t *testing.T) {
	tests := []struct {
		name    string
		rating  Rating
		wantErr error
	}{
		{"min score", Rating{Score: MinScore}, nil},
		{"max score", Rating{Score: MaxScore, Comment: "fun"}, nil},
		{"zero", Rating{Score: 0}, ErrScoreRange},
		{"six", Rating{Score: 6}, ErrScoreRange},
		{"long comment", Rating{Score: 3, Comment: strings.Repeat("c", MaxCommentLength+1)}, ErrCommentTooLong},
		{"multibyte comment at limit", Rating{Score: 3, Comment: strings.Repeat("é", MaxCommentLength)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.rating.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRoomStateString(t *testing.T) {
	tests := []struct {
		state RoomState
		want  string
	}{
		{RoomOpen, "open"},
		{RoomPlaying, "playing"},
		{RoomState(9), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.state.String(); got != tt.want {
				t.Errorf("RoomState(%d).String() = %q, want %q", tt.state, got, tt.want)
			}
		})
	}
}

func TestParseVisibility(t *testing.T) {
	for _, in := range []string{"", "public"} {
		if v, err := ParseVisibility(in); err != nil || v != Public {
			t.Errorf("ParseVisibility(%q) = %v, %v", in, v, err)
		}
	}
	if v, err := ParseVisibility("private"); err != nil || v != Private {
		t.Errorf("ParseVisibility(private) = %v, %v", v, err)
	}
	if _, err := ParseVisibility("secret"); err == nil {
		t.Error("ParseVisibility(secret): expected error")
	}
}

func TestErrorMatching(t *testing.T) {
	wrapped := fmt.Errorf("rooms: join: %w", Errorf(CodeRoomFull, "room %s is full", "r-1"))

	if !errors.Is(wrapped, ErrRoomFull) {
		t.Error("errors.Is should match on code regardless of message")
	}
	if errors.Is(wrapped, ErrNoSuchRoom) {
		t.Error("errors.Is matched a different code")
	}
	if got := CodeOf(wrapped); got != CodeRoomFull {
		t.Errorf("CodeOf = %q, want %q", got, CodeRoomFull)
	}
	if got := CodeOf(errors.New("boom")); got != CodeInternal {
		t.Errorf("CodeOf(plain) = %q, want %q", got, CodeInternal)
	}
	if got := ErrRoomFull.Error(); got != "room_full: room is full" {
		t.Errorf("Error() = %q", got)
	}
}
