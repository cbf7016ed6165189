package model

import (
	"errors"
	"fmt"
)

// Code is a stable error identifier sent to peers.
type Code string

const (
	CodeBadRequest          Code = "bad_request"
	CodeNotLoggedIn         Code = "not_logged_in"
	CodeAlreadyLoggedIn     Code = "already_logged_in"
	CodeAlreadyOnline       Code = "already_online"
	CodeBadCredentials      Code = "bad_credentials"
	CodeUserExists          Code = "user_exists"
	CodeNoSuchRoom          Code = "no_such_room"
	CodePrivateRoom         Code = "private_room"
	CodeRoomClosed          Code = "room_closed"
	CodeRoomFull            Code = "room_full"
	CodeNotMember           Code = "not_member"
	CodeNotOwner            Code = "not_owner"
	CodeInsufficientPlayers Code = "insufficient_players"
	CodeAlreadyPlaying      Code = "already_playing"
	CodeAlreadyInRoom       Code = "already_in_room"
	CodeNotInRoom           Code = "not_in_room"
	CodeTargetOffline       Code = "target_offline"
	CodeNoSuchGame          Code = "no_such_game"
	CodeNotDownloaded       Code = "not_downloaded"
	CodeInvalidScore        Code = "invalid_score"
	CodePersistenceRejected Code = "persistence_rejected"
	CodeServiceUnavailable  Code = "service_unavailable"
	CodeNoFreePort          Code = "no_free_port"
	CodeTransferFailed      Code = "transfer_failed"
	CodeInternal            Code = "internal"
)

// Error is an application error: recoverable, reported to the requester
// with a stable code, connection stays open.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Msg
}

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// Errorf builds an *Error with a formatted message.
func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf returns the code of the first *Error in err's chain, or
// CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

var (
	ErrBadRequest          = &Error{Code: CodeBadRequest, Msg: "malformed request"}
	ErrNotLoggedIn         = &Error{Code: CodeNotLoggedIn, Msg: "login required"}
	ErrAlreadyLoggedIn     = &Error{Code: CodeAlreadyLoggedIn, Msg: "session already logged in"}
	ErrAlreadyOnline       = &Error{Code: CodeAlreadyOnline, Msg: "user already online"}
	ErrNoSuchRoom          = &Error{Code: CodeNoSuchRoom, Msg: "room does not exist"}
	ErrPrivateRoom         = &Error{Code: CodePrivateRoom, Msg: "room is private"}
	ErrRoomClosed          = &Error{Code: CodeRoomClosed, Msg: "room is playing"}
	ErrRoomFull            = &Error{Code: CodeRoomFull, Msg: "room is full"}
	ErrNotMember           = &Error{Code: CodeNotMember, Msg: "not a member of this room"}
	ErrNotOwner            = &Error{Code: CodeNotOwner, Msg: "only the owner can start the game"}
	ErrInsufficientPlayers = &Error{Code: CodeInsufficientPlayers, Msg: "two players required"}
	ErrAlreadyPlaying      = &Error{Code: CodeAlreadyPlaying, Msg: "game already running"}
	ErrAlreadyInRoom       = &Error{Code: CodeAlreadyInRoom, Msg: "leave your current room first"}
	ErrNotInRoom           = &Error{Code: CodeNotInRoom, Msg: "join or create a room first"}
	ErrTargetOffline       = &Error{Code: CodeTargetOffline, Msg: "target user is offline"}
	ErrNoSuchGame          = &Error{Code: CodeNoSuchGame, Msg: "game not found"}
	ErrServiceUnavailable  = &Error{Code: CodeServiceUnavailable, Msg: "account service unavailable"}
	ErrNoFreePort          = &Error{Code: CodeNoFreePort, Msg: "no free port for match"}
	ErrInternal            = &Error{Code: CodeInternal, Msg: "internal error"}
)
