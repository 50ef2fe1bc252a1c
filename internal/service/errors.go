package service

import "errors"

var (
	ErrMissingUserID   = errors.New("missing userId")
	ErrInvalidToken    = errors.New("invalid or expired token")
	ErrUserNotFound    = errors.New("user not found")
	ErrCannotDMSelf    = errors.New("cannot start a conversation with yourself")
	ErrChannelNotFound = errors.New("channel not found")
	ErrNotParticipant  = errors.New("you are not a member of this channel")
)
