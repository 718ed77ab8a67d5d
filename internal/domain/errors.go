package domain

import "errors"

var (
	ErrEmptyUsername   = errors.New("username is empty")
	ErrUsernameTooLong = errors.New("username is too long")
	ErrUsernameInvalid = errors.New("username contains invalid characters")
	ErrUsernameTaken   = errors.New("username is already taken")

	ErrNoPoints      = errors.New("draw event has no points")
	ErrTooManyPoints = errors.New("draw event has too many points")
	ErrBadPoint      = errors.New("draw event has a malformed point")
	ErrNoColor       = errors.New("draw event has no color")
)
