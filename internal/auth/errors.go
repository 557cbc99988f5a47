package auth

import "errors"

var (
	// ErrUserNotFound indicates the session owner does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidToken indicates a token failed signature, algorithm or expiry checks.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenMismatch indicates a validly signed refresh token that is not the user's active one.
	ErrTokenMismatch = errors.New("refresh token does not match active session")
)
