package models

import "errors"

// User store errors shared by every UserStore implementation
var (
	ErrUserExists   = errors.New("username already taken")
	ErrUserNotFound = errors.New("user not found")
)
