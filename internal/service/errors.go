package service

import "errors"

var (
	ErrNotFound           = errors.New("symbol not found")
	ErrInvalidCredentials = errors.New("invalid username and/or password")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
)
