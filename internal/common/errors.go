package common

import "errors"

var (

	// repository specific errors
	ErrNotFound   = errors.New("not found")
	ErrEmailTaken = errors.New("email already taken")

	// service specific errors
	ErrConflict        = errors.New("user already exists")
	ErrUnauthenticated = errors.New("invalid credentials")
	ErrInvalidInput    = errors.New("invalid input")

	// token errors never say why a token was rejected
	ErrTokenInvalid = errors.New("invalid token")
)
