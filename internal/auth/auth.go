// Package auth checks the shared token a client may carry in the frame
// auth block.
//
// It intentionally avoids policy decisions and storage concerns.
package auth

import (
	"crypto/subtle"
	"errors"
	"strings"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Validator validates the auth block of one frame.
type Validator interface {
	Validate(token []byte) error
}

// SharedToken accepts frames whose auth block equals Token.
type SharedToken struct {
	Token string
}

func (s SharedToken) Validate(token []byte) error {
	if s.Token == "" {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare([]byte(s.Token), token) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Open accepts every frame, with or without an auth block.
type Open struct{}

func (Open) Validate([]byte) error {
	return nil
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(token []byte) error

func (f FuncValidator) Validate(token []byte) error {
	return f(token)
}

// ForToken returns Open for an empty token and SharedToken otherwise.
func ForToken(token string) Validator {
	token = strings.TrimSpace(token)
	if token == "" {
		return Open{}
	}
	return SharedToken{Token: token}
}
