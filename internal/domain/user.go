// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"strings"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

type UserID string

// Less orders user ids bytewise. The lower id of a pair initiates mesh negotiation.
func (id UserID) Less(other UserID) bool { return strings.Compare(string(id), string(other)) < 0 }

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewUser validates an identity handed over by the authentication layer.
// An empty username falls back to the id.
func NewUser(id, username string) (*User, error) {
	if id == "" {
		return nil, ErrUserIDEmpty
	}
	if len(id) > MaxUserIDLen {
		return nil, ErrUserIDTooLong
	}
	u := &User{ID: UserID(id), Username: id}
	if username != "" {
		if err := u.SetUsername(username); err != nil {
			return nil, err
		}
	}
	return u, nil
}

func (u *User) SetUsername(username string) error {
	if len(username) == 0 {
		return ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	u.Username = username
	return nil
}
