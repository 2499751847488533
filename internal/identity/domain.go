// Package identity talks to the hosted Supabase Auth (GoTrue) service.
package identity

import (
	"errors"
	"time"
)

// User is the identity record owned by the provider.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Tokens is the credential pair issued at sign in.
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int       `json:"expires_in"`
	ExpiresAt    time.Time `json:"-"`
	User         User      `json:"user"`
}

var (
	// ErrInvalidToken reports a token the provider does not recognise.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrInvalidCredentials reports a rejected email/password pair.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrProvider wraps transport failures and unexpected responses.
	ErrProvider = errors.New("identity: provider error")
)
