package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// ErrEmailTaken reports that the provider already has an account for the email.
var ErrEmailTaken = errors.New("identity: email already registered")

// ErrAdminDisabled is returned when no service role key was configured.
var ErrAdminDisabled = errors.New("identity: admin api not configured")

// WithServiceKey returns a copy of c able to call the admin endpoints. The
// service role key is sent both as the api key and as the bearer token.
func (c *Client) WithServiceKey(serviceKey string) *Client {
	clone := *c
	clone.admin = nil
	clone.serviceKey = serviceKey
	if serviceKey != "" {
		clone.admin = gotrue.New("", serviceKey).WithCustomGoTrueURL(c.authURL)
	}
	return &clone
}

// CreateUser provisions a confirmed account with the given password.
func (c *Client) CreateUser(ctx context.Context, email, password string) (User, error) {
	if c.admin == nil {
		return User{}, ErrAdminDisabled
	}
	resp, err := c.bindAdmin(ctx).AdminCreateUser(types.AdminCreateUserRequest{
		Email:        email,
		Password:     &password,
		EmailConfirm: true,
	})
	if err != nil {
		switch statusOf(err) {
		case http.StatusUnprocessableEntity, http.StatusConflict:
			return User{}, fmt.Errorf("%w: %v", ErrEmailTaken, err)
		}
		return User{}, asProvider("create user", err)
	}
	return userFrom(resp.User), nil
}

// DeleteUser removes the account with id. Missing accounts are not an error.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if c.admin == nil {
		return ErrAdminDisabled
	}
	userID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("identity: delete user %q: %w", id, err)
	}
	err = c.bindAdmin(ctx).AdminDeleteUser(types.AdminDeleteUserRequest{UserID: userID})
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil
		}
		return asProvider("delete user", err)
	}
	return nil
}

func (c *Client) bindAdmin(ctx context.Context) gotrue.Client {
	return c.bind(ctx, c.admin, c.serviceKey)
}
