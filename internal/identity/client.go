package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
)

// Client wraps the gotrue-go client with the error taxonomy the gate and the
// login flow rely on. It holds no per-user state and is safe for concurrent
// use.
type Client struct {
	api        gotrue.Client
	admin      gotrue.Client
	authURL    string
	serviceKey string
	httpClient *http.Client
}

// NewClient constructs a Client for the Supabase project at baseURL.
// A nil httpClient falls back to http.DefaultClient.
func NewClient(baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	authURL := strings.TrimRight(baseURL, "/") + "/auth/v1"
	return &Client{
		api:        gotrue.New("", apiKey).WithCustomGoTrueURL(authURL),
		authURL:    authURL,
		httpClient: httpClient,
	}
}

// GetUser resolves the user that owns accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	if strings.TrimSpace(accessToken) == "" {
		return User{}, ErrInvalidToken
	}
	resp, err := c.bind(ctx, c.api, accessToken).GetUser()
	if err != nil {
		switch statusOf(err) {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return User{}, asProvider("get user", err)
	}
	user := userFrom(resp.User)
	if user.ID == "" {
		return User{}, ErrInvalidToken
	}
	return user, nil
}

// SignInWithPassword exchanges credentials for a token pair.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (Tokens, error) {
	resp, err := c.bind(ctx, c.api, "").SignInWithEmailPassword(email, password)
	if err != nil {
		if errors.Is(err, types.ErrInvalidTokenRequest) {
			return Tokens{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		switch statusOf(err) {
		case http.StatusBadRequest, http.StatusUnauthorized:
			return Tokens{}, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return Tokens{}, asProvider("sign in", err)
	}
	if resp.AccessToken == "" {
		return Tokens{}, fmt.Errorf("%w: empty access token", ErrProvider)
	}
	tokens := Tokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		TokenType:    resp.TokenType,
		ExpiresIn:    resp.ExpiresIn,
		User:         userFrom(resp.User),
	}
	switch {
	case resp.ExpiresAt > 0:
		tokens.ExpiresAt = time.Unix(resp.ExpiresAt, 0)
	case resp.ExpiresIn > 0:
		tokens.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return tokens, nil
}

// SignOut revokes the refresh tokens of the session owning accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if accessToken == "" {
		return nil
	}
	err := c.bind(ctx, c.api, accessToken).Logout()
	if err == nil {
		return nil
	}
	switch statusOf(err) {
	case http.StatusUnauthorized, http.StatusNotFound:
		// Already gone on the provider side.
		return nil
	}
	return asProvider("sign out", err)
}

// bind scopes api to one call: the bearer token and a transport carrying ctx,
// since gotrue-go builds its requests without a context.
func (c *Client) bind(ctx context.Context, api gotrue.Client, token string) gotrue.Client {
	hc := *c.httpClient
	next := hc.Transport
	if next == nil {
		next = http.DefaultTransport
	}
	hc.Transport = contextTransport{ctx: ctx, next: next}
	return api.WithClient(hc).WithToken(token)
}

type contextTransport struct {
	ctx  context.Context
	next http.RoundTripper
}

func (t contextTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	return t.next.RoundTrip(req.WithContext(t.ctx))
}

func userFrom(u types.User) User {
	user := User{Email: u.Email, Role: u.Role}
	if u.ID != uuid.Nil {
		user.ID = u.ID.String()
	}
	return user
}

// statusOf extracts the HTTP status gotrue-go reports in its error text.
// Transport and decode failures carry none and yield 0.
func statusOf(err error) int {
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status); scanErr != nil {
		return 0
	}
	return status
}

func asProvider(op string, err error) error {
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}

// IsProviderError reports whether err is a transport or server failure
// rather than a rejection.
func IsProviderError(err error) bool {
	return errors.Is(err, ErrProvider)
}
