package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/profiles"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/shared"
)

// Provider signs users in and out at the identity provider.
type Provider interface {
	SignInWithPassword(ctx context.Context, email, password string) (identity.Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
}

// ProfileAccess resolves the profile of a freshly authenticated user.
type ProfileAccess interface {
	Access(ctx context.Context, userID string) (profiles.Access, error)
}

// Service wraps authentication business rules.
type Service struct {
	provider Provider
	profiles ProfileAccess
	repo     Repository
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(provider Provider, profileAccess ProfileAccess, repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{provider: provider, profiles: profileAccess, repo: repo, logger: logger}
}

// Login validates credentials at the provider and requires an active
// profile. Provider tokens issued for a user without a usable profile are
// revoked before returning.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	tokens, err := s.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: sign in: %w", err)
	}

	access, err := s.profiles.Access(ctx, tokens.User.ID)
	if err != nil {
		s.revoke(ctx, tokens.AccessToken)
		if errors.Is(err, profiles.ErrNotFound) {
			return LoginResult{}, shared.ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("auth: load profile: %w", err)
	}
	if !access.IsActive {
		s.revoke(ctx, tokens.AccessToken)
		return LoginResult{}, shared.ErrInactiveProfile
	}
	return LoginResult{Tokens: tokens, Access: access}, nil
}

// RegisterSession records the login in postgres.
func (s *Service) RegisterSession(ctx context.Context, sessionID, userID, accessToken string, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, LoginSession{
		ID:          sessionID,
		UserID:      userID,
		Fingerprint: Fingerprint(accessToken),
		CreatedAt:   time.Now().UTC(),
		ExpiresAt:   expiresAt.UTC(),
		IP:          ip,
		UserAgent:   ua,
	})
}

// Logout revokes the provider token and deletes the session row. Provider
// failures are logged and do not stop the local logout.
func (s *Service) Logout(ctx context.Context, sessionID, accessToken string) error {
	if accessToken != "" {
		s.revoke(ctx, accessToken)
	}
	return s.repo.DeleteSession(ctx, sessionID)
}

// PurgeExpired deletes session rows that expired before now.
func (s *Service) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, now)
}

func (s *Service) revoke(ctx context.Context, token string) {
	if err := s.provider.SignOut(ctx, token); err != nil {
		s.logger.Warn("provider sign out", slog.Any("error", err))
	}
}

// Fingerprint returns the hex BLAKE2b-256 digest of an access token.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
