package identity_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity"
	"github.com/Kriss071/SIGVE-SistemaGestionVehiculosEmergencia-sub000/internal/identity/identitytest"
)

func newClient(t *testing.T) (*identity.Client, *identitytest.Server) {
	t.Helper()
	srv := identitytest.NewServer(t)
	srv.AddUser(identitytest.UserID("u123"), "jefe@bomberos.cl", "secreto123")
	return identity.NewClient(srv.URL+"/", identitytest.APIKey, srv.Client()), srv
}

func TestSignInAndGetUser(t *testing.T) {
	client, srv := newClient(t)
	ctx := context.Background()

	tokens, err := client.SignInWithPassword(ctx, "jefe@bomberos.cl", "secreto123")
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.Equal(t, identitytest.UserID("u123"), tokens.User.ID)
	require.False(t, tokens.ExpiresAt.IsZero())

	user, err := client.GetUser(ctx, tokens.AccessToken)
	require.NoError(t, err)
	require.Equal(t, identitytest.UserID("u123"), user.ID)
	require.Equal(t, "jefe@bomberos.cl", user.Email)
	require.Equal(t, 1, srv.Calls("/auth/v1/user"))
}

func TestSignInRejectsBadPassword(t *testing.T) {
	client, _ := newClient(t)
	_, err := client.SignInWithPassword(context.Background(), "jefe@bomberos.cl", "incorrecta")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestGetUserRejectsUnknownToken(t *testing.T) {
	client, _ := newClient(t)
	_, err := client.GetUser(context.Background(), "not-a-jwt")
	require.ErrorIs(t, err, identity.ErrInvalidToken)
	require.False(t, identity.IsProviderError(err))
}

func TestGetUserEmptyTokenSkipsNetwork(t *testing.T) {
	client, srv := newClient(t)
	_, err := client.GetUser(context.Background(), "  ")
	require.ErrorIs(t, err, identity.ErrInvalidToken)
	require.Zero(t, srv.TotalCalls())
}

func TestSignOutRevokesToken(t *testing.T) {
	client, srv := newClient(t)
	ctx := context.Background()
	token := srv.IssueToken(identitytest.UserID("u123"))

	require.NoError(t, client.SignOut(ctx, token))
	_, err := client.GetUser(ctx, token)
	require.ErrorIs(t, err, identity.ErrInvalidToken)

	// Signing out twice is not an error.
	require.NoError(t, client.SignOut(ctx, token))
}

func TestProviderOutageIsProviderError(t *testing.T) {
	client, srv := newClient(t)
	srv.SetUnavailable(true)
	_, err := client.GetUser(context.Background(), srv.IssueToken(identitytest.UserID("u123")))
	require.Error(t, err)
	require.True(t, identity.IsProviderError(err))
	require.NotErrorIs(t, err, identity.ErrInvalidToken)
}

func TestAdminCreateAndDeleteUser(t *testing.T) {
	client, srv := newClient(t)
	admin := client.WithServiceKey(identitytest.ServiceKey)
	ctx := context.Background()

	user, err := admin.CreateUser(ctx, "mecanico@taller.cl", "clave-segura")
	require.NoError(t, err)
	require.NotEmpty(t, user.ID)
	require.True(t, srv.HasUser(user.ID))

	_, err = admin.CreateUser(ctx, "mecanico@taller.cl", "otra-clave")
	require.ErrorIs(t, err, identity.ErrEmailTaken)

	require.NoError(t, admin.DeleteUser(ctx, user.ID))
	require.False(t, srv.HasUser(user.ID))
	require.NoError(t, admin.DeleteUser(ctx, user.ID))
}

func TestAdminRequiresServiceKey(t *testing.T) {
	client, _ := newClient(t)
	_, err := client.CreateUser(context.Background(), "x@y.cl", "12345678")
	require.ErrorIs(t, err, identity.ErrAdminDisabled)
}

func TestCancelledContextStopsRequest(t *testing.T) {
	client, srv := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetUser(ctx, srv.IssueToken(identitytest.UserID("u123")))
	require.ErrorIs(t, err, context.Canceled)
	require.True(t, identity.IsProviderError(err))
	require.Zero(t, srv.TotalCalls())
}

func TestDeleteUserRejectsMalformedID(t *testing.T) {
	client, srv := newClient(t)
	err := client.WithServiceKey(identitytest.ServiceKey).DeleteUser(context.Background(), "not-a-uuid")
	require.Error(t, err)
	require.False(t, identity.IsProviderError(err))
	require.Zero(t, srv.TotalCalls())
}
