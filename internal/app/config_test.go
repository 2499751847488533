package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSRF_SECRET", "csrf-secret")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.AppAddr)
	require.Equal(t, "/auth/login", cfg.LoginPath)
	require.Equal(t, "/unauthorized", cfg.UnauthorizedPath)
	require.Equal(t, 5, cfg.LowStockThreshold)
	require.Equal(t, 720*time.Hour, cfg.SessionTTL)
	require.Empty(t, cfg.SupabaseServiceKey)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRequiresIdentityProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPABASE_ANON_KEY", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRequiresCSRFSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CSRF_SECRET", "")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigRejectsThreshold(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOW_STOCK_THRESHOLD", "0")

	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOGIN_PATH", "/ingresar")
	t.Setenv("SUPABASE_TIMEOUT", "3s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.True(t, cfg.IsProduction())
	require.Equal(t, "/ingresar", cfg.LoginPath)
	require.Equal(t, 3*time.Second, cfg.SupabaseTimeout)
}
