package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.Addr)
	require.Equal(t, EnvDevelopment, cfg.Environment)
	require.False(t, cfg.Production())
	require.Equal(t, "crewhub-dev-secret", cfg.TokenSecret)
	require.Equal(t, "crewhub", cfg.TokenIssuer)
	require.Equal(t, 15*time.Minute, cfg.AccessTTL)
	require.Equal(t, 30*24*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 5, cfg.LoginMaxAttempts)
	require.Equal(t, 15*time.Minute, cfg.LoginWindow)
	require.Equal(t, 3, cfg.SignupMaxAttempts)
	require.Equal(t, 60*time.Minute, cfg.SignupWindow)
	require.Equal(t, 5*time.Minute, cfg.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CREW_ADDR", ":9090")
	t.Setenv("CREW_LOG_LEVEL", "debug")
	t.Setenv("CREW_ACCESS_TTL", "5m")
	t.Setenv("CREW_REFRESH_TTL", "72h")
	t.Setenv("CREW_LOGIN_MAX_ATTEMPTS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Addr)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 5*time.Minute, cfg.AccessTTL)
	require.Equal(t, 72*time.Hour, cfg.RefreshTTL)
	require.Equal(t, 10, cfg.LoginMaxAttempts)
}

func TestLoadProductionRequiresSecret(t *testing.T) {
	t.Setenv("CREW_ENV", "production")

	_, err := Load()
	require.ErrorContains(t, err, "CREW_AUTH_SECRET")

	t.Setenv("CREW_AUTH_SECRET", "super-secret")
	cfg, err := Load()
	require.NoError(t, err)
	require.True(t, cfg.Production())
	require.Equal(t, "super-secret", cfg.TokenSecret)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"CREW_ENV":                "staging",
		"CREW_ACCESS_TTL":         "soon",
		"CREW_REFRESH_TTL":        "-1h",
		"CREW_LOGIN_MAX_ATTEMPTS": "zero",
		"CREW_SIGNUP_WINDOW":      "0s",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedTTLs(t *testing.T) {
	t.Setenv("CREW_ACCESS_TTL", "48h")
	t.Setenv("CREW_REFRESH_TTL", "24h")
	_, err := Load()
	require.ErrorContains(t, err, "CREW_ACCESS_TTL")
}
