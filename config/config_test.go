package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: "5433", DBName: "checkin", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5433/checkin?sslmode=disable", c.DSN())

	c.URL = "postgres://override"
	assert.Equal(t, "postgres://override", c.DSN())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SMTP_SECURE", "true")
	t.Setenv("ARCHIVE_INTERVAL", "30m")
	t.Setenv("PUBLIC_BASE_URL", "https://checkin.example.com/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.True(t, cfg.Email.SMTPSSL)
	assert.Equal(t, 30*time.Minute, cfg.Archive.Interval)
	assert.Equal(t, "https://checkin.example.com", cfg.App.PublicBaseURL)
}

func TestLoadRejectsNonPositiveJWTExpiry(t *testing.T) {
	t.Setenv("JWT_EXPIRE_HOURS", "0")
	_, err := Load()
	assert.Error(t, err)
}
