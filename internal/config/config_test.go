package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"MODE", "HTTP_ADDR", "DB_DRIVER", "ENABLE_AUTH", "ENABLE_GUEST_AUTH", "RETAKE_COOLDOWN", "RISK_MEDIUM_AT", "RISK_HIGH_AT", "CORS_ORIGINS_OFFLINE"} {
		t.Setenv(k, "")
	}
	c := FromEnv()
	assert.Equal(t, ModeOffline, c.Mode)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.False(t, c.EnableAuth)
	assert.True(t, c.EnableGuestAuth)
	assert.Equal(t, 15*time.Minute, c.RetakeCooldown)
	assert.Equal(t, 40, c.RiskMediumAt)
	assert.Equal(t, 70, c.RiskHighAt)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3010"}, c.CORSOrigins())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MODE", "online")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("RETAKE_COOLDOWN", "2m")
	t.Setenv("RISK_MEDIUM_AT", "35")
	t.Setenv("RISK_HIGH_AT", "not-a-number")
	t.Setenv("CORS_ORIGINS_ONLINE", " https://a.example , ,https://b.example")

	c := FromEnv()
	assert.Equal(t, ModeOnline, c.Mode)
	assert.True(t, c.EnableAuth, "online mode turns auth on unless overridden")
	assert.False(t, c.EnableGuestAuth)
	assert.Equal(t, "postgres", c.DBDriver)
	assert.Equal(t, 2*time.Minute, c.RetakeCooldown)
	assert.Equal(t, 35, c.RiskMediumAt)
	assert.Equal(t, 70, c.RiskHighAt)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.CORSOrigins())

	t.Setenv("ENABLE_AUTH", "false")
	assert.False(t, FromEnv().EnableAuth)
}
