package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sarisari/backend/internal/config"
	"sarisari/backend/internal/httpapi"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: "short"}))
	assert.Error(t, validateSecurityConfig(config.Config{}))
	assert.Error(t, validateSecurityConfig(config.Config{AuthSecret: strongSecret, AllowedOrigin: "*", LogMode: "production"}))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, AllowedOrigin: "https://pos.example.ph", LogMode: "production"})
	assert.NoError(t, err)
}

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	t.Setenv("AUTH_SECRET", strongSecret)

	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	require.NoError(t, app.Run([]string{"sarisari", "token", "--user", "usr-admin", "--role", "admin"}))

	token := strings.TrimSpace(strings.SplitN(out.String(), "\n", 2)[0])
	actor, err := httpapi.NewAuthManager(strongSecret, time.Hour).ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "usr-admin", actor.UserID)
	assert.Equal(t, "admin", actor.Role)
}

func TestTokenCommandRefusesWeakSecret(t *testing.T) {
	t.Setenv("AUTH_SECRET", "weak")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	assert.Error(t, app.Run([]string{"sarisari", "token"}))
}

func TestMigrateRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	app := newApp()
	app.Writer = &bytes.Buffer{}
	assert.Error(t, app.Run([]string{"sarisari", "migrate", "up"}))
}
