package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CITYINFO_AUTH_SECRET", testSecret)

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "Antwerp", cfg.Auth.RequiredTenant)
	assert.Equal(t, 20, cfg.API.MaxPageSize)
	assert.Equal(t, 10, cfg.API.DefaultPageSize)
	assert.Equal(t, int64(1<<20), cfg.API.MaxBodyBytes)
	assert.Equal(t, "admin@mycompany.com", cfg.Mail.To)
	assert.Empty(t, cfg.PostgresDSN)
	assert.Empty(t, cfg.Auth.Users)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CITYINFO_AUTH_SECRET", testSecret)
	t.Setenv("CITYINFO_AUTH_TOKEN_TTL", "15m")
	t.Setenv("CITYINFO_API_MAX_PAGE_SIZE", "50")
	t.Setenv("CITYINFO_PG_DSN", " postgres://localhost/cityinfo ")

	cfg, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, 50, cfg.API.MaxPageSize)
	assert.Equal(t, "postgres://localhost/cityinfo", cfg.PostgresDSN)
}

func TestLoadRejectsBadSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":       {},
		"short secret":         {"CITYINFO_AUTH_SECRET": "short"},
		"default over maximum": {"CITYINFO_AUTH_SECRET": testSecret, "CITYINFO_API_DEFAULT_PAGE_SIZE": "30"},
		"empty tenant":         {"CITYINFO_AUTH_SECRET": testSecret, "CITYINFO_AUTH_REQUIRED_TENANT": " "},
		"zero ttl":             {"CITYINFO_AUTH_SECRET": testSecret, "CITYINFO_AUTH_TOKEN_TTL": "0s"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load(New())
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoadStaticUsers(t *testing.T) {
	v := New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
auth:
  secret: 0123456789abcdef0123456789abcdef
  users:
    - id: 2
      username: emma
      first-name: Emma
      last-name: Peeters
      city: Antwerp
      password-hash: $2a$10$abcdefghijklmnopqrstuu
`)))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Len(t, cfg.Auth.Users, 1)
	assert.Equal(t, User{
		ID:           2,
		UserName:     "emma",
		FirstName:    "Emma",
		LastName:     "Peeters",
		City:         "Antwerp",
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuu",
	}, cfg.Auth.Users[0])
}

func TestValidateRejectsDuplicateUsers(t *testing.T) {
	t.Setenv("CITYINFO_AUTH_SECRET", testSecret)
	cfg, err := Load(New())
	require.NoError(t, err)

	cfg.Auth.Users = []User{
		{UserName: "Emma", PasswordHash: "x"},
		{UserName: "emma", PasswordHash: "y"},
	}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)

	cfg.Auth.Users = []User{{UserName: "emma"}}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
}

func TestBindFlags(t *testing.T) {
	t.Setenv("CITYINFO_AUTH_SECRET", testSecret)
	v := New()
	cmd := &cobra.Command{Use: "serve"}
	require.NoError(t, BindFlags(cmd, v))
	require.NoError(t, cmd.Flags().Parse([]string{"--http.addr=:9090", "--api.rate-per-second=2.5"}))

	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 2.5, cfg.API.RatePerSecond)
}
