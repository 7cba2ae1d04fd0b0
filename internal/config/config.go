// Package config loads service settings from flags, environment and an optional
// config file through viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. CITYINFO_AUTH_SECRET.
const EnvPrefix = "CITYINFO"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	Auth        Auth
	API         API
	Mail        Mail
	Notify      Notify
}

type Auth struct {
	Secret         string
	Issuer         string
	Audience       string
	TokenTTL       time.Duration
	RequiredTenant string
	// Users switches authentication from the demo source to bcrypt-checked
	// static users when non-empty.
	Users []User
}

// User is one static account as written in a config file.
type User struct {
	ID           int    `mapstructure:"id"`
	UserName     string `mapstructure:"username"`
	FirstName    string `mapstructure:"first-name"`
	LastName     string `mapstructure:"last-name"`
	City         string `mapstructure:"city"`
	PasswordHash string `mapstructure:"password-hash"`
}

type API struct {
	MaxPageSize     int
	DefaultPageSize int
	MaxBodyBytes    int64
	RateBurst       int
	RatePerSecond   float64
}

type Mail struct {
	To   string
	From string
}

type Notify struct {
	QueueSize      int
	MaxRetries     int
	AttemptTimeout time.Duration
}

// opt is one flag-backed key.
type opt struct {
	key  string
	dflt any
	desc string
}

var opts = []opt{
	{"http.addr", ":8080", "listen address"},
	{"auth.secret", "", "HMAC key used to sign and verify tokens (required)"},
	{"auth.issuer", "https://localhost:7169", "token issuer"},
	{"auth.audience", "cityinfoapi", "token audience"},
	{"auth.token-ttl", time.Hour, "token lifetime"},
	{"auth.required-tenant", "Antwerp", "city claim required for point-of-interest routes"},
	{"api.max-page-size", 20, "upper bound for pageSize"},
	{"api.default-page-size", 10, "pageSize when none is given"},
	{"api.max-body-bytes", 1 << 20, "request body limit in bytes"},
	{"api.rate-burst", 10, "authenticate burst size"},
	{"api.rate-per-second", 5.0, "authenticate requests per second"},
	{"pg.dsn", "", "PostgreSQL DSN; empty selects the in-memory store"},
	{"mail.to", "admin@mycompany.com", "notification recipient"},
	{"mail.from", "noreply@mycompany.com", "notification sender"},
	{"notify.queue-size", 64, "pending notification capacity"},
	{"notify.max-retries", 3, "delivery retries per notification"},
	{"notify.attempt-timeout", 5 * time.Second, "timeout per delivery attempt"},
}

// New returns a viper instance with defaults and environment lookup configured.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, o := range opts {
		v.SetDefault(o.key, o.dflt)
	}
	return v
}

// BindFlags registers one flag per key on cmd and binds it into v.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	fs := cmd.Flags()
	for _, o := range opts {
		switch d := o.dflt.(type) {
		case string:
			fs.String(o.key, d, o.desc)
		case int:
			fs.Int(o.key, d, o.desc)
		case float64:
			fs.Float64(o.key, d, o.desc)
		case time.Duration:
			fs.Duration(o.key, d, o.desc)
		default:
			return fmt.Errorf("unsupported default %T for %s", o.dflt, o.key)
		}
		if err := v.BindPFlag(o.key, fs.Lookup(o.key)); err != nil {
			return err
		}
	}
	fs.String("config", "", "optional config file (yaml, toml or json)")
	return nil
}

// Load reads v into a Config and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		HTTPAddr:    v.GetString("http.addr"),
		PostgresDSN: strings.TrimSpace(v.GetString("pg.dsn")),
		Auth: Auth{
			Secret:         v.GetString("auth.secret"),
			Issuer:         strings.TrimSpace(v.GetString("auth.issuer")),
			Audience:       strings.TrimSpace(v.GetString("auth.audience")),
			TokenTTL:       v.GetDuration("auth.token-ttl"),
			RequiredTenant: strings.TrimSpace(v.GetString("auth.required-tenant")),
		},
		API: API{
			MaxPageSize:     v.GetInt("api.max-page-size"),
			DefaultPageSize: v.GetInt("api.default-page-size"),
			MaxBodyBytes:    v.GetInt64("api.max-body-bytes"),
			RateBurst:       v.GetInt("api.rate-burst"),
			RatePerSecond:   v.GetFloat64("api.rate-per-second"),
		},
		Mail: Mail{
			To:   v.GetString("mail.to"),
			From: v.GetString("mail.from"),
		},
		Notify: Notify{
			QueueSize:      v.GetInt("notify.queue-size"),
			MaxRetries:     v.GetInt("notify.max-retries"),
			AttemptTimeout: v.GetDuration("notify.attempt-timeout"),
		},
	}
	if err := v.UnmarshalKey("auth.users", &cfg.Auth.Users); err != nil {
		return Config{}, fmt.Errorf("%w: auth.users: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first problem found.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.HTTPAddr) == "":
		return fmt.Errorf("%w: http.addr is required", ErrInvalid)
	case c.Auth.Secret == "":
		return fmt.Errorf("%w: auth.secret is required", ErrInvalid)
	case len(c.Auth.Secret) < 32:
		return fmt.Errorf("%w: auth.secret must be at least 32 bytes", ErrInvalid)
	case c.Auth.Issuer == "" || c.Auth.Audience == "":
		return fmt.Errorf("%w: auth.issuer and auth.audience are required", ErrInvalid)
	case c.Auth.TokenTTL <= 0:
		return fmt.Errorf("%w: auth.token-ttl must be positive", ErrInvalid)
	case c.Auth.RequiredTenant == "":
		return fmt.Errorf("%w: auth.required-tenant is required", ErrInvalid)
	case c.API.MaxPageSize < 1:
		return fmt.Errorf("%w: api.max-page-size must be positive", ErrInvalid)
	case c.API.DefaultPageSize < 1 || c.API.DefaultPageSize > c.API.MaxPageSize:
		return fmt.Errorf("%w: api.default-page-size must be between 1 and api.max-page-size", ErrInvalid)
	case c.API.MaxBodyBytes < 1:
		return fmt.Errorf("%w: api.max-body-bytes must be positive", ErrInvalid)
	case c.API.RateBurst < 1 || c.API.RatePerSecond <= 0:
		return fmt.Errorf("%w: api.rate-burst and api.rate-per-second must be positive", ErrInvalid)
	case c.Notify.MaxRetries < 0:
		return fmt.Errorf("%w: notify.max-retries must not be negative", ErrInvalid)
	}
	seen := make(map[string]bool, len(c.Auth.Users))
	for i, u := range c.Auth.Users {
		name := strings.ToLower(strings.TrimSpace(u.UserName))
		if name == "" || u.PasswordHash == "" {
			return fmt.Errorf("%w: auth.users[%d] needs username and password-hash", ErrInvalid, i)
		}
		if seen[name] {
			return fmt.Errorf("%w: auth.users[%d] duplicates %q", ErrInvalid, i, u.UserName)
		}
		seen[name] = true
	}
	return nil
}
