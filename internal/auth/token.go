package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenTTL = time.Hour

	// notBeforeSkew tolerates small clock drift between issuer and verifier.
	notBeforeSkew = 5 * time.Second
)

// Claims is the JWT payload minted by Issuer.
type Claims struct {
	UserName string `json:"user_name"`
	City     string `json:"city"`
	jwt.RegisteredClaims
}

// TokenConfig carries the shared signing parameters for issuer and verifier.
type TokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (c TokenConfig) validate() error {
	if len(c.Secret) == 0 {
		return ErrMissingSigningKey
	}
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrInvalidInput)
	}
	if strings.TrimSpace(c.Audience) == "" {
		return fmt.Errorf("%w: audience is required", ErrInvalidInput)
	}
	return nil
}

// Option configures Issuer and Verifier.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(o *options) {
		if fn != nil {
			o.now = fn
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Issuer validates credentials and mints signed HS256 tokens.
type Issuer struct {
	identities IdentitySource
	cfg        TokenConfig
	now        func() time.Time
}

// NewIssuer builds an issuer. A missing secret is a configuration error.
func NewIssuer(identities IdentitySource, cfg TokenConfig, opts ...Option) (*Issuer, error) {
	if identities == nil {
		return nil, fmt.Errorf("%w: identity source is required", ErrInvalidInput)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTokenTTL
	}
	o := buildOptions(opts)
	return &Issuer{identities: identities, cfg: cfg, now: o.now}, nil
}

// TTL reports the lifetime applied to issued tokens.
func (i *Issuer) TTL() time.Duration { return i.cfg.TTL }

// Issue checks the credential and returns a signed token. Rejected credentials
// yield ErrUnauthenticated.
func (i *Issuer) Issue(ctx context.Context, cred Credential) (Token, error) {
	identity, err := i.identities.Validate(ctx, cred)
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return Token{}, err
		}
		return Token{}, fmt.Errorf("validate credentials: %w", err)
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.cfg.TTL)
	claims := Claims{
		UserName: identity.UserName,
		City:     identity.Tenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.cfg.Issuer,
			Subject:   strconv.Itoa(identity.UserID),
			Audience:  jwt.ClaimStrings{i.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Raw: signed, IssuedAt: now, ExpiresAt: exp, Identity: identity}, nil
}

// Verifier checks inbound tokens against the shared secret. It performs no I/O.
type Verifier struct {
	cfg    TokenConfig
	now    func() time.Time
	parser *jwt.Parser
}

// NewVerifier builds a verifier for tokens minted with the same TokenConfig.
func NewVerifier(cfg TokenConfig, opts ...Option) (*Verifier, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &Verifier{
		cfg: cfg,
		now: o.now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Verify checks, in order, structure, signature, issuer, audience and expiry, and
// stops at the first failure. Malformed tokens wrap ErrMalformedToken, expired ones
// ErrTokenExpired, and signature/issuer/audience mismatches ErrUnauthenticated.
func (v *Verifier) Verify(token string) (ClaimSet, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ClaimSet{}, ErrMalformedToken
	}
	if _, _, err := v.parser.ParseUnverified(token, &Claims{}); err != nil {
		return ClaimSet{}, ErrMalformedToken
	}

	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.cfg.Secret, nil
	})
	if err != nil || !parsed.Valid {
		return ClaimSet{}, rejected("signature")
	}

	if claims.Issuer != v.cfg.Issuer {
		return ClaimSet{}, rejected("issuer")
	}
	if !slices.Contains(claims.Audience, v.cfg.Audience) {
		return ClaimSet{}, rejected("audience")
	}
	if claims.ExpiresAt == nil {
		return ClaimSet{}, ErrMalformedToken
	}
	now := v.now()
	if !now.Before(claims.ExpiresAt.Time) {
		return ClaimSet{}, ErrTokenExpired
	}
	if claims.NotBefore != nil && now.Add(notBeforeSkew).Before(claims.NotBefore.Time) {
		return ClaimSet{}, rejected("not yet valid")
	}

	return NewClaimSet(map[string]string{
		ClaimSubject:  claims.Subject,
		ClaimUserName: claims.UserName,
		ClaimTenant:   claims.City,
		ClaimIssuer:   claims.Issuer,
		ClaimAudience: v.cfg.Audience,
		ClaimTokenID:  claims.ID,
	}), nil
}

func rejected(reason string) error {
	return fmt.Errorf("%w: %w: %s", ErrUnauthenticated, ErrInvalidToken, reason)
}
