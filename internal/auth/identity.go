package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// IdentitySource resolves a credential to an Identity. Implementations return an
// error wrapping ErrUnauthenticated for rejected credentials.
type IdentitySource interface {
	Validate(ctx context.Context, cred Credential) (Identity, error)
}

// DemoIdentitySource accepts any non-empty username and maps it to a fixed demo
// user. Passwords are not checked.
type DemoIdentitySource struct {
	// Tenant assigned to every identity; defaults to "Antwerp".
	Tenant string
}

func (d DemoIdentitySource) Validate(_ context.Context, cred Credential) (Identity, error) {
	name := strings.TrimSpace(cred.UserName)
	if name == "" {
		return Identity{}, fmt.Errorf("%w: username is required", ErrUnauthenticated)
	}
	tenant := d.Tenant
	if tenant == "" {
		tenant = DefaultTenant
	}
	return Identity{
		UserID:    1,
		UserName:  name,
		FirstName: "Kevin",
		LastName:  "Dockx",
		Tenant:    tenant,
	}, nil
}

// StaticUser is one configured account of a StaticIdentitySource.
type StaticUser struct {
	Identity     Identity
	PasswordHash string
}

// StaticIdentitySource checks credentials against a fixed set of bcrypt-hashed users.
type StaticIdentitySource struct {
	users map[string]StaticUser
}

// NewStaticIdentitySource indexes users by lower-cased username.
func NewStaticIdentitySource(users []StaticUser) (*StaticIdentitySource, error) {
	idx := make(map[string]StaticUser, len(users))
	for _, u := range users {
		key := strings.ToLower(strings.TrimSpace(u.Identity.UserName))
		if key == "" {
			return nil, fmt.Errorf("%w: static user without username", ErrInvalidInput)
		}
		if u.PasswordHash == "" {
			return nil, fmt.Errorf("%w: static user %q has no password hash", ErrInvalidInput, key)
		}
		if _, dup := idx[key]; dup {
			return nil, fmt.Errorf("%w: duplicate static user %q", ErrInvalidInput, key)
		}
		idx[key] = u
	}
	return &StaticIdentitySource{users: idx}, nil
}

func (s *StaticIdentitySource) Validate(_ context.Context, cred Credential) (Identity, error) {
	key := strings.ToLower(strings.TrimSpace(cred.UserName))
	if key == "" || cred.Password == "" {
		return Identity{}, ErrUnauthenticated
	}
	u, ok := s.users[key]
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(cred.Password)); err != nil {
		return Identity{}, ErrUnauthenticated
	}
	return u.Identity, nil
}

// HashPassword produces the bcrypt hash expected in StaticUser.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}
