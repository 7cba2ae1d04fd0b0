package auth

import (
	"strconv"
	"time"
)

// Claim names carried in issued tokens. The tenant travels as "city".
const (
	ClaimSubject  = "sub"
	ClaimUserName = "user_name"
	ClaimTenant   = "city"
	ClaimIssuer   = "iss"
	ClaimAudience = "aud"
	ClaimTokenID  = "jti"
)

// Credential is the username/password pair presented to the authenticate endpoint.
type Credential struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// Identity is the result of a successful credential check.
type Identity struct {
	UserID    int
	UserName  string
	FirstName string
	LastName  string
	Tenant    string
}

// Token is a signed bearer token and the identity it was minted for.
type Token struct {
	Raw       string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Identity  Identity
}

// ClaimSet is a read-only view of verified token claims. The zero value is the
// unauthenticated (empty) set.
type ClaimSet struct {
	values map[string]string
}

// NewClaimSet copies values into a ClaimSet. Empty values are dropped.
func NewClaimSet(values map[string]string) ClaimSet {
	if len(values) == 0 {
		return ClaimSet{}
	}
	cp := make(map[string]string, len(values))
	for k, v := range values {
		if v == "" {
			continue
		}
		cp[k] = v
	}
	return ClaimSet{values: cp}
}

// Get returns the value of the named claim.
func (c ClaimSet) Get(name string) (string, bool) {
	v, ok := c.values[name]
	return v, ok
}

func (c ClaimSet) IsEmpty() bool { return len(c.values) == 0 }
func (c ClaimSet) Len() int      { return len(c.values) }

func (c ClaimSet) Subject() string  { return c.values[ClaimSubject] }
func (c ClaimSet) UserName() string { return c.values[ClaimUserName] }
func (c ClaimSet) Tenant() string   { return c.values[ClaimTenant] }

// UserID parses the subject claim. ok is false when the subject is missing or not numeric.
func (c ClaimSet) UserID() (id int, ok bool) {
	id, err := strconv.Atoi(c.Subject())
	if err != nil {
		return 0, false
	}
	return id, true
}

// Map returns a copy of the claims.
func (c ClaimSet) Map() map[string]string {
	out := make(map[string]string, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}
