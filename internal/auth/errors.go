package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken is the umbrella for every token verification failure.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrMalformedToken: the token is not a decodable JWT.
	ErrMalformedToken = fmt.Errorf("%w: malformed", ErrInvalidToken)
	// ErrTokenExpired: signature and audience are fine but the token is past exp.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrInvalidToken)

	ErrUnauthenticated   = errors.New("auth: unauthenticated")
	ErrForbidden         = errors.New("auth: forbidden")
	ErrMissingSigningKey = errors.New("auth: signing key is not configured")
	ErrInvalidInput      = errors.New("auth: invalid input")
	ErrUnknownPolicy     = errors.New("auth: unknown policy")
)
