package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var (
	errMissingExpiry  = jwt.NewValidationError(errors.New(`"exp" claim is required`))
	errMissingSubject = jwt.NewValidationError(errors.New(`"sub" claim is required`))
)

// TokenValidator holds the claim policy for access tokens. Tokens must carry
// exp and sub; iss and aud are checked only when configured.
type TokenValidator struct {
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Algorithm jwa.SignatureAlgorithm
}

// Validate checks tok, signed with algorithm, as of now.
func (v TokenValidator) Validate(tok jwt.Token, algorithm jwa.SignatureAlgorithm, now time.Time) error {
	if tok == nil {
		return errors.New("auth: token is nil")
	}
	if algorithm == "" || (v.Algorithm != "" && algorithm != v.Algorithm) {
		return fmt.Errorf("auth: unexpected token algorithm %q", algorithm)
	}

	opts := []jwt.ValidateOption{
		jwt.WithClock(jwt.ClockFunc(func() time.Time { return now })),
		jwt.WithAcceptableSkew(v.ClockSkew),
		jwt.WithValidator(jwt.ValidatorFunc(requireExpiryAndSubject)),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	return jwt.Validate(tok, opts...)
}

func requireExpiryAndSubject(_ context.Context, tok jwt.Token) jwt.ValidationError {
	if tok.Expiration().IsZero() {
		return errMissingExpiry
	}
	if tok.Subject() == "" {
		return errMissingSubject
	}
	return nil
}
