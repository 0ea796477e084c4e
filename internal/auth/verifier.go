package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Verifier checks access tokens issued by the identity service. Only the
// subject claim is used: it must be the shopper's UUID.
type Verifier struct {
	secret    []byte
	validator TokenValidator
	now       func() time.Time
}

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	Secret    string
	Issuer    string
	Audience  string
	ClockSkew time.Duration
	Now       func() time.Time
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("auth: secret is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret: []byte(cfg.Secret),
		validator: TokenValidator{
			Issuer:    cfg.Issuer,
			Audience:  cfg.Audience,
			ClockSkew: cfg.ClockSkew,
			Algorithm: jwa.HS256,
		},
		now: now,
	}, nil
}

// ParseAccessToken validates an access token and returns its subject.
func (v *Verifier) ParseAccessToken(token string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return uuid.Nil, unauthorized("missing token", nil)
	}
	algorithm, err := extractTokenAlgorithm(trimmed)
	if err != nil {
		return uuid.Nil, unauthorized("invalid token", err)
	}
	if algorithm != v.validator.Algorithm {
		return uuid.Nil, unauthorized("invalid token", fmt.Errorf("unexpected token algorithm %s", algorithm))
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(algorithm, v.secret), jwt.WithValidate(false))
	if err != nil {
		return uuid.Nil, unauthorized("invalid token", err)
	}
	if err := v.validator.Validate(parsed, algorithm, v.now()); err != nil {
		return uuid.Nil, unauthorized("invalid token", err)
	}
	userID, err := uuid.Parse(parsed.Subject())
	if err != nil {
		return uuid.Nil, unauthorized("invalid token subject", err)
	}
	return userID, nil
}

// Issue signs a token for userID. It backs local tooling and tests; production
// tokens come from the identity service.
func (v *Verifier) Issue(userID uuid.UUID, ttl time.Duration) (string, error) {
	now := v.now()
	builder := jwt.NewBuilder().
		Subject(userID.String()).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.validator.Issuer != "" {
		builder = builder.Issuer(v.validator.Issuer)
	}
	if v.validator.Audience != "" {
		builder = builder.Audience([]string{v.validator.Audience})
	}
	tok, err := builder.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(v.validator.Algorithm, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func unauthorized(msg string, err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", msg, http.StatusUnauthorized, err)
}

func extractTokenAlgorithm(token string) (jwa.SignatureAlgorithm, error) {
	message, err := jws.ParseString(token)
	if err != nil {
		return "", err
	}
	signatures := message.Signatures()
	if len(signatures) == 0 {
		return "", errors.New("auth: token contains no signatures")
	}
	var algorithm jwa.SignatureAlgorithm
	for _, sig := range signatures {
		headers := sig.ProtectedHeaders()
		if headers == nil {
			return "", errors.New("auth: token missing protected headers")
		}
		alg := headers.Algorithm()
		if alg == "" {
			return "", errors.New("auth: token missing algorithm")
		}
		if alg == jwa.NoSignature {
			return "", errors.New("auth: token uses none algorithm")
		}
		if algorithm == "" {
			algorithm = alg
			continue
		}
		if algorithm != alg {
			return "", errors.New("auth: token has mixed algorithms")
		}
	}
	return algorithm, nil
}
