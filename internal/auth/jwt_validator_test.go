package auth

import (
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"
)

func buildToken(t *testing.T, mutate func(b *jwt.Builder) *jwt.Builder) jwt.Token {
	t.Helper()
	now := time.Now()
	b := jwt.NewBuilder().
		Issuer("toko").
		Audience([]string{"checkout"}).
		Subject("5b0d3c3e-2f7a-4d1c-9c55-0d7f2a7f6e01").
		IssuedAt(now).
		NotBefore(now)
	if mutate != nil {
		b = mutate(b)
	}
	tok, err := b.Build()
	require.NoError(t, err)
	return tok
}

func TestTokenValidator(t *testing.T) {
	now := time.Now()
	v := TokenValidator{Issuer: "toko", Audience: "checkout", ClockSkew: time.Second, Algorithm: jwa.HS256}
	withExp := func(d time.Duration) func(*jwt.Builder) *jwt.Builder {
		return func(b *jwt.Builder) *jwt.Builder { return b.Expiration(now.Add(d)) }
	}

	require.NoError(t, v.Validate(buildToken(t, withExp(time.Minute)), jwa.HS256, now))

	cases := map[string]struct {
		tok jwt.Token
		alg jwa.SignatureAlgorithm
	}{
		"expired":        {buildToken(t, withExp(-time.Minute)), jwa.HS256},
		"no expiry":      {buildToken(t, nil), jwa.HS256},
		"wrong issuer":   {buildToken(t, func(b *jwt.Builder) *jwt.Builder { return withExp(time.Minute)(b).Issuer("other") }), jwa.HS256},
		"wrong audience": {buildToken(t, func(b *jwt.Builder) *jwt.Builder { return withExp(time.Minute)(b).Audience([]string{"admin"}) }), jwa.HS256},
		"no subject":     {buildToken(t, func(b *jwt.Builder) *jwt.Builder { return withExp(time.Minute)(b).Subject("") }), jwa.HS256},
		"not yet valid":  {buildToken(t, func(b *jwt.Builder) *jwt.Builder { return withExp(time.Hour)(b).NotBefore(now.Add(5 * time.Minute)) }), jwa.HS256},
		"algorithm":      {buildToken(t, withExp(time.Minute)), jwa.RS256},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Error(t, v.Validate(tc.tok, tc.alg, now))
		})
	}
}
