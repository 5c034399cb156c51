package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const resourceAudience = "resource"

// IssueResource signs claims for a single cluster resource with that
// resource's own secret. The resource name is carried as the subject so the
// verifier can locate the secret with PeekUnverified.
func (c *Codec) IssueResource(claims Claims, resource string, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrConfig
	}
	if resource == "" || ttl <= 0 {
		return "", errors.New("resource name and ttl are required")
	}

	now := c.now()
	payload := tokenClaims{
		Claims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   resource,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{resourceAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
}

// VerifyResource verifies raw against a per-resource secret and checks that
// the token was minted for resource.
func (c *Codec) VerifyResource(raw string, secret []byte, resource string) (*Payload, error) {
	if len(secret) == 0 {
		return nil, ErrConfig
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(resourceAudience),
		jwt.WithSubject(resource),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}

	payload, err := parse(raw, secret, options)
	if err != nil {
		return nil, err
	}
	if !c.now().Before(payload.ExpiresAt) {
		return nil, ErrExpired
	}
	if payload.Claims.WorkspaceID == "" {
		return nil, ErrMalformed
	}
	return payload, nil
}
