package token

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMalformed is returned when a token cannot be parsed or lacks required claims.
	ErrMalformed = errors.New("token malformed")
	// ErrInvalidSignature is returned when the signature does not match the kind's secret.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrExpired is returned when the check time is at or after the token expiry.
	ErrExpired = errors.New("token expired")
	// ErrConfig is returned when the secret for a kind is not configured.
	ErrConfig = errors.New("token secret not configured")
)

// Kind selects the secret, TTL and audience used for a token.
type Kind uint8

const (
	// KindAccess tokens authenticate the browser against first-party routes.
	KindAccess Kind = iota
	// KindApp tokens are handed to embedded applications and their backends.
	KindApp
	// KindBilling tokens authenticate server-to-server calls to the billing service.
	KindBilling
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindApp:
		return "app"
	case KindBilling:
		return "billing"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Config holds per-kind secrets and lifetimes.
//
// A missing secret is not a construction error: Issue and Verify report
// ErrConfig for that kind, so a deployment that never mints billing tokens
// can omit the billing secret.
type Config struct {
	AccessSecret  []byte
	AppSecret     []byte
	BillingSecret []byte

	AccessTTL  time.Duration
	AppTTL     time.Duration
	BillingTTL time.Duration

	Issuer string
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Codec issues and verifies session tokens for every Kind.
//
// Codec is immutable after NewCodec and safe for concurrent use.
type Codec struct {
	secrets [kindCount][]byte
	ttls    [kindCount]time.Duration
	issuer  string
	now     func() time.Time
}

type tokenClaims struct {
	Claims
	jwt.RegisteredClaims
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL <= 0 || cfg.AppTTL <= 0 || cfg.BillingTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.BillingTTL > cfg.AccessTTL {
		return nil, errors.New("billing TTL must not exceed access TTL")
	}

	c := &Codec{
		issuer: strings.TrimSpace(cfg.Issuer),
		now:    cfg.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.secrets[KindAccess] = cloneBytes(cfg.AccessSecret)
	c.secrets[KindApp] = cloneBytes(cfg.AppSecret)
	c.secrets[KindBilling] = cloneBytes(cfg.BillingSecret)
	c.ttls[KindAccess] = cfg.AccessTTL
	c.ttls[KindApp] = cfg.AppTTL
	c.ttls[KindBilling] = cfg.BillingTTL

	for i := Kind(0); i < kindCount; i++ {
		for j := i + 1; j < kindCount; j++ {
			if len(c.secrets[i]) > 0 && bytes.Equal(c.secrets[i], c.secrets[j]) {
				return nil, fmt.Errorf("%s and %s tokens must use distinct secrets", i, j)
			}
		}
	}

	return c, nil
}

// TTL reports the configured lifetime for kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind >= kindCount {
		return 0
	}
	return c.ttls[kind]
}

// Issue signs claims as a token of the given kind.
func (c *Codec) Issue(claims Claims, kind Kind) (string, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return "", err
	}
	if kind == KindBilling {
		claims = claims.billingScope()
	}

	now := c.now()
	payload := tokenClaims{
		Claims: claims,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{kind.String()},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttls[kind])),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString(secret)
}

// Verify checks signature, audience and expiry and returns the claim set.
func (c *Codec) Verify(raw string, kind Kind) (*Payload, error) {
	secret, err := c.secret(kind)
	if err != nil {
		return nil, err
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(kind.String()),
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

	// The parser accepts now == exp; the contract treats that instant as expired.
	if !c.now().Before(payload.ExpiresAt) {
		return nil, ErrExpired
	}
	if err := payload.Claims.require(kind); err != nil {
		return nil, err
	}

	return payload, nil
}

func (c *Codec) secret(kind Kind) ([]byte, error) {
	if kind >= kindCount {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrConfig, uint8(kind))
	}
	if len(c.secrets[kind]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfig, kind)
	}
	return c.secrets[kind], nil
}

func parse(raw string, secret []byte, options []jwt.ParserOption) (*Payload, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrMalformed
	}

	parser := jwt.NewParser(options...)
	var out tokenClaims
	token, err := parser.ParseWithClaims(raw, &out, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	return out.payload(), nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidSubject):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}

func (t *tokenClaims) payload() *Payload {
	p := &Payload{
		Claims: t.Claims,
		ID:     t.RegisteredClaims.ID,
	}
	if t.IssuedAt != nil {
		p.IssuedAt = t.IssuedAt.Time
	}
	if t.ExpiresAt != nil {
		p.ExpiresAt = t.ExpiresAt.Time
	}
	return p
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
