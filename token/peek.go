package token

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Unverified holds routing hints decoded from a token whose signature has
// NOT been checked. It deliberately exposes no Claims value: its only use is
// to locate a second, independent secret that is then verified.
type Unverified struct {
	namespace  string
	subject    string
	userCrName string
}

// Namespace is the workspace the token claims to be scoped to.
func (u Unverified) Namespace() string { return u.namespace }

// Subject is the resource name carried in the registered "sub" claim.
func (u Unverified) Subject() string { return u.subject }

// UserCrName is the identity's in-cluster name as claimed by the token.
func (u Unverified) UserCrName() string { return u.userCrName }

// PeekUnverified decodes raw without verifying its signature or expiry.
func PeekUnverified(raw string) (Unverified, error) {
	if strings.TrimSpace(raw) == "" {
		return Unverified{}, ErrMalformed
	}

	var out tokenClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &out); err != nil {
		return Unverified{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	return Unverified{
		namespace:  out.WorkspaceID,
		subject:    out.Subject,
		userCrName: out.UserCrName,
	}, nil
}
