package deskauth

import (
	"time"

	"github.com/MrEthical07/deskauth/kubeconfig"
	"github.com/MrEthical07/deskauth/token"
)

// TokenCodec is the subset of [token.Codec] the broker mints and verifies
// with. Tests substitute counting or failing implementations.
type TokenCodec interface {
	Issue(claims token.Claims, kind token.Kind) (string, error)
	Verify(raw string, kind token.Kind) (*token.Payload, error)
}

// Session is the verified, namespace-scoped result of Authenticate.
type Session struct {
	Claims    token.Claims
	TokenID   string
	ExpiresAt time.Time
	// Credential is retargeted to Claims.WorkspaceID.
	Credential kubeconfig.Credential
}

// Namespace returns the workspace namespace the session is scoped to.
func (s *Session) Namespace() string {
	if s == nil {
		return ""
	}
	return s.Claims.WorkspaceID
}

// TokenPair is the access/app token unit. Both fields are set or the pair is nil.
type TokenPair struct {
	AccessToken string `json:"token"`
	AppToken    string `json:"appToken"`
}
