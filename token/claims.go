package token

import (
	"fmt"
	"time"
)

// Claims is the session claim set carried by every token kind.
type Claims struct {
	UserID       string `json:"userId,omitempty"`
	UserUID      string `json:"userUid,omitempty"`
	UserCrName   string `json:"userCrName,omitempty"`
	UserCrUID    string `json:"userCrUid,omitempty"`
	WorkspaceID  string `json:"workspaceId,omitempty"`
	WorkspaceUID string `json:"workspaceUid,omitempty"`
	RegionUID    string `json:"regionUid,omitempty"`
}

// WithWorkspace returns a copy of c scoped to another workspace.
func (c Claims) WithWorkspace(id, uid string) Claims {
	c.WorkspaceID = id
	c.WorkspaceUID = uid
	return c
}

// billingScope strips everything the billing service does not need.
func (c Claims) billingScope() Claims {
	return Claims{
		UserID:  c.UserID,
		UserUID: c.UserUID,
	}
}

func (c Claims) require(kind Kind) error {
	if c.UserUID == "" {
		return fmt.Errorf("%w: missing userUid", ErrMalformed)
	}
	if kind != KindBilling && c.WorkspaceID == "" {
		return fmt.Errorf("%w: missing workspaceId", ErrMalformed)
	}
	return nil
}

// Payload is a verified claim set together with its validity window.
type Payload struct {
	Claims    Claims
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
