package frame

import (
	"encoding/json"
	"errors"
)

// APIName names a cross-frame operation.
type APIName string

const (
	// APIMasterInit carries the session object. The master pushes it on
	// SetSession and answers it when a child asks.
	APIMasterInit APIName = "MASTER_INIT"
	// APIConnect is the child's handshake.
	APIConnect APIName = "SYSTEM_CONNECT"
	// APIDisconnect removes the child's registration on teardown.
	APIDisconnect APIName = "SYSTEM_DISCONNECT"
	// APIGetUserInfo returns the signed-in user.
	APIGetUserInfo APIName = "USER_GETINFO"
)

// AnyOrigin as a target origin matches every window.
const AnyOrigin = "*"

var (
	ErrTimeout     = errors.New("frame: request timed out")
	ErrClosed      = errors.New("frame: endpoint closed")
	ErrNoParent    = errors.New("frame: window is not embedded")
	ErrNoSession   = errors.New("frame: no session")
	ErrUnsupported = errors.New("frame: unsupported api")
)

// Message is the envelope exchanged between windows.
type Message struct {
	APIName      APIName         `json:"apiName"`
	AppKey       string          `json:"appKey,omitempty"`
	AppName      string          `json:"appName,omitempty"`
	ClientOrigin string          `json:"clientOrigin,omitempty"`
	Location     string          `json:"location,omitempty"`
	RequestID    string          `json:"requestId,omitempty"`
	Data         json.RawMessage `json:"data,omitempty"`
	Error        string          `json:"error,omitempty"`
}

func (m Message) clone() Message {
	if len(m.Data) > 0 {
		data := make(json.RawMessage, len(m.Data))
		copy(data, m.Data)
		m.Data = data
	}
	return m
}

// RemoteError is a failure reported by the master.
type RemoteError struct {
	API     APIName
	Message string
}

func (e *RemoteError) Error() string {
	return "frame: " + string(e.API) + ": " + e.Message
}

// UserInfo is the user shown by embedded apps.
type UserInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar,omitempty"`
	Namespace string `json:"nsid,omitempty"`
}

// SessionObject is what the master holds after sign-in.
type SessionObject struct {
	Token        string          `json:"token"`
	AppToken     string          `json:"appToken"`
	Kubeconfig   string          `json:"kubeconfig"`
	User         UserInfo        `json:"user"`
	Subscription json.RawMessage `json:"subscription,omitempty"`
}

func (s SessionObject) String() string { return "session(redacted)" }

func (s SessionObject) GoString() string { return s.String() }
