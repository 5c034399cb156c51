package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/MrEthical07/deskauth"
)

// Envelope is the body of every response. Code mirrors the HTTP status.
type Envelope struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
}

// WriteJSON writes data inside a success envelope.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	writeEnvelope(w, Envelope{Code: status, Message: http.StatusText(status), Data: data})
}

// WriteError writes the generic envelope for err. Internal causes are never
// included.
func WriteError(w http.ResponseWriter, err error) {
	status := deskauth.HTTPStatus(err)
	writeEnvelope(w, Envelope{Code: status, Message: deskauth.PublicMessage(err)})
}

func writeEnvelope(w http.ResponseWriter, env Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(env.Code)
	_ = json.NewEncoder(w).Encode(env)
}

// WriteMessage writes an envelope with an explicit message and no data.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	if message == "" {
		message = http.StatusText(status)
	}
	writeEnvelope(w, Envelope{Code: status, Message: message})
}
