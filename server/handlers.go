package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/MrEthical07/deskauth"
	"github.com/MrEthical07/deskauth/billing"
	"github.com/MrEthical07/deskauth/middleware"
	"github.com/MrEthical07/deskauth/token"
)

type sessionResponse struct {
	Namespace  string       `json:"namespace"`
	User       token.Claims `json:"user"`
	Kubeconfig string       `json:"kubeconfig"`
	ExpiresAt  time.Time    `json:"expiresAt"`
}

type switchRequest struct {
	WorkspaceUID string `json:"workspaceUid"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.opts.HealthTimeout)
	defer cancel()
	if err := s.broker.Ping(ctx); err != nil {
		s.log.Error(err, "health check failed")
		middleware.WriteError(w, deskauth.ErrMembershipUnavailable)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, nil)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, deskauth.ErrUnauthorized)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, sessionResponse{
		Namespace:  sess.Namespace(),
		User:       sess.Claims,
		Kubeconfig: string(sess.Credential.Bytes()),
		ExpiresAt:  sess.ExpiresAt,
	})
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, deskauth.ErrUnauthorized)
		return
	}

	var req switchRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, s.opts.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.WorkspaceUID == "" {
		middleware.WriteError(w, deskauth.ErrInvalidRequest)
		return
	}

	pair, err := s.broker.SwitchWorkspace(r.Context(), sess.Claims, req.WorkspaceUID)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, pair)
}

func (s *Server) handleBilling(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.SessionFromContext(r.Context())
	if !ok {
		middleware.WriteError(w, deskauth.ErrUnauthorized)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		middleware.WriteError(w, deskauth.ErrInvalidRequest)
		return
	}
	var body interface{}
	if len(raw) > 0 {
		if !json.Valid(raw) {
			middleware.WriteError(w, deskauth.ErrInvalidRequest)
			return
		}
		body = json.RawMessage(raw)
	}

	path := mux.Vars(r)["path"]
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	var out json.RawMessage
	if err := s.opts.Billing.Do(r.Context(), sess.Claims, r.Method, path, body, &out); err != nil {
		var apiErr *billing.APIError
		if errors.As(err, &apiErr) {
			middleware.WriteMessage(w, apiErr.Status, apiErr.Message)
			return
		}
		if errors.Is(err, deskauth.ErrConfig) {
			middleware.WriteError(w, err)
			return
		}
		s.log.Error(err, "billing call failed", "path", path)
		middleware.WriteMessage(w, http.StatusBadGateway, "")
		return
	}

	var data interface{}
	if len(out) > 0 {
		data = out
	}
	middleware.WriteJSON(w, http.StatusOK, data)
}
