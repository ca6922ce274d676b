// Package httpapi exposes the chat services over the REST API in internal/api.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/gophchat/internal/api"
	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/service"
)

// maxBody caps request bodies.
const maxBody = 64 << 10

// Server wires services into HTTP handlers.
type Server struct {
	auth         service.AuthService
	chat         service.ChatService
	log          *zap.Logger
	secureCookie bool
}

// Option configures a Server.
type Option func(*Server)

// WithSecureCookie marks the session cookie Secure (HTTPS only).
func WithSecureCookie(on bool) Option { return func(s *Server) { s.secureCookie = on } }

// New constructs a Server with injected services.
func New(auth service.AuthService, chat service.ChatService, log *zap.Logger, opts ...Option) *Server {
	s := &Server{auth: auth, chat: chat, log: log}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router returns the route table wrapped in recover and logging middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(Logging(s.log), Recover(s.log))

	r.HandleFunc(api.PathHealth, s.health).Methods(http.MethodGet)
	r.HandleFunc(api.PathRegister, s.register).Methods(http.MethodPost)
	r.HandleFunc(api.PathLogin, s.login).Methods(http.MethodPost)
	r.HandleFunc(api.PathLogout, s.logout).Methods(http.MethodPost)
	r.Handle(api.PathMe, s.requireAuth(s.me)).Methods(http.MethodGet)
	r.Handle(api.PathMessages, s.requireAuth(s.listMessages)).Methods(http.MethodGet)
	r.Handle(api.PathMessages, s.requireAuth(s.postMessage)).Methods(http.MethodPost)
	r.Handle(api.PathUsers, s.requireAuth(s.listUsers)).Methods(http.MethodGet)
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req api.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := s.auth.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, id)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.CredentialsRequest
	if !decode(w, r, &req) {
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Username, req.Password, remoteIP(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookie,
		Value:    tok.AccessToken,
		Path:     "/",
		Expires:  tok.ExpiresAt,
		MaxAge:   int(time.Until(tok.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	s.log.Info("login", zap.Int64("user_id", u.ID), zap.String("session_id", tok.SessionID.String()))
	writeJSON(w, http.StatusOK, u.Identity())
}

// logout always clears the cookie; a missing or invalid token is not an error.
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if tok := sessionToken(r); tok != "" {
		if err := s.auth.Logout(r.Context(), tok); err != nil && !errors.Is(err, errs.ErrUnauthorized) {
			s.fail(w, r, err)
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     api.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	writeJSON(w, http.StatusOK, id)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.History(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var req api.PostMessageRequest
	if !decode(w, r, &req) {
		return
	}
	id, _ := IdentityFromCtx(r.Context())
	m, err := s.chat.Post(r.Context(), id.ID, req.Content)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	roster, err := s.chat.Roster(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

// requireAuth resolves the session token and stores the identity in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := sessionToken(r)
		if tok == "" {
			writeJSONError(w, http.StatusUnauthorized, "not logged in")
			return
		}
		id, err := s.auth.Authenticate(r.Context(), tok)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		next(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

// sessionToken takes the token from the session cookie, or from "Authorization: Bearer".
func sessionToken(r *http.Request) string {
	if ck, err := r.Cookie(api.SessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) >= 7 && strings.EqualFold(v[:7], "bearer ") {
		return strings.TrimSpace(v[7:])
	}
	return ""
}

// fail maps service errors to HTTP statuses. Unexpected errors are logged and hidden.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	switch code {
	case http.StatusUnauthorized:
		msg = "unauthorized"
	case http.StatusInternalServerError:
		s.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		msg = "internal"
	}
	writeJSONError(w, code, msg)
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, errs.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, api.ErrorResponse{Error: msg})
}
