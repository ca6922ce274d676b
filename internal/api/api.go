// Package api holds the REST contract shared by the HTTP transport and the backend handlers.
package api

// Routes.
const (
	PathHealth   = "/health"
	PathMe       = "/api/me"
	PathRegister = "/api/register"
	PathLogin    = "/api/login"
	PathLogout   = "/api/logout"
	PathMessages = "/api/messages"
	PathUsers    = "/api/users"
)

// SessionCookie carries the session token.
const SessionCookie = "session"

// CredentialsRequest is the body of register and login.
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PostMessageRequest is the body of a message post.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}
