// Package service contains the application services behind the chat HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	pkgcrypto "github.com/and161185/gophchat/internal/crypto"
	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/limiter"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

// MaxUsernameLen bounds usernames in runes.
const MaxUsernameLen = 32

// AuthService registers accounts and manages login sessions.
type AuthService interface {
	// Register creates a new account.
	Register(ctx context.Context, username, password string) (model.Identity, error)
	// LoginWithIP applies rate limiting, checks credentials and opens a session.
	LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error)
	// Authenticate resolves a session token to the identity it belongs to.
	Authenticate(ctx context.Context, token string) (model.Identity, error)
	// Logout revokes the session behind token.
	Logout(ctx context.Context, token string) error
}

// AuthServiceImpl is the AuthService over repositories and a limiter.
type AuthServiceImpl struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	signKey    []byte
	sessionTTL time.Duration
	lim        limiter.Limiter
	log        *zap.Logger
	now        func() time.Time
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService constructs AuthService with required dependencies. A nil limiter never blocks.
func NewAuthService(users repository.UserRepository, sessions repository.SessionRepository, signKey []byte, sessionTTL time.Duration, lim limiter.Limiter, log *zap.Logger) *AuthServiceImpl {
	if lim == nil {
		lim = limiter.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthServiceImpl{
		users:      users,
		sessions:   sessions,
		signKey:    signKey,
		sessionTTL: sessionTTL,
		lim:        lim,
		log:        log,
		now:        time.Now,
	}
}

// Register validates credentials, hashes the password and stores the user.
func (s *AuthServiceImpl) Register(ctx context.Context, username, password string) (model.Identity, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return model.Identity{}, err
	}
	if password == "" {
		return model.Identity{}, fmt.Errorf("%w: empty password", errs.ErrValidation)
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return model.Identity{}, err
	}
	u := &model.User{Username: username, PwdHash: hash}
	if err := s.users.Create(ctx, u); err != nil {
		return model.Identity{}, err
	}
	s.log.Info("user registered", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u.Identity(), nil
}

func validateUsername(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty username", errs.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		return fmt.Errorf("%w: username longer than %d characters", errs.ErrValidation, MaxUsernameLen)
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: username contains whitespace", errs.ErrValidation)
	}
	return nil
}

// LoginWithIP authenticates with rate limiting by (username, ip) and marks the user online.
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, username, password, ip string) (model.Tokens, model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return model.Tokens{}, model.User{}, fmt.Errorf("%w: empty username or password", errs.ErrValidation)
	}
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, username, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if err != nil || !s.passwordOK(password, u.PwdHash) {
		if blocked, _, ferr := s.lim.Failure(ctx, username, ipHash); ferr != nil {
			s.log.Warn("record login failure", zap.Error(ferr))
		} else if blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	if err := s.lim.Success(ctx, username, ipHash); err != nil {
		s.log.Warn("reset login limiter", zap.Error(err))
	}

	tokens, err := s.openSession(ctx, u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if err := s.users.SetOnline(ctx, u.ID, true); err != nil {
		return model.Tokens{}, model.User{}, err
	}
	u.IsOnline = true
	return tokens, *u, nil
}

func (s *AuthServiceImpl) passwordOK(password, encoded string) bool {
	ok, err := pkgcrypto.VerifyPassword(password, encoded)
	if err != nil {
		s.log.Error("stored password hash unreadable", zap.Error(err))
		return false
	}
	return ok
}

// openSession stores a session row and signs an HS256 token whose jti is the session ID.
func (s *AuthServiceImpl) openSession(ctx context.Context, userID int64) (model.Tokens, error) {
	sid, err := uuid.NewV4()
	if err != nil {
		return model.Tokens{}, err
	}
	now := s.now()
	exp := now.Add(s.sessionTTL)
	if err := s.sessions.Create(ctx, &model.Session{ID: sid, UserID: userID, ExpiresAt: exp}); err != nil {
		return model.Tokens{}, err
	}
	claims := jwt.RegisteredClaims{
		ID:        sid.String(),
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: signed, SessionID: sid, ExpiresAt: exp}, nil
}

// Authenticate verifies the token signature and expiry and that its session is still active.
func (s *AuthServiceImpl) Authenticate(ctx context.Context, token string) (model.Identity, error) {
	sid, userID, err := s.parse(token, true)
	if err != nil {
		return model.Identity{}, err
	}
	sess, err := s.sessions.Get(ctx, sid)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Identity{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Identity{}, err
	}
	if sess.UserID != userID || sess.RevokedAt != nil || !s.now().Before(sess.ExpiresAt) {
		return model.Identity{}, errs.ErrUnauthorized
	}
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return model.Identity{}, errs.ErrUnauthorized
	}
	if err != nil {
		return model.Identity{}, err
	}
	return u.Identity(), nil
}

// Logout revokes the session and marks the user offline once no other session is active.
// An expired but correctly signed token still revokes its session.
func (s *AuthServiceImpl) Logout(ctx context.Context, token string) error {
	sid, userID, err := s.parse(token, false)
	if err != nil {
		return err
	}
	if err := s.sessions.Revoke(ctx, sid); err != nil {
		return err
	}
	n, err := s.sessions.CountActive(ctx, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		if err := s.users.SetOnline(ctx, userID, false); err != nil && !errors.Is(err, errs.ErrNotFound) {
			return err
		}
	}
	s.log.Debug("session revoked", zap.String("session_id", sid.String()), zap.Int64("user_id", userID), zap.Int("active", n))
	return nil
}

// parse checks the HS256 signature of token and returns its session and user IDs.
func (s *AuthServiceImpl) parse(token string, checkExpiry bool) (uuid.UUID, int64, error) {
	if token == "" {
		return uuid.Nil, 0, errs.ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.signKey, nil }, opts...)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: %v", errs.ErrUnauthorized, err)
	}
	sid, err := uuid.FromString(claims.ID)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: bad session id", errs.ErrUnauthorized)
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return uuid.Nil, 0, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return sid, userID, nil
}
