package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/and161185/gophchat/internal/errs"
	"github.com/and161185/gophchat/internal/model"
	"github.com/and161185/gophchat/internal/repository"
)

const (
	// DefaultHistoryLimit is how many recent messages History returns by default.
	DefaultHistoryLimit = 100
	// MaxMessageLen bounds message content in runes.
	MaxMessageLen = 2000
)

// ChatService serves the shared message feed and the user roster.
type ChatService interface {
	// History returns the newest messages, oldest first.
	History(ctx context.Context) ([]model.Message, error)
	// Post stores a message by userID.
	Post(ctx context.Context, userID int64, content string) (model.Message, error)
	// Roster returns every user with the online flag.
	Roster(ctx context.Context) ([]model.RosterEntry, error)
}

// ChatServiceImpl is the ChatService over repositories.
type ChatServiceImpl struct {
	messages     repository.MessageRepository
	users        repository.UserRepository
	historyLimit int
}

var _ ChatService = (*ChatServiceImpl)(nil)

// NewChatService constructs ChatService; historyLimit <= 0 means DefaultHistoryLimit.
func NewChatService(messages repository.MessageRepository, users repository.UserRepository, historyLimit int) *ChatServiceImpl {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &ChatServiceImpl{messages: messages, users: users, historyLimit: historyLimit}
}

// History implements ChatService.
func (s *ChatServiceImpl) History(ctx context.Context) ([]model.Message, error) {
	return s.messages.ListRecent(ctx, repository.DefaultRoom, s.historyLimit)
}

// Post trims content and rejects it when empty or longer than MaxMessageLen.
func (s *ChatServiceImpl) Post(ctx context.Context, userID int64, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, fmt.Errorf("%w: empty message", errs.ErrValidation)
	}
	if n := utf8.RuneCountInString(content); n > MaxMessageLen {
		return model.Message{}, fmt.Errorf("%w: message has %d characters, limit is %d", errs.ErrValidation, n, MaxMessageLen)
	}
	return s.messages.Create(ctx, repository.DefaultRoom, userID, content)
}

// Roster implements ChatService.
func (s *ChatServiceImpl) Roster(ctx context.Context) ([]model.RosterEntry, error) {
	return s.users.List(ctx)
}
