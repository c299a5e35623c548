package assistant

import (
	"context"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ricesearch/support-context/internal/chatcontext"
	apperrors "github.com/ricesearch/support-context/internal/pkg/errors"
	"github.com/ricesearch/support-context/internal/pkg/logger"
)

// ContextBuilder supplies ranked sources for a question.
type ContextBuilder interface {
	BuildContext(ctx context.Context, req chatcontext.Request) (*chatcontext.Result, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (*Completion, error)
}

// Answer is a grounded reply. Citation [n] in Text refers to Sources[n-1].
type Answer struct {
	SessionID string                      `json:"session_id,omitempty"`
	Text      string                      `json:"text"`
	Sources   []chatcontext.ContextSource `json:"sources"`
	Provider  string                      `json:"provider"`
	Model     string                      `json:"model"`
}

// SessionStore keeps the last context used in each session for a limited time.
type SessionStore struct {
	items *gocache.Cache
}

// NewSessionStore creates a store whose entries expire after ttl.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SessionStore{items: gocache.New(ttl, ttl/2)}
}

// Put replaces the session's context.
func (s *SessionStore) Put(sessionID string, result *chatcontext.Result) {
	s.items.SetDefault(sessionID, result)
}

// Get returns the session's last context.
func (s *SessionStore) Get(sessionID string) (*chatcontext.Result, bool) {
	v, ok := s.items.Get(sessionID)
	if !ok {
		return nil, false
	}
	return v.(*chatcontext.Result), true
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	return s.items.ItemCount()
}

// Service answers questions.
type Service struct {
	contexts  ContextBuilder
	generator Generator
	sessions  *SessionStore
	log       *logger.Logger
}

// NewService creates an assistant service. sessions may be nil.
func NewService(contexts ContextBuilder, generator Generator, sessions *SessionStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{
		contexts:  contexts,
		generator: generator,
		sessions:  sessions,
		log:       log.WithComponent("assistant"),
	}
}

// Answer builds context for question, asks the generator and remembers the
// context for the session.
func (s *Service) Answer(ctx context.Context, sessionID, question string) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.ValidationError("question is required")
	}

	result, err := s.contexts.BuildContext(ctx, chatcontext.Request{Query: question, SessionID: sessionID})
	if err != nil {
		return nil, err
	}
	if s.sessions != nil && sessionID != "" {
		s.sessions.Put(sessionID, result)
	}

	if s.generator == nil {
		return nil, apperrors.New(apperrors.CodeUnavailable, "no completion provider configured")
	}

	completion, err := s.generator.Generate(ctx, RenderPrompt(question, result.Sources))
	if err != nil {
		s.log.WithContext(ctx).WithSession(sessionID).WithError(err).Error("Answer generation failed")
		return nil, err
	}

	return &Answer{
		SessionID: sessionID,
		Text:      completion.Text,
		Sources:   result.Sources,
		Provider:  completion.Provider,
		Model:     completion.Model,
	}, nil
}

// LastContext returns the context most recently used for a session.
func (s *Service) LastContext(sessionID string) (*chatcontext.Result, bool) {
	if s.sessions == nil {
		return nil, false
	}
	return s.sessions.Get(sessionID)
}
