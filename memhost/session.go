package memhost

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/magiclink"
	"github.com/google/uuid"
)

// Session is an in-memory magiclink.AuthSession.
type Session struct {
	id     string
	client magiclink.Client

	mu          sync.Mutex
	clientNotes map[string]string
	authNotes   map[string]string
	userNotes   map[string]string
	redirectURI string
	user        magiclink.User
	hasUser     bool
}

func (s *Session) ID() string { return s.id }

// Client returns the client the session was created for.
func (s *Session) Client() magiclink.Client { return s.client }

func (s *Session) SetClientNote(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientNotes[name] = value
}

func (s *Session) ClientNote(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientNotes[name]
}

// ClientNotes returns a copy of every client note.
func (s *Session) ClientNotes() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.clientNotes))
	for k, v := range s.clientNotes {
		out[k] = v
	}
	return out
}

func (s *Session) SetAuthNote(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authNotes[name] = value
}

func (s *Session) AuthNote(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authNotes[name]
}

func (s *Session) SetUserSessionNote(name, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userNotes[name] = value
}

func (s *Session) UserSessionNote(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userNotes[name]
}

func (s *Session) SetRedirectURI(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirectURI = uri
}

func (s *Session) RedirectURI() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.redirectURI
}

func (s *Session) SetAuthenticatedUser(user magiclink.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.hasUser = true
}

func (s *Session) AuthenticatedUser() (magiclink.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user, s.hasUser
}

// SessionFactory creates and remembers sessions.
type SessionFactory struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionFactory() *SessionFactory {
	return &SessionFactory{sessions: make(map[string]*Session)}
}

func (f *SessionFactory) NewAuthSession(_ context.Context, client magiclink.Client) (magiclink.AuthSession, error) {
	s := &Session{
		id:          uuid.NewString(),
		client:      client,
		clientNotes: make(map[string]string),
		authNotes:   make(map[string]string),
		userNotes:   make(map[string]string),
	}
	f.mu.Lock()
	f.sessions[s.id] = s
	f.mu.Unlock()
	return s, nil
}

// Session returns a session created by f.
func (f *SessionFactory) Session(id string) (*Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	return s, ok
}

// Len returns the number of sessions created.
func (f *SessionFactory) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

// ErrNoRedirect is returned by RedirectResolver for sessions without a
// validated redirect.
var ErrNoRedirect = errors.New("memhost: session has no redirect uri")

// RedirectResolver is a magiclink.NextStepResolver with no required actions:
// the next step is always the session's validated redirect.
type RedirectResolver struct{}

func (RedirectResolver) NextStep(_ context.Context, session magiclink.AuthSession, _ magiclink.User) (string, error) {
	if session == nil || session.RedirectURI() == "" {
		return "", ErrNoRedirect
	}
	return session.RedirectURI(), nil
}
