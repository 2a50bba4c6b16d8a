package core

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/GameFinder/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrSessionNotFound = errors.New("session not found")

const idBytes = 16

// Registry maps live session ids to sessions. A session stays reachable
// from Create until its last peer detaches.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.SessionID]*Session
	newID    func() domain.SessionID
}

type Option func(*Registry)

// WithIDSource replaces the random id generator.
func WithIDSource(fn func() domain.SessionID) Option {
	return func(r *Registry) { r.newID = fn }
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[domain.SessionID]*Session),
		newID:    RandomID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RandomID returns the upper-case hex form of 16 random bytes.
func RandomID() domain.SessionID {
	var buf [idBytes]byte
	_, _ = rand.Read(buf[:])
	return domain.SessionID(strings.ToUpper(hex.EncodeToString(buf[:])))
}

// Create inserts a session under a fresh id, drawing again on collision.
func (r *Registry) Create() *Session {
	for {
		id := r.newID()

		r.mu.Lock()
		if _, taken := r.sessions[id]; taken {
			r.mu.Unlock()
			log.Warn().Str("module", "core.registry").Str("session", string(id)).Msg("id collision, retrying")
			continue
		}
		s := newSession(id, r.remove)
		r.sessions[id] = s
		n := len(r.sessions)
		r.mu.Unlock()

		log.Info().Str("module", "core.registry").Str("session", string(id)).Int("live", n).Msg("session created")
		return s
	}
}

func (r *Registry) Lookup(id domain.SessionID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// remove forgets s. Only the session itself calls it, from Detach.
func (r *Registry) remove(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.id]; ok && cur == s {
		delete(r.sessions, s.id)
		log.Info().Str("module", "core.registry").Str("session", string(s.id)).Int("live", len(r.sessions)).Msg("session disposed")
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) IDs() []domain.SessionID {
	r.mu.RLock()
	ids := lo.Keys(r.sessions)
	r.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
