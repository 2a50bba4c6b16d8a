package core

import (
	"maps"
	"slices"
	"sync"

	"github.com/dkeye/GameFinder/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Snapshot is a point-in-time copy of a session's voting state.
// It shares no memory with the session.
type Snapshot struct {
	ID          domain.SessionID
	Members     []domain.MemberID
	Unavailable []domain.MemberID
	Preferences map[domain.MemberID]map[domain.ItemID]domain.Preference
}

// Session is the authoritative in-memory state of one room.
//
// mu guards every field below it. Mutators return the peers attached at the
// moment of the change so the caller can fan out after the lock is released.
type Session struct {
	id domain.SessionID

	mu          sync.Mutex
	members     []domain.MemberID
	preferences map[domain.MemberID]map[domain.ItemID]domain.Preference
	unavailable map[domain.MemberID]struct{}
	peers       map[string]Peer
	disposed    bool

	onEmpty func(*Session)
}

func newSession(id domain.SessionID, onEmpty func(*Session)) *Session {
	return &Session{
		id:          id,
		members:     []domain.MemberID{},
		preferences: make(map[domain.MemberID]map[domain.ItemID]domain.Preference),
		unavailable: make(map[domain.MemberID]struct{}),
		peers:       make(map[string]Peer),
		onEmpty:     onEmpty,
	}
}

func (s *Session) ID() domain.SessionID { return s.id }

// Attach registers p and returns the state p must start from.
// A disposed session refuses new peers with ErrSessionNotFound.
//
// greet runs with the lock held, before p becomes visible to mutators, so
// whatever it queues on p precedes every later change. It must not block.
// If greet fails p is not attached.
func (s *Session) Attach(p Peer, greet func(Snapshot) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return Snapshot{}, ErrSessionNotFound
	}
	snap := s.snapshotLocked()
	if greet != nil {
		if err := greet(snap); err != nil {
			return snap, err
		}
	}
	s.peers[p.ID()] = p
	log.Info().Str("module", "core.session").Str("session", string(s.id)).Str("conn", p.ID()).Int("peers", len(s.peers)).Msg("peer attached")
	return snap, nil
}

// Detach removes p. The transition from one peer to none disposes the
// session; it reports whether this call did so.
func (s *Session) Detach(p Peer) bool {
	s.mu.Lock()
	if _, ok := s.peers[p.ID()]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.peers, p.ID())
	left := len(s.peers)
	if left == 0 {
		s.disposed = true
	}
	s.mu.Unlock()

	log.Info().Str("module", "core.session").Str("session", string(s.id)).Str("conn", p.ID()).Int("peers", left).Msg("peer detached")
	if left > 0 {
		return false
	}
	if s.onEmpty != nil {
		s.onEmpty(s)
	}
	return true
}

// ReplaceMembers swaps the whole member sequence and returns a copy of it.
func (s *Session) ReplaceMembers(members []domain.MemberID) ([]domain.MemberID, []Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members = slices.Clone(members)
	if s.members == nil {
		s.members = []domain.MemberID{}
	}
	return slices.Clone(s.members), s.peersLocked()
}

// SetUnavailable adds or removes member from the unavailable set. Repeating
// a call is a no-op on state.
func (s *Session) SetUnavailable(member domain.MemberID, unavailable bool) []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if unavailable {
		s.unavailable[member] = struct{}{}
	} else {
		delete(s.unavailable, member)
	}
	return s.peersLocked()
}

// SetPreference overwrites the member's preference for item, Unset included.
func (s *Session) SetPreference(member domain.MemberID, item domain.ItemID, p domain.Preference) []Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	inner, ok := s.preferences[member]
	if !ok {
		inner = make(map[domain.ItemID]domain.Preference)
		s.preferences[member] = inner
	}
	inner[item] = p
	return s.peersLocked()
}

// Preference reads back one entry; a missing entry is Unset.
func (s *Session) Preference(member domain.MemberID, item domain.ItemID) domain.Preference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.preferences[member][item]
}

func (s *Session) IsUnavailable(member domain.MemberID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unavailable[member]
	return ok
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Session) snapshotLocked() Snapshot {
	unavailable := lo.Keys(s.unavailable)
	slices.Sort(unavailable)

	prefs := make(map[domain.MemberID]map[domain.ItemID]domain.Preference, len(s.preferences))
	for member, inner := range s.preferences {
		prefs[member] = maps.Clone(inner)
	}
	return Snapshot{
		ID:          s.id,
		Members:     slices.Clone(s.members),
		Unavailable: unavailable,
		Preferences: prefs,
	}
}

func (s *Session) peersLocked() []Peer {
	return lo.Values(s.peers)
}
