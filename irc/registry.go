package irc

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

var (
	// ErrNicknameInUse is returned when a nickname belongs to another session
	ErrNicknameInUse = errors.New("nickname is already in use")
	// ErrNoSuchNick is returned when a nickname is not registered
	ErrNoSuchNick = errors.New("no such nick")
	// ErrNoNickname is returned when a session has not set a nickname yet
	ErrNoNickname = errors.New("no nickname given")
	// ErrErroneousNickname is returned for nicknames that would be read as
	// a channel name
	ErrErroneousNickname = errors.New("erroneous nickname")
	// ErrSessionClosed is returned when a released session tries to claim
	// a nickname
	ErrSessionClosed = errors.New("session closed")
)

// Registry holds every online nickname and every channel membership.
// A single lock guards both maps so that a mutation and the membership
// read that follows it are observed as one step by other sessions.
// Operations that feed a broadcast return sessions resolved under the
// same lock hold, never names to be looked up later.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]*Session            // nickname -> session
	channels map[string]map[string]struct{} // channel -> member nicknames
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		clients:  make(map[string]*Session),
		channels: make(map[string]map[string]struct{}),
	}
}

// RegisterNick installs nick for s. If s already held a nickname, the old
// mapping is replaced and its channel memberships follow the new name.
func (r *Registry) RegisterNick(nick string, s *Session) error {
	if nick == "" {
		return ErrNoNickname
	}
	if strings.HasPrefix(nick, ChannelSigil) {
		return ErrErroneousNickname
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if s.released {
		return ErrSessionClosed
	}

	if owner, exists := r.clients[nick]; exists {
		if owner != s {
			return ErrNicknameInUse
		}
		return nil
	}

	oldNick := s.Nick()
	if oldNick != "" && r.clients[oldNick] == s {
		delete(r.clients, oldNick)
		for _, members := range r.channels {
			if _, ok := members[oldNick]; ok {
				delete(members, oldNick)
				members[nick] = struct{}{}
			}
		}
	}

	r.clients[nick] = s
	s.setNick(nick)
	return nil
}

// Unregister removes the session's nickname and all of its channel
// memberships. It returns the sessions that could see s just before the
// removal: every member of every channel s belonged to, s included.
func (r *Registry) Unregister(s *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.unregisterLocked(s)
}

// Release unregisters s for good. Once released, s can no longer claim a
// nickname, so a handler racing the close cannot leave an entry behind.
func (r *Registry) Release(s *Session) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	s.released = true
	return r.unregisterLocked(s)
}

func (r *Registry) unregisterLocked(s *Session) []*Session {
	nick := s.Nick()
	if nick == "" || r.clients[nick] != s {
		return nil
	}

	peers := r.resolveLocked(r.visibleLocked(nick))
	for _, members := range r.channels {
		delete(members, nick)
	}
	delete(r.clients, nick)
	return peers
}

// VisibleTo returns every member of every channel nick belongs to, nick
// included when it is in at least one channel.
func (r *Registry) VisibleTo(nick string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.visibleLocked(nick)
}

// VisibleSessions is VisibleTo resolved to sessions under one lock hold
func (r *Registry) VisibleSessions(nick string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.resolveLocked(r.visibleLocked(nick))
}

// JoinChannel adds nick to channel, creating the channel when needed, and
// returns the membership right after the join as names and as sessions.
func (r *Registry) JoinChannel(channel, nick string) ([]string, []*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.clients[nick]; !exists {
		return nil, nil, ErrNoSuchNick
	}

	members, exists := r.channels[channel]
	if !exists {
		members = make(map[string]struct{})
		r.channels[channel] = members
	}
	members[nick] = struct{}{}

	names := setToSorted(members)
	return names, r.resolveLocked(names), nil
}

// LeaveChannel removes nick from channel. It reports whether nick was a
// member and, if so, the sessions that were members just before the
// removal.
func (r *Registry) LeaveChannel(channel, nick string) ([]*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, exists := r.channels[channel]
	if !exists {
		return nil, false
	}
	if _, isMember := members[nick]; !isMember {
		return nil, false
	}

	before := r.resolveLocked(setToSorted(members))
	delete(members, nick)
	return before, true
}

// MembersOf returns a snapshot of a channel's members in sorted order
func (r *Registry) MembersOf(channel string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return setToSorted(r.channels[channel])
}

// MemberSessions returns the sessions of a channel's members in nickname
// order
func (r *Registry) MemberSessions(channel string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.resolveLocked(setToSorted(r.channels[channel]))
}

// ChannelsContaining returns the sorted names of the channels nick is in
func (r *Registry) ChannelsContaining(nick string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for name, members := range r.channels {
		if _, ok := members[nick]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Lookup returns the session registered under nick
func (r *Registry) Lookup(nick string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.clients[nick]
	return s, ok
}

// Snapshot returns a copy of all channel memberships
func (r *Registry) Snapshot() map[string][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	channels := make(map[string][]string, len(r.channels))
	for name, members := range r.channels {
		channels[name] = setToSorted(members)
	}
	return channels
}

// Sessions returns every session holding a nickname
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make([]*Session, 0, len(r.clients))
	for _, s := range r.clients {
		sessions = append(sessions, s)
	}
	return sessions
}

// Counts returns the number of registered nicknames and known channels
func (r *Registry) Counts() (clients, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.clients), len(r.channels)
}

func (r *Registry) visibleLocked(nick string) []string {
	visible := make(map[string]struct{})
	for _, members := range r.channels {
		if _, ok := members[nick]; !ok {
			continue
		}
		for member := range members {
			visible[member] = struct{}{}
		}
	}
	return setToSorted(visible)
}

func (r *Registry) resolveLocked(nicks []string) []*Session {
	sessions := make([]*Session, 0, len(nicks))
	for _, nick := range nicks {
		if s, ok := r.clients[nick]; ok {
			sessions = append(sessions, s)
		}
	}
	return sessions
}

func setToSorted(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
