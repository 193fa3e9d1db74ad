// Package store holds the client-side projection of chats, messages, and
// chat membership. It is updated only through events flowing in from the
// session manager or directory responses; the UI reads snapshots.
package store

import (
	"sync"

	"github.com/letterpet/client-go/internal/domain"
)

// State is one immutable snapshot of the projection. Mutations never touch
// a published snapshot; they build a new one, so readers may hold a State
// across concurrent updates.
type State struct {
	Chats []domain.Chat
	// Messages holds all messages across chats, most recent first.
	Messages []domain.Message
	// Members caches per-chat member lists, filled lazily on first access.
	Members   map[string][]string
	Connected bool
	Loading   bool
}

// MessagesFor returns the messages of one chat, preserving the
// most-recent-first order of the full list.
func (s State) MessagesFor(chatID string) []domain.Message {
	var out []domain.Message
	for _, m := range s.Messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

// HasMembers reports whether the member list for a chat has been fetched.
func (s State) HasMembers(chatID string) bool {
	_, ok := s.Members[chatID]
	return ok
}

// Store serializes all mutations behind one lock and publishes snapshots
// by atomic replace.
type Store struct {
	mu      sync.RWMutex
	state   State
	changes chan struct{}
}

// New creates an empty store.
func New() *Store {
	return &Store{
		state:   State{Members: map[string][]string{}},
		changes: make(chan struct{}, 1),
	}
}

// Snapshot returns the current state. The returned value must be treated
// as read-only.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Changes signals that the snapshot was replaced. Notifications are
// coalesced; a receiver is guaranteed to observe the latest snapshot, not
// every intermediate one.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

// SetLoading marks the initial-data fetch in flight.
func (s *Store) SetLoading(loading bool) {
	s.mutate(func(st *State) {
		st.Loading = loading
	})
}

// SetConnected records the session connection flag.
func (s *Store) SetConnected(connected bool) {
	s.mutate(func(st *State) {
		st.Connected = connected
	})
}

// ReplaceAll installs a freshly fetched chat list and message history,
// as delivered by the directory service on (re)connect.
func (s *Store) ReplaceAll(chats []domain.Chat, messages []domain.Message) {
	s.mutate(func(st *State) {
		st.Chats = chats
		st.Messages = messages
	})
}

// PrependMessage inserts a newly pushed message at the head of the list.
func (s *Store) PrependMessage(m domain.Message) {
	s.mutate(func(st *State) {
		next := make([]domain.Message, 0, len(st.Messages)+1)
		next = append(next, m)
		next = append(next, st.Messages...)
		st.Messages = next
	})
}

// AppendChat adds a chat to the end of the chat list.
func (s *Store) AppendChat(c domain.Chat) {
	s.mutate(func(st *State) {
		next := make([]domain.Chat, 0, len(st.Chats)+1)
		next = append(next, st.Chats...)
		next = append(next, c)
		st.Chats = next
	})
}

// RemoveChat drops a chat from the chat list. Unknown ids are ignored.
func (s *Store) RemoveChat(chatID string) {
	s.mutate(func(st *State) {
		next := make([]domain.Chat, 0, len(st.Chats))
		for _, c := range st.Chats {
			if c.ID != chatID {
				next = append(next, c)
			}
		}
		st.Chats = next
	})
}

// SetMembers installs the fetched member list for a chat.
func (s *Store) SetMembers(chatID string, members []string) {
	s.mutate(func(st *State) {
		st.Members = cloneMembers(st.Members)
		st.Members[chatID] = members
	})
}

// AddMember appends a member to a chat's cached list. A chat whose member
// list was never fetched is left untouched; it will be populated on the
// next explicit fetch.
func (s *Store) AddMember(chatID, username string) {
	s.mutate(func(st *State) {
		current, ok := st.Members[chatID]
		if !ok {
			return
		}
		next := make([]string, 0, len(current)+1)
		next = append(next, current...)
		next = append(next, username)
		st.Members = cloneMembers(st.Members)
		st.Members[chatID] = next
	})
}

// RemoveMember drops a member from a chat's cached list. When the removed
// member is the local identity the chat itself is removed from the chat
// list, since the server no longer considers this client a member.
func (s *Store) RemoveMember(chatID, username string, isLocalIdentity bool) {
	s.mutate(func(st *State) {
		if current, ok := st.Members[chatID]; ok {
			next := make([]string, 0, len(current))
			for _, m := range current {
				if m != username {
					next = append(next, m)
				}
			}
			st.Members = cloneMembers(st.Members)
			st.Members[chatID] = next
		}
		if !isLocalIdentity {
			return
		}
		chats := make([]domain.Chat, 0, len(st.Chats))
		for _, c := range st.Chats {
			if c.ID != chatID {
				chats = append(chats, c)
			}
		}
		st.Chats = chats
	})
}

func (s *Store) mutate(fn func(*State)) {
	s.mu.Lock()
	next := s.state
	fn(&next)
	s.state = next
	s.mu.Unlock()

	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func cloneMembers(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
