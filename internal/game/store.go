package game

import (
	"sort"
	"sync"
)

// Store holds in-flight sessions keyed by ID, plus an index from participant
// to the session they were last placed in.
type Store struct {
	mu            sync.RWMutex
	sessions      map[string]*Session
	byParticipant map[string]string
}

func NewStore() *Store {
	return &Store{
		sessions:      make(map[string]*Session),
		byParticipant: make(map[string]string),
	}
}

func (st *Store) Add(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
	for _, p := range s.Players {
		if !p.Bot {
			st.byParticipant[p.ID] = s.ID
		}
	}
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s := st.sessions[id]
	if s == nil {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove deletes the session and stops any timer it still owns.
func (st *Store) Remove(id string) bool {
	st.mu.Lock()
	s := st.sessions[id]
	if s != nil {
		delete(st.sessions, id)
		for _, p := range s.Players {
			if st.byParticipant[p.ID] == id {
				delete(st.byParticipant, p.ID)
			}
		}
	}
	st.mu.Unlock()
	if s == nil {
		return false
	}
	s.mu.Lock()
	s.stopTimersLocked()
	s.mu.Unlock()
	return true
}

// ActiveFor returns the unfinished session the participant is playing in.
func (st *Store) ActiveFor(participantID string) (*Session, bool) {
	st.mu.RLock()
	s := st.sessions[st.byParticipant[participantID]]
	st.mu.RUnlock()
	if s == nil || s.Phase() == PhaseFinished {
		return nil, false
	}
	return s, true
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Views returns every session, newest first.
func (st *Store) Views() []SessionView {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()
	out := make([]SessionView, 0, len(all))
	for _, s := range all {
		out = append(out, s.View())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Close stops every session timer. Sessions stay readable.
func (st *Store) Close() {
	st.mu.RLock()
	all := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		all = append(all, s)
	}
	st.mu.RUnlock()
	for _, s := range all {
		s.mu.Lock()
		s.stopTimersLocked()
		s.mu.Unlock()
	}
}
