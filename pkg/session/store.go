package session

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is a single utterance. Immutable once appended.
type Turn struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the ordered history for one user.
type Session struct {
	UserID     int64
	Turns      []Turn
	CreatedAt  time.Time
	LastActive time.Time
}

// Store is an in-memory map from user id to conversation history.
// The map itself is guarded by mu; per-user guards serialize the full
// read-modify-append cycle for a single user so concurrent messages from
// the same user cannot interleave their appends.
type Store struct {
	mu       sync.RWMutex
	sessions map[int64]*Session

	guards   map[int64]*sync.Mutex
	guardsMu sync.Mutex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[int64]*Session),
		guards:   make(map[int64]*sync.Mutex),
	}
}

// Guard returns the mutex that serializes message handling for a user.
// Callers hold it across the whole window-generate-append sequence.
func (s *Store) Guard(userID int64) *sync.Mutex {
	s.guardsMu.Lock()
	defer s.guardsMu.Unlock()

	if g, ok := s.guards[userID]; ok {
		return g
	}
	g := &sync.Mutex{}
	s.guards[userID] = g
	return g
}

// GetOrCreate returns the session for userID, creating an empty one if absent.
func (s *Store) GetOrCreate(userID int64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(userID)
}

func (s *Store) getOrCreateLocked(userID int64) *Session {
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	now := time.Now()
	sess := &Session{
		UserID:     userID,
		CreatedAt:  now,
		LastActive: now,
	}
	s.sessions[userID] = sess
	log.Debug().Int64("user_id", userID).Msg("Session created")
	return sess
}

// Append adds a turn to the user's session, creating the session if needed.
func (s *Store) Append(userID int64, speaker Speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.getOrCreateLocked(userID)
	sess.Turns = append(sess.Turns, Turn{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	})
	sess.LastActive = time.Now()
}

// Window returns a copy of the last n turns for userID, oldest first.
// Fewer turns are returned if the history is shorter; a missing session
// yields an empty slice without creating one.
func (s *Store) Window(userID int64, n int) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok || n <= 0 {
		return nil
	}

	turns := sess.Turns
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}

	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len returns the number of turns recorded for userID.
func (s *Store) Len(userID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return 0
	}
	return len(sess.Turns)
}

// Reset clears the history for userID and returns the cleared turns so the
// caller can archive them. Idempotent; resetting an unknown user is a no-op.
func (s *Store) Reset(userID int64) []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil
	}

	cleared := sess.Turns
	now := time.Now()
	sess.Turns = nil
	sess.CreatedAt = now
	sess.LastActive = now

	log.Debug().Int64("user_id", userID).Int("turns", len(cleared)).Msg("Session reset")
	return cleared
}

// Evict removes the session and its guard entirely. Used by the sweeper;
// the caller must hold the user's guard.
func (s *Store) Evict(userID int64) []Turn {
	s.mu.Lock()
	sess, ok := s.sessions[userID]
	var cleared []Turn
	if ok {
		cleared = sess.Turns
		delete(s.sessions, userID)
	}
	s.mu.Unlock()

	s.guardsMu.Lock()
	delete(s.guards, userID)
	s.guardsMu.Unlock()

	return cleared
}

// LastActive reports when the user's session last changed.
func (s *Store) LastActive(userID int64) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return time.Time{}, false
	}
	return sess.LastActive, true
}

// Users returns the ids of all live sessions, sorted for stable iteration.
func (s *Store) Users() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]int64, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
