// Package debugsvc implements the stateful interactive debug session: a
// concurrency-safe store keyed by unguessable session IDs (C6) and a
// command interpreter walking each session's precomputed trace (C7).
package debugsvc

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/arc-self/codetrace/internal/trace"
)

// sessionIDBytes is the byte width of a session ID before hex-encoding,
// giving the 128-bit unguessable token spec.md §4.6 requires.
const sessionIDBytes = 16

// Session is a single debug session: an immutable precomputed trace, a
// cursor into it, and a mutable breakpoint set. Every field mutation goes
// through mu, which also serializes concurrent commands against the same
// session (spec.md §5).
type Session struct {
	mu sync.Mutex

	events      []trace.Event
	pointer     int
	breakpoints map[int]struct{}

	createdAt     time.Time
	lastTouchedAt time.Time
}

func newSession(events []trace.Event, breakpoints []int) *Session {
	bp := make(map[int]struct{}, len(breakpoints))
	for _, l := range breakpoints {
		bp[l] = struct{}{}
	}
	now := time.Now()
	return &Session{
		events:        events,
		pointer:       -1,
		breakpoints:   bp,
		createdAt:     now,
		lastTouchedAt: now,
	}
}

// Store is a process-wide, concurrency-safe map of session ID to Session.
// A single top-level mutex guards the map's structure (insert/lookup/
// delete); each Session carries its own mutex guarding its pointer and
// breakpoint set, so two different sessions never contend with each other.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore returns an empty, ready-to-use Store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Create registers a new session over a precomputed, immutable event
// sequence and returns its opaque ID.
func (s *Store) Create(events []trace.Event, breakpoints []int) (string, error) {
	id, err := generateSessionID()
	if err != nil {
		return "", fmt.Errorf("generating session id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = newSession(events, breakpoints)
	return id, nil
}

// Get returns the session for id, or (nil, false) if it does not exist.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

// Delete removes a session. It is a no-op for an unknown ID.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// EvictIdleSince removes every session whose lastTouchedAt precedes
// cutoff, returning the count evicted. Used by the ambient reaper
// (reaper.go); spec.md leaves session TTL unspecified, so this is purely a
// resource-hygiene measure, never a behavior user commands depend on.
func (s *Store) EvictIdleSince(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	evicted := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastTouchedAt.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live sessions, used in the reaper's sweep log.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func generateSessionID() (string, error) {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
