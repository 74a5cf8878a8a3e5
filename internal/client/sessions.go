package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levelup-hq/levelup/internal/models"
)

// TransientIDPrefix marks a session that exists only as an optimistic local
// placeholder. Entries carrying it are replaced or removed once the server
// round-trip completes.
const TransientIDPrefix = "pending-"

// IsTransientID reports whether id denotes a not-yet-server-confirmed session.
func IsTransientID(id string) bool {
	return strings.HasPrefix(id, TransientIDPrefix)
}

// newClientSessionID generates a client-local session ID used to correlate an
// optimistic placeholder with the session the server eventually creates.
func newClientSessionID() string {
	return fmt.Sprintf("%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// SessionStore maintains the ordered list of chat sessions and the currently
// selected session, keeping both consistent with the server. Mutations are
// applied optimistically and reconciled against a full refetch of the
// authoritative list; the server is never assumed to have a single writer.
type SessionStore struct {
	mu         sync.Mutex
	sessions   []models.ChatSession
	selectedID string
	onChange   func()

	api      API
	notifier Notifier
	logger   *slog.Logger
}

// NewSessionStore creates a SessionStore on top of the given API boundary.
func NewSessionStore(api API, notifier Notifier, logger *slog.Logger) *SessionStore {
	return &SessionStore{
		api:      api,
		notifier: notifier,
		logger:   logger.With(slog.String("module", "sessions")),
	}
}

// SetOnChange registers a callback invoked after every state change, so a view
// layer can re-render.
func (s *SessionStore) SetOnChange(fn func()) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *SessionStore) publish() {
	s.mu.Lock()
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Sessions returns a copy of the current session list.
func (s *SessionStore) Sessions() []models.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ChatSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

// SelectedID returns the currently selected session ID, or an empty string
// when no session exists yet.
func (s *SessionStore) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// Select makes the given session the active one.
func (s *SessionStore) Select(id string) {
	s.mu.Lock()
	s.selectedID = id
	s.mu.Unlock()
	s.publish()
}

// Load fetches the session list from the server and replaces the local one.
// On failure the stale list is kept, so the sidebar never flashes empty; the
// failure is surfaced as a notification only.
func (s *SessionStore) Load(ctx context.Context) {
	sessions, err := s.api.ListSessions(ctx)
	if err != nil {
		s.logger.Error("Failed to load sessions", slog.String("err", err.Error()))
		s.notifier.Error("Failed to load chat sessions")
		return
	}

	s.mu.Lock()
	s.sessions = sessions
	if !s.selectedIn(sessions) && len(sessions) > 0 {
		s.selectedID = sessions[0].ID
	}
	s.mu.Unlock()
	s.publish()
}

// selectedIn reports whether the current selection appears in the given list.
// Callers must hold s.mu.
func (s *SessionStore) selectedIn(sessions []models.ChatSession) bool {
	for _, session := range sessions {
		if session.ID == s.selectedID {
			return true
		}
	}
	return false
}

// Create starts a new session. A transient placeholder is prepended and
// selected before any network I/O, then the server-assigned session replaces
// it once the creation round-trip and list refetch complete. On failure every
// transient entry is removed and the first remaining real session is selected.
func (s *SessionStore) Create(ctx context.Context) {
	clientID := newClientSessionID()

	s.mu.Lock()
	placeholder := models.ChatSession{
		ID:   TransientIDPrefix + clientID,
		Name: models.DefaultSessionName,
	}
	s.sessions = append([]models.ChatSession{placeholder}, s.sessions...)
	s.selectedID = placeholder.ID
	s.mu.Unlock()
	s.publish()

	assignedID, err := s.api.CreateSession(ctx, clientID)
	if err == nil {
		var sessions []models.ChatSession
		sessions, err = s.api.ListSessions(ctx)
		if err == nil {
			s.mu.Lock()
			s.sessions = sessions
			s.selectedID = s.resolveCreated(sessions, assignedID, clientID)
			s.mu.Unlock()
			s.publish()
			return
		}
	}

	s.logger.Error("Failed to create session", slog.String("err", err.Error()))

	s.mu.Lock()
	kept := s.sessions[:0]
	for _, session := range s.sessions {
		if !IsTransientID(session.ID) {
			kept = append(kept, session)
		}
	}
	s.sessions = kept
	if !s.selectedIn(kept) {
		s.selectedID = ""
		if len(kept) > 0 {
			s.selectedID = kept[0].ID
		}
	}
	s.mu.Unlock()
	s.notifier.Error("Failed to create chat session")
	s.publish()
}

// resolveCreated picks the freshly created session out of the refetched list.
// The server echoes the ID it assigned, so an exact match is preferred; the
// substring fallback covers servers that embed the client ID in a composed
// one. Callers must hold s.mu.
func (s *SessionStore) resolveCreated(sessions []models.ChatSession, assignedID, clientID string) string {
	for _, session := range sessions {
		if session.ID == assignedID {
			return session.ID
		}
	}
	for _, session := range sessions {
		if strings.Contains(session.ID, clientID) {
			return session.ID
		}
	}
	if len(sessions) > 0 {
		return sessions[0].ID
	}
	return ""
}

// Delete removes a session. On success the list is refetched; deleting the
// selected session moves the selection to the first entry of the new list. On
// failure local state is left untouched.
func (s *SessionStore) Delete(ctx context.Context, id string) {
	if err := s.api.DeleteSession(ctx, id); err != nil {
		s.logger.Error("Failed to delete session",
			slog.String("sessionID", id),
			slog.String("err", err.Error()))
		s.notifier.Error("Failed to delete chat session")
		return
	}

	sessions, err := s.api.ListSessions(ctx)
	if err != nil {
		// The delete itself went through; fall back to dropping the entry
		// locally until the next successful refetch.
		s.logger.Error("Failed to refetch sessions after delete", slog.String("err", err.Error()))
		s.mu.Lock()
		kept := s.sessions[:0]
		for _, session := range s.sessions {
			if session.ID != id {
				kept = append(kept, session)
			}
		}
		sessions = kept
		s.mu.Unlock()
	}

	s.mu.Lock()
	s.sessions = sessions
	if s.selectedID == id || !s.selectedIn(sessions) {
		s.selectedID = ""
		if len(sessions) > 0 {
			s.selectedID = sessions[0].ID
		}
	}
	s.mu.Unlock()
	s.publish()
}

// Rename updates the session name locally and persists it. The local rename
// is kept even when persistence fails, so the user's edit survives until the
// next full refetch.
func (s *SessionStore) Rename(ctx context.Context, id, name string) {
	s.ApplyName(id, name)

	if err := s.api.RenameSession(ctx, id, name); err != nil {
		s.logger.Error("Failed to persist session rename",
			slog.String("sessionID", id),
			slog.String("err", err.Error()))
		s.notifier.Error("Failed to save chat name")
	}
}

// ApplyName updates the in-memory name of a session without any server
// round-trip. The streaming consumer uses it to reflect auto-generated names.
func (s *SessionStore) ApplyName(id, name string) {
	s.mu.Lock()
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Name = name
			break
		}
	}
	s.mu.Unlock()
	s.publish()
}
