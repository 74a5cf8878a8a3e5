package client

import (
	"context"
	"io"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/levelup-hq/levelup/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAPI is an in-memory API implementation for store and consumer tests.
// Error fields make the corresponding operation fail; counters record how
// often each operation ran.
type fakeAPI struct {
	mu sync.Mutex

	sessions []models.ChatSession
	history  map[string][]models.Message
	name     string

	listErr    error
	createErr  error
	deleteErr  error
	renameErr  error
	historyErr error
	nameErr    error

	// echoMismatch makes CreateSession return an ID that never appears in
	// the session list, forcing clients onto their fallback correlation.
	echoMismatch bool
	lastClientID string

	listCalls    int
	historyCalls int
	streamCalls  int
	nameCalls    int
	renamedTo    map[string]string

	streamChunks []string
	streamErr    error

	// When set, StreamChat closes streamStarted once dispatched and then
	// blocks until streamGate is closed.
	streamGate    chan struct{}
	streamStarted chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		history:   make(map[string][]models.Message),
		renamedTo: make(map[string]string),
	}
}

func (f *fakeAPI) ListSessions(context.Context) ([]models.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]models.ChatSession, len(f.sessions))
	copy(out, f.sessions)
	return out, nil
}

func (f *fakeAPI) CreateSession(_ context.Context, sessionID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.lastClientID = sessionID
	id := "1-" + sessionID
	f.sessions = append([]models.ChatSession{{ID: id, Name: models.DefaultSessionName}}, f.sessions...)
	if f.echoMismatch {
		return "bogus", nil
	}
	return id, nil
}

func (f *fakeAPI) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	kept := f.sessions[:0]
	for _, session := range f.sessions {
		if session.ID != sessionID {
			kept = append(kept, session)
		}
	}
	f.sessions = kept
	delete(f.history, sessionID)
	return nil
}

func (f *fakeAPI) RenameSession(_ context.Context, sessionID, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.renameErr != nil {
		return f.renameErr
	}
	f.renamedTo[sessionID] = name
	return nil
}

func (f *fakeAPI) GenerateName(_ context.Context, _ string, _ []models.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nameCalls++
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.name, nil
}

func (f *fakeAPI) History(_ context.Context, sessionID string) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls++
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	out := make([]models.Message, len(f.history[sessionID]))
	copy(out, f.history[sessionID])
	return out, nil
}

// StreamChat replays the configured chunks and, on clean completion, records
// the exchange in the session's history the way the real server would.
func (f *fakeAPI) StreamChat(_ context.Context, message, sessionID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		f.streamCalls++
		chunks := f.streamChunks
		streamErr := f.streamErr
		started := f.streamStarted
		f.streamStarted = nil
		gate := f.streamGate
		f.mu.Unlock()

		if started != nil {
			close(started)
		}
		if gate != nil {
			<-gate
		}

		var reply string
		for _, chunk := range chunks {
			if !yield(chunk, nil) {
				return
			}
			reply += chunk
		}
		if streamErr != nil {
			yield("", streamErr)
			return
		}

		f.mu.Lock()
		f.history[sessionID] = append(f.history[sessionID],
			models.Message{Role: models.RoleUser, Content: message, Timestamp: time.Now()},
			models.Message{Role: models.RoleAssistant, Content: reply, Timestamp: time.Now()},
		)
		f.mu.Unlock()
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (n *recordingNotifier) Info(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.infos = append(n.infos, message)
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, message)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.errors))
	copy(out, n.errors)
	return out
}

func (n *recordingNotifier) Infos() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.infos))
	copy(out, n.infos)
	return out
}
