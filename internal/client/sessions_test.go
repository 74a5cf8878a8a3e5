package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelup-hq/levelup/internal/models"
)

func TestSessionStoreLoad(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{
		{ID: "2-b", Name: "Delegation"},
		{ID: "1-a", Name: "Feedback"},
	}
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())

	store.Load(context.Background())

	sessions := store.Sessions()
	require.Len(t, sessions, 2)
	assert.Equal(t, "2-b", sessions[0].ID)
	assert.Equal(t, "2-b", store.SelectedID())
}

func TestSessionStoreLoadFailureKeepsStaleList(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: "Feedback"}}
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())

	fake.listErr = errors.New("boom")
	store.Load(context.Background())

	require.Len(t, store.Sessions(), 1)
	assert.Equal(t, "1-a", store.SelectedID())
	assert.Equal(t, []string{"Failed to load chat sessions"}, notifier.Errors())
}

func TestSessionStoreCreate(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: "Feedback"}}
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())

	// Snapshot the list on every change so the optimistic placeholder is
	// observable even though the operation replaces it before returning.
	var sawPlaceholder bool
	store.SetOnChange(func() {
		sessions := store.Sessions()
		if len(sessions) > 0 && IsTransientID(sessions[0].ID) && store.SelectedID() == sessions[0].ID {
			sawPlaceholder = true
		}
	})

	store.Create(context.Background())

	assert.True(t, sawPlaceholder, "placeholder should be visible and selected before the round-trip completes")

	sessions := store.Sessions()
	require.Len(t, sessions, 2)
	for _, session := range sessions {
		assert.False(t, IsTransientID(session.ID))
	}
	assert.Equal(t, "1-"+fake.lastClientID, store.SelectedID())
	assert.Empty(t, notifier.Errors())
}

func TestSessionStoreCreateCorrelatesBySubstring(t *testing.T) {
	fake := newFakeAPI()
	fake.echoMismatch = true
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())

	store.Create(context.Background())

	require.NotEmpty(t, fake.lastClientID)
	assert.Equal(t, "1-"+fake.lastClientID, store.SelectedID())
	assert.True(t, strings.Contains(store.SelectedID(), fake.lastClientID))
}

func TestSessionStoreCreateFailure(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: "Feedback"}}
	fake.createErr = errors.New("boom")
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())

	store.Create(context.Background())

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.False(t, IsTransientID(sessions[0].ID))
	assert.Equal(t, "1-a", store.SelectedID())
	assert.Equal(t, []string{"Failed to create chat session"}, notifier.Errors())
}

func TestSessionStoreCreateFailureWithEmptyList(t *testing.T) {
	fake := newFakeAPI()
	fake.createErr = errors.New("boom")
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())

	store.Create(context.Background())

	assert.Empty(t, store.Sessions())
	assert.Equal(t, "", store.SelectedID())
}

func TestSessionStoreDeleteSelected(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{
		{ID: "2-b", Name: "Delegation"},
		{ID: "1-a", Name: "Feedback"},
	}
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())
	require.Equal(t, "2-b", store.SelectedID())

	store.Delete(context.Background(), "2-b")

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "1-a", store.SelectedID())
}

func TestSessionStoreDeleteUnselectedKeepsSelection(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{
		{ID: "2-b", Name: "Delegation"},
		{ID: "1-a", Name: "Feedback"},
	}
	store := NewSessionStore(fake, &recordingNotifier{}, testLogger())
	store.Load(context.Background())

	store.Delete(context.Background(), "1-a")

	assert.Equal(t, "2-b", store.SelectedID())
}

func TestSessionStoreDeleteFailureLeavesState(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: "Feedback"}}
	fake.deleteErr = errors.New("boom")
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())

	store.Delete(context.Background(), "1-a")

	require.Len(t, store.Sessions(), 1)
	assert.Equal(t, "1-a", store.SelectedID())
	assert.Equal(t, []string{"Failed to delete chat session"}, notifier.Errors())
}

func TestSessionStoreDeleteRefetchFailureDropsLocally(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{
		{ID: "2-b", Name: "Delegation"},
		{ID: "1-a", Name: "Feedback"},
	}
	store := NewSessionStore(fake, &recordingNotifier{}, testLogger())
	store.Load(context.Background())

	fake.listErr = errors.New("boom")
	store.Delete(context.Background(), "2-b")

	sessions := store.Sessions()
	require.Len(t, sessions, 1)
	assert.Equal(t, "1-a", sessions[0].ID)
	assert.Equal(t, "1-a", store.SelectedID())
}

func TestSessionStoreRename(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: models.DefaultSessionName}}
	store := NewSessionStore(fake, &recordingNotifier{}, testLogger())
	store.Load(context.Background())

	store.Rename(context.Background(), "1-a", "Difficult conversations")

	assert.Equal(t, "Difficult conversations", store.Sessions()[0].Name)
	assert.Equal(t, "Difficult conversations", fake.renamedTo["1-a"])
}

func TestSessionStoreRenameFailureKeepsLocalName(t *testing.T) {
	fake := newFakeAPI()
	fake.sessions = []models.ChatSession{{ID: "1-a", Name: models.DefaultSessionName}}
	fake.renameErr = errors.New("boom")
	notifier := &recordingNotifier{}
	store := NewSessionStore(fake, notifier, testLogger())
	store.Load(context.Background())

	store.Rename(context.Background(), "1-a", "Difficult conversations")

	assert.Equal(t, "Difficult conversations", store.Sessions()[0].Name)
	assert.Equal(t, []string{"Failed to save chat name"}, notifier.Errors())
}
