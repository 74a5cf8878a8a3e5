package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/levelup-hq/levelup/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "secret", testLogger())
}

func writeSSE(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, frame := range frames {
		fmt.Fprintf(w, "data: %s\n\n", frame)
	}
}

func collectStream(c *Client, message, sessionID string) ([]string, error) {
	var chunks []string
	for chunk, err := range c.StreamChat(context.Background(), message, sessionID) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestClientStreamChat(t *testing.T) {
	var gotAuth string
	var gotBody streamRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat/stream", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		writeSSE(w,
			`{"content":"Start "}`,
			`{"content":"by listening."}`,
			"[DONE]",
		)
	})

	chunks, err := collectStream(c, "How do I handle a 1:1?", "1-a")

	require.NoError(t, err)
	assert.Equal(t, []string{"Start ", "by listening."}, chunks)
	assert.Equal(t, "Bearer secret", gotAuth)
	assert.Equal(t, "How do I handle a 1:1?", gotBody.Message)
	assert.Equal(t, "1-a", gotBody.SessionID)
}

func TestClientStreamChatDoneOnly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w, "[DONE]", "[DONE]")
	})

	chunks, err := collectStream(c, "hi", "1-a")

	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestClientStreamChatDoneMarkerIsInert(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w,
			`{"content":"first"}`,
			"[DONE]",
			`{"content":"second"}`,
		)
	})

	chunks, err := collectStream(c, "hi", "1-a")

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, chunks)
}

func TestClientStreamChatSkipsMalformedFrames(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w,
			`{"content":"first"}`,
			"this is not json",
			`{"content":"second"}`,
			"[DONE]",
		)
	})

	chunks, err := collectStream(c, "hi", "1-a")

	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, chunks)
}

func TestClientStreamChatErrorFrameAborts(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeSSE(w,
			`{"content":"first"}`,
			`{"error":"model overloaded"}`,
			`{"content":"never seen"}`,
		)
	})

	chunks, err := collectStream(c, "hi", "1-a")

	require.EqualError(t, err, "model overloaded")
	assert.Equal(t, []string{"first"}, chunks)
}

func TestClientStreamChatNon200(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	})

	chunks, err := collectStream(c, "hi", "1-a")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "upstream down")
	assert.Empty(t, chunks)
}

func TestClientListSessions(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/sessions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"id":"2-b","name":"Delegation"},{"id":"1-a","name":"Feedback"}]`)
	})

	sessions, err := c.ListSessions(context.Background())

	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "2-b", sessions[0].ID)
	assert.Equal(t, "Delegation", sessions[0].Name)
}

func TestClientCreateSession(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/chat/session", r.URL.Path)

		var req createSessionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"7-%s"}`, req.SessionID)
	})

	id, err := c.CreateSession(context.Background(), "abc123")

	require.NoError(t, err)
	assert.Equal(t, "7-abc123", id)
}

func TestClientHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/history/1-a", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"role":"user","content":"hi"},{"role":"assistant","content":"hello"}]`)
	})

	messages, err := c.History(context.Background(), "1-a")

	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, models.RoleUser, messages[0].Role)
	assert.Equal(t, "hello", messages[1].Content)
}

func TestClientGenerateName(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat/session/1-a/generate-name", r.URL.Path)

		var req generateNameRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"Active listening"}`)
	})

	name, err := c.GenerateName(context.Background(), "1-a", []models.Message{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Active listening", name)
}

func TestClientDeleteSessionErrorStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})

	err := c.DeleteSession(context.Background(), "1-a")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
