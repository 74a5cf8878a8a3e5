package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"

	"github.com/levelup-hq/levelup/internal/models"
)

type createSessionRequest struct {
	SessionID string `json:"sessionId"`
}

type createSessionResponse struct {
	ID string `json:"id"`
}

type renameSessionRequest struct {
	Name string `json:"name"`
}

type generateNameRequest struct {
	Messages []models.Message `json:"messages"`
}

type generateNameResponse struct {
	Name string `json:"name"`
}

type streamRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
}

type streamFrame struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// streamDoneMarker terminates every successful stream. Clients treat it as a
// no-op marker, never as content.
const streamDoneMarker = "[DONE]"

func (m Main) listSessions(r *http.Request) (any, error) {
	sessions, err := m.chatStore.Sessions(r.Context(), requestUser(r).ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	return sessions, nil
}

// createSession stores a new session under the caller's account. The final ID
// the store assigned is echoed back so clients can correlate their optimistic
// placeholder without guessing.
func (m Main) createSession(r *http.Request) (any, error) {
	req, err := parseRequest[createSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, codedErrorf(http.StatusBadRequest, "sessionId is required")
	}

	id, err := m.chatStore.AddSession(r.Context(), requestUser(r).ID, models.ChatSession{
		ID:   req.SessionID,
		Name: models.DefaultSessionName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add session: %w", err)
	}

	return createSessionResponse{ID: id}, nil
}

func (m Main) deleteSession(r *http.Request) (any, error) {
	sessionID := chi.URLParam(r, "id")
	if err := m.chatStore.DeleteSession(r.Context(), requestUser(r).ID, sessionID); err != nil {
		return nil, fmt.Errorf("failed to delete session: %w", err)
	}
	return nil, nil
}

func (m Main) renameSession(r *http.Request) (any, error) {
	sessionID := chi.URLParam(r, "id")
	req, err := parseRequest[renameSessionRequest](r)
	if err != nil {
		return nil, err
	}
	if req.Name == "" {
		return nil, codedErrorf(http.StatusBadRequest, "name is required")
	}

	if err := m.chatStore.RenameSession(r.Context(), requestUser(r).ID, sessionID, req.Name); err != nil {
		return nil, fmt.Errorf("failed to rename session: %w", err)
	}
	return nil, nil
}

// generateSessionName asks the LLM for a display name covering the supplied
// transcript and persists it on the session before responding.
func (m Main) generateSessionName(r *http.Request) (any, error) {
	sessionID := chi.URLParam(r, "id")
	req, err := parseRequest[generateNameRequest](r)
	if err != nil {
		return nil, err
	}
	if len(req.Messages) == 0 {
		return nil, codedErrorf(http.StatusBadRequest, "messages are required")
	}

	name, err := m.llm.GenerateSessionName(r.Context(), req.Messages)
	if err != nil {
		return nil, codedErrorf(http.StatusBadGateway, "failed to generate session name: %v", err)
	}

	if err := m.chatStore.RenameSession(r.Context(), requestUser(r).ID, sessionID, name); err != nil {
		return nil, fmt.Errorf("failed to persist session name: %w", err)
	}

	return generateNameResponse{Name: name}, nil
}

func (m Main) history(r *http.Request) (any, error) {
	sessionID := chi.URLParam(r, "sessionID")

	owns, err := m.userOwnsSession(r.Context(), requestUser(r).ID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check session ownership: %w", err)
	}
	if !owns {
		return nil, codedErrorf(http.StatusNotFound, "session not found")
	}

	messages, err := m.chatStore.Messages(r.Context(), sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages, nil
}

// handleStream runs one chat exchange end-to-end: it persists the user
// message, relays the provider's token stream to the client as SSE frames, and
// persists the full assistant reply once the stream ends cleanly. A provider
// error is forwarded as an error frame and terminates the stream without the
// done marker.
func (m Main) handleStream(w http.ResponseWriter, r *http.Request) {
	user := requestUser(r)

	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "unable to parse request body", http.StatusBadRequest)
		return
	}
	if req.Message == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	owns, err := m.userOwnsSession(r.Context(), user.ID, req.SessionID)
	if err != nil {
		m.logger.Error("Failed to check session ownership", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !owns {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}

	history, err := m.chatStore.Messages(r.Context(), req.SessionID)
	if err != nil {
		m.logger.Error("Failed to get messages",
			slog.String("sessionID", req.SessionID),
			slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	userMsg := models.Message{
		Role:      models.RoleUser,
		Content:   req.Message,
		Timestamp: time.Now(),
	}
	if err := m.chatStore.AddMessage(r.Context(), req.SessionID, userMsg); err != nil {
		m.logger.Error("Failed to add user message", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		m.logger.Error("Response writer does not support flushing")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	var reply strings.Builder
	for chunk, err := range m.llm.Chat(r.Context(), append(history, userMsg)) {
		if err != nil {
			m.logger.Error("Error from llm provider", slog.String(errLoggerKey, err.Error()))
			_ = m.writeFrame(w, flusher, streamFrame{Error: err.Error()})
			return
		}

		reply.WriteString(chunk)
		if err := m.writeFrame(w, flusher, streamFrame{Content: chunk}); err != nil {
			m.logger.Error("Failed to write stream frame", slog.String(errLoggerKey, err.Error()))
			return
		}
	}

	aiMsg := models.Message{
		Role:      models.RoleAssistant,
		Content:   reply.String(),
		Timestamp: time.Now(),
	}
	if err := m.chatStore.AddMessage(r.Context(), req.SessionID, aiMsg); err != nil {
		m.logger.Error("Failed to add assistant message", slog.String(errLoggerKey, err.Error()))
		_ = m.writeFrame(w, flusher, streamFrame{Error: "failed to save reply"})
		return
	}

	// Summary is cosmetic sidebar text; losing it never fails the exchange.
	if err := m.chatStore.UpdateSummary(r.Context(), user.ID, req.SessionID, summarize(req.Message)); err != nil {
		m.logger.Error("Failed to update session summary", slog.String(errLoggerKey, err.Error()))
	}

	if err := m.writeDone(w, flusher); err != nil {
		m.logger.Error("Failed to write done marker", slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) writeFrame(w io.Writer, flusher http.Flusher, frame streamFrame) error {
	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal stream frame: %w", err)
	}

	e := &sse.Message{}
	e.AppendData(string(payload))
	if _, err := e.WriteTo(w); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (m Main) writeDone(w io.Writer, flusher http.Flusher) error {
	e := &sse.Message{}
	e.AppendData(streamDoneMarker)
	if _, err := e.WriteTo(w); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}

func (m Main) userOwnsSession(ctx context.Context, userID, sessionID string) (bool, error) {
	sessions, err := m.chatStore.Sessions(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, session := range sessions {
		if session.ID == sessionID {
			return true, nil
		}
	}
	return false, nil
}

func summarize(text string) string {
	const maxRunes = 80
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "…"
}
