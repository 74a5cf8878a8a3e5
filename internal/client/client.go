// Package client implements the LevelUp chat front end's state layer: the
// session store and the streaming consumer, talking to the chat API through a
// narrow collaborator interface so both can be exercised against fakes.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/tmaxmax/go-sse"

	"github.com/levelup-hq/levelup/internal/models"
)

// API is the boundary to the chat backend. StreamChat returns the assistant
// reply as an iterator of content chunks; a yielded error aborts the exchange
// and the end of the iterator marks a clean completion.
type API interface {
	ListSessions(ctx context.Context) ([]models.ChatSession, error)
	CreateSession(ctx context.Context, sessionID string) (string, error)
	DeleteSession(ctx context.Context, sessionID string) error
	RenameSession(ctx context.Context, sessionID, name string) error
	GenerateName(ctx context.Context, sessionID string, messages []models.Message) (string, error)
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	StreamChat(ctx context.Context, message, sessionID string) iter.Seq2[string, error]
}

// Notifier is the toast boundary. Every user-visible failure in this package
// goes through it; nothing propagates past an operation boundary.
type Notifier interface {
	Info(message string)
	Error(message string)
}

// Client is the HTTP implementation of API.
type Client struct {
	http *resty.Client

	logger *slog.Logger
}

// NewClient creates a Client for the API at baseURL, authenticating every
// request with the given bearer token.
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		http:   resty.New().SetBaseURL(baseURL).SetAuthToken(token),
		logger: logger.With(slog.String("module", "client")),
	}
}

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
	Content string `json:"content"`
	Error   string `json:"error"`
}

const streamDoneMarker = "[DONE]"

func statusError(resp *resty.Response) error {
	return fmt.Errorf("unexpected status %s", resp.Status())
}

// ListSessions fetches the ordered session list.
func (c *Client) ListSessions(ctx context.Context) ([]models.ChatSession, error) {
	var sessions []models.ChatSession
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&sessions).
		Get("/api/chat/sessions")
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return sessions, nil
}

// CreateSession registers a new session carrying the client-generated ID and
// returns the ID the server assigned.
func (c *Client) CreateSession(ctx context.Context, sessionID string) (string, error) {
	var res createSessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createSessionRequest{SessionID: sessionID}).
		SetResult(&res).
		Post("/api/chat/session")
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", statusError(resp)
	}
	return res.ID, nil
}

// DeleteSession removes a session and its history.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		Delete("/api/chat/session/" + sessionID)
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}

// RenameSession persists a new display name for the session.
func (c *Client) RenameSession(ctx context.Context, sessionID, name string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(renameSessionRequest{Name: name}).
		Post("/api/chat/session/" + sessionID + "/rename")
	if err != nil {
		return fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return statusError(resp)
	}
	return nil
}

// GenerateName asks the server to produce and persist a display name for the
// session based on the given transcript.
func (c *Client) GenerateName(ctx context.Context, sessionID string, messages []models.Message) (string, error) {
	var res generateNameResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(generateNameRequest{Messages: messages}).
		SetResult(&res).
		Post("/api/chat/session/" + sessionID + "/generate-name")
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return "", statusError(resp)
	}
	return res.Name, nil
}

// History fetches the authoritative message sequence for the session.
func (c *Client) History(ctx context.Context, sessionID string) ([]models.Message, error) {
	var messages []models.Message
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&messages).
		Get("/api/chat/history/" + sessionID)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, statusError(resp)
	}
	return messages, nil
}

// StreamChat posts a message and decodes the SSE response into content
// chunks. The done marker is inert, an error field aborts the exchange, and a
// non-empty frame that isn't valid JSON is logged and skipped; it never aborts
// the stream.
func (c *Client) StreamChat(ctx context.Context, message, sessionID string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		resp, err := c.http.R().
			SetContext(ctx).
			SetDoNotParseResponse(true).
			SetBody(streamRequest{Message: message, SessionID: sessionID}).
			Post("/api/chat/stream")
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}

		body := resp.RawBody()
		defer body.Close()

		if resp.StatusCode() != http.StatusOK {
			raw, _ := io.ReadAll(io.LimitReader(body, 1024))
			detail := strings.TrimSpace(string(raw))
			if detail == "" {
				yield("", statusError(resp))
				return
			}
			yield("", fmt.Errorf("unexpected status %s: %s", resp.Status(), detail))
			return
		}

		for ev, err := range sse.Read(body, nil) {
			if err != nil {
				yield("", fmt.Errorf("error reading stream: %w", err))
				return
			}

			if ev.Data == streamDoneMarker {
				continue
			}

			var frame streamFrame
			if err := json.Unmarshal([]byte(ev.Data), &frame); err != nil {
				if strings.TrimSpace(ev.Data) != "" {
					c.logger.Warn("Skipping unparseable stream frame",
						slog.String("data", ev.Data))
				}
				continue
			}

			if frame.Error != "" {
				yield("", errors.New(frame.Error))
				return
			}
			if frame.Content == "" {
				continue
			}
			if !yield(frame.Content, nil) {
				return
			}
		}
	}
}
