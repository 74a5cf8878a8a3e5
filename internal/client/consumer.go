package client

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/levelup-hq/levelup/internal/models"
)

// Clipboard abstracts the system clipboard for the copy action.
type Clipboard interface {
	WriteText(text string) error
}

// Consumer manages one chat exchange end-to-end for the selected session:
// input buffering, request dispatch, incremental consumption of the response
// stream, and history reconciliation. A single Consumer never has more than
// one exchange in flight.
type Consumer struct {
	mu        sync.Mutex
	input     string
	typing    bool
	lastErr   string
	draft     string
	streaming bool
	history   []models.Message
	onChange  func()

	api       API
	store     *SessionStore
	notifier  Notifier
	clipboard Clipboard
	logger    *slog.Logger
}

// NewConsumer creates a Consumer bound to the given session store.
func NewConsumer(api API, store *SessionStore, notifier Notifier, clipboard Clipboard, logger *slog.Logger) *Consumer {
	return &Consumer{
		api:       api,
		store:     store,
		notifier:  notifier,
		clipboard: clipboard,
		logger:    logger.With(slog.String("module", "consumer")),
	}
}

// SetOnChange registers a callback invoked after every state change, so a
// view layer can re-render.
func (c *Consumer) SetOnChange(fn func()) {
	c.mu.Lock()
	c.onChange = fn
	c.mu.Unlock()
}

func (c *Consumer) publish() {
	c.mu.Lock()
	fn := c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Input returns the pending input text.
func (c *Consumer) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SetInput replaces the pending input text.
func (c *Consumer) SetInput(text string) {
	c.mu.Lock()
	c.input = text
	c.mu.Unlock()
	c.publish()
}

// Typing reports whether a send is outstanding.
func (c *Consumer) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing
}

// LastError returns the error message of the most recent failed exchange, or
// an empty string. It is cleared when the next send starts.
func (c *Consumer) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Draft returns the in-progress assistant reply and whether one exists.
func (c *Consumer) Draft() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft, c.streaming
}

// History returns the cached message history of the active session.
func (c *Consumer) History() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.Message, len(c.history))
	copy(out, c.history)
	return out
}

// RefreshHistory refetches the authoritative history for the active session,
// replacing the cached copy. Called on session switch and after every
// committed exchange.
func (c *Consumer) RefreshHistory(ctx context.Context) error {
	sessionID := c.store.SelectedID()
	if sessionID == "" || IsTransientID(sessionID) {
		c.mu.Lock()
		c.history = nil
		c.mu.Unlock()
		c.publish()
		return nil
	}

	history, err := c.api.History(ctx, sessionID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.history = history
	c.mu.Unlock()
	c.publish()
	return nil
}

// Send runs one exchange for the selected session. It is a no-op while a send
// is already outstanding or when the input is blank. The typing state is
// published before any network I/O so the indicator is visible immediately;
// on any failure after dispatch, the captured input is restored so the user
// does not lose their draft.
func (c *Consumer) Send(ctx context.Context) {
	sessionID := c.store.SelectedID()
	if sessionID == "" {
		return
	}

	c.mu.Lock()
	if c.typing || strings.TrimSpace(c.input) == "" {
		c.mu.Unlock()
		return
	}
	c.typing = true
	c.lastErr = ""
	c.draft = ""
	c.streaming = true
	text := c.input
	c.input = ""
	firstExchange := len(c.history) == 0
	c.mu.Unlock()

	// The publish must land before the request is dispatched; the typing
	// indicator has to be visible while the network call is in flight.
	c.publish()

	var sendErr error
	for chunk, err := range c.api.StreamChat(ctx, text, sessionID) {
		if err != nil {
			sendErr = err
			break
		}
		c.mu.Lock()
		c.draft += chunk
		c.mu.Unlock()
		c.publish()
	}

	if sendErr != nil {
		c.logger.Error("Chat exchange failed",
			slog.String("sessionID", sessionID),
			slog.String("err", sendErr.Error()))
		c.mu.Lock()
		c.lastErr = sendErr.Error()
		c.input = text
		c.mu.Unlock()
		c.notifier.Error("Failed to send message: " + sendErr.Error())
		c.finish()
		return
	}

	if firstExchange {
		c.generateName(ctx, sessionID, text)
	}

	if err := c.RefreshHistory(ctx); err != nil {
		c.logger.Error("Failed to refetch history",
			slog.String("sessionID", sessionID),
			slog.String("err", err.Error()))
		c.notifier.Error("Failed to refresh chat history")
	}

	c.finish()
}

// finish clears the typing flag and the streaming draft regardless of how the
// exchange ended.
func (c *Consumer) finish() {
	c.mu.Lock()
	c.typing = false
	c.draft = ""
	c.streaming = false
	c.mu.Unlock()
	c.publish()
}

// generateName asks the server to name the session after its first exchange,
// sending the two-message transcript. This is best effort: failures are
// logged and never surfaced.
func (c *Consumer) generateName(ctx context.Context, sessionID, userText string) {
	c.mu.Lock()
	draft := c.draft
	c.mu.Unlock()

	transcript := []models.Message{
		{Role: models.RoleUser, Content: userText, Timestamp: time.Now()},
		{Role: models.RoleAssistant, Content: draft, Timestamp: time.Now()},
	}

	name, err := c.api.GenerateName(ctx, sessionID, transcript)
	if err != nil {
		c.logger.Warn("Failed to generate session name",
			slog.String("sessionID", sessionID),
			slog.String("err", err.Error()))
		return
	}
	if name != "" {
		c.store.ApplyName(sessionID, name)
	}
}

// Copy puts the given message text on the clipboard and confirms with a
// notification. Clipboard failures are fire-and-forget.
func (c *Consumer) Copy(text string) {
	if c.clipboard != nil {
		_ = c.clipboard.WriteText(text)
	}
	c.notifier.Info("Copied to clipboard")
}
