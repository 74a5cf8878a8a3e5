package handlers

import (
	"context"
	"iter"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/levelup-hq/levelup/internal/models"
)

// LLM represents the chat-completion provider behind the AI mentor. Chat
// accepts a context and the conversation so far, returning an iterator that
// yields response chunks and potential errors. GenerateSessionName produces a
// short display name for a transcript.
type LLM interface {
	Chat(ctx context.Context, messages []models.Message) iter.Seq2[string, error]
	GenerateSessionName(ctx context.Context, messages []models.Message) (string, error)
}

// ChatStore defines the interface for managing chat session and message
// persistence. Session records are scoped per user; message sequences are
// keyed by the server-assigned session ID.
type ChatStore interface {
	Sessions(ctx context.Context, userID string) ([]models.ChatSession, error)
	AddSession(ctx context.Context, userID string, session models.ChatSession) (string, error)
	RenameSession(ctx context.Context, userID, sessionID, name string) error
	UpdateSummary(ctx context.Context, userID, sessionID, summary string) error
	DeleteSession(ctx context.Context, userID, sessionID string) error

	Messages(ctx context.Context, sessionID string) ([]models.Message, error)
	AddMessage(ctx context.Context, sessionID string, message models.Message) error
}

// CatalogStore defines the interface for the training content catalog and
// per-user progress tracking.
type CatalogStore interface {
	Categories(ctx context.Context) ([]models.Category, error)
	Chapters(ctx context.Context, categoryID string) ([]models.Chapter, error)
	Chapter(ctx context.Context, chapterID string) (models.Chapter, error)
	UpsertCategory(ctx context.Context, category models.Category) error
	UpsertChapter(ctx context.Context, chapter models.Chapter) error
	MarkChapterComplete(ctx context.Context, userID, chapterID string) error
	Progress(ctx context.Context, userID string) (models.ProgressSummary, error)
}

// Authenticator resolves an incoming request to the user it belongs to. The
// hosted auth provider owns credentials; this is only the lookup edge.
type Authenticator interface {
	Authenticate(r *http.Request) (models.User, error)
}

// Main handles the core functionality of the LevelUp API, wiring the chat
// store, the content catalog, and the LLM provider behind an authenticated
// HTTP surface.
type Main struct {
	chatStore ChatStore
	catalog   CatalogStore
	llm       LLM
	auth      Authenticator

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided collaborators.
func NewMain(llm LLM, chatStore ChatStore, catalog CatalogStore, auth Authenticator, logger *slog.Logger) Main {
	return Main{
		chatStore: chatStore,
		catalog:   catalog,
		llm:       llm,
		auth:      auth,
		logger:    logger.With(slog.String("module", "handlers")),
	}
}

// AddRoutes registers all API routes on the given router. Everything under
// /api requires authentication; catalog mutations additionally require the
// admin role.
func (m Main) AddRoutes(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(m.requireUser)

		r.Route("/chat", func(r chi.Router) {
			r.Get("/sessions", restHandler(m.listSessions))
			r.Post("/session", restHandler(m.createSession))
			r.Delete("/session/{id}", restHandler(m.deleteSession))
			r.Post("/session/{id}/rename", restHandler(m.renameSession))
			r.Post("/session/{id}/generate-name", restHandler(m.generateSessionName))
			r.Get("/history/{sessionID}", restHandler(m.history))
			r.Post("/stream", m.handleStream)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/categories", restHandler(m.listCategories))
			r.Get("/chapters", restHandler(m.listChapters))
			r.Get("/chapters/{id}", restHandler(m.getChapter))
			r.Post("/chapters/{id}/complete", restHandler(m.completeChapter))
			r.Get("/progress", restHandler(m.progress))

			r.Group(func(r chi.Router) {
				r.Use(m.requireAdmin)
				r.Put("/categories/{id}", restHandler(m.upsertCategory))
				r.Put("/chapters/{id}", restHandler(m.upsertChapter))
			})
		})
	})
}

type contextKey string

const userContextKey contextKey = "user"

func (m Main) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := m.auth.Authenticate(r)
		if err != nil {
			m.logger.Warn("Unauthorized request",
				slog.String("path", r.URL.Path),
				slog.String(errLoggerKey, err.Error()))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m Main) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !requestUser(r).Admin {
			http.Error(w, "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestUser(r *http.Request) models.User {
	user, _ := r.Context().Value(userContextKey).(models.User)
	return user
}
