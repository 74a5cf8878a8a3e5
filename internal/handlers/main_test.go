package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/levelup-hq/levelup/internal/models"
	"github.com/levelup-hq/levelup/internal/services"
)

const (
	userToken  = "user-token"
	adminToken = "admin-token"
)

type mockLLM struct {
	chunks  []string
	chatErr error
	name    string
	nameErr error
}

func (m mockLLM) Chat(_ context.Context, _ []models.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, chunk := range m.chunks {
			if !yield(chunk, nil) {
				return
			}
		}
		if m.chatErr != nil {
			yield("", m.chatErr)
		}
	}
}

func (m mockLLM) GenerateSessionName(_ context.Context, _ []models.Message) (string, error) {
	return m.name, m.nameErr
}

type testEnv struct {
	srv       *httptest.Server
	chatStore services.BoltDB
	catalog   services.Catalog
}

// newTestEnv stands up the full router on real stores, with a fixed two-user
// auth table: user1 via userToken and an admin via adminToken.
func newTestEnv(t *testing.T, llm LLM) testEnv {
	t.Helper()

	chatStore, err := services.NewBoltDB(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = chatStore.Close() })

	catalogDB, err := services.OpenCatalogDB(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	catalog, err := services.NewCatalog(catalogDB)
	require.NoError(t, err)

	auth := services.NewStaticAuth(map[string]models.User{
		userToken:  {ID: "user1", Name: "Alex"},
		adminToken: {ID: "admin1", Name: "Sam", Admin: true},
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewMain(llm, chatStore, catalog, auth, logger)

	router := chi.NewRouter()
	m.AddRoutes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return testEnv{srv: srv, chatStore: chatStore, catalog: catalog}
}

func (e testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var data T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	return data
}
