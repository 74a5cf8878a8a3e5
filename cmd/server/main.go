package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"gopkg.in/yaml.v3"

	"github.com/levelup-hq/levelup/internal/handlers"
	"github.com/levelup-hq/levelup/internal/services"
)

const appName = "levelup"

func run() error {
	configPath := flag.String("config", "", "path to config file (defaults to the user config dir)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfgDir, err := os.UserConfigDir()
	if err != nil {
		return fmt.Errorf("failed to get user config dir: %w", err)
	}
	dataDir := filepath.Join(cfgDir, appName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	path := *configPath
	if path == "" {
		path = filepath.Join(dataDir, "config.yaml")
	}
	cfgFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer cfgFile.Close()

	var cfg config
	if err := yaml.NewDecoder(cfgFile).Decode(&cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if len(cfg.AuthTokens) == 0 {
		return errors.New("at least one auth token is required")
	}

	chatDBPath := cfg.ChatDBPath
	if chatDBPath == "" {
		chatDBPath = filepath.Join(dataDir, "chat.db")
	}
	chatStore, err := services.NewBoltDB(chatDBPath)
	if err != nil {
		return fmt.Errorf("failed to open chat db: %w", err)
	}

	catalogDSN := cfg.CatalogDSN
	if catalogDSN == "" {
		catalogDSN = filepath.Join(dataDir, "catalog.db")
	}
	catalogDB, err := services.OpenCatalogDB(catalogDSN)
	if err != nil {
		return err
	}
	catalog, err := services.NewCatalog(catalogDB)
	if err != nil {
		return err
	}

	llm, err := cfg.LLM.llm(cfg.SystemPrompt, cfg.NameGeneratorPrompt, logger)
	if err != nil {
		return fmt.Errorf("failed to configure llm: %w", err)
	}

	auth := services.NewStaticAuth(cfg.authUsers())
	api := handlers.NewMain(llm, chatStore, catalog, auth, logger)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	// No global timeout middleware; /api/chat/stream responses stay open for
	// the full duration of a model reply.
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	api.AddRoutes(router)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Server started", slog.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("Shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			_ = srv.Close()
			return fmt.Errorf("failed to shutdown server gracefully: %w", err)
		}
	}

	if err := chatStore.Close(); err != nil {
		logger.Error("Failed to close chat db", slog.String("err", err.Error()))
	}

	return nil
}

func main() {
	if err := run(); err != nil {
		slog.Error("Server exited", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
