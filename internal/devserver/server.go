// Package devserver is an in-memory board server for local development
// and tests. It speaks the same sync protocol and REST surface as the
// production backend: seeded boards, live broadcast of task events to
// every subscriber, and optional periodic suggestions.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/boardsync/internal/protocol"
	"github.com/gosuda/boardsync/web"
)

// DefaultJWTSecret signs dev tokens when no secret is configured. It
// is fine for the local fixture and nothing else.
const DefaultJWTSecret = "boardsync-dev-secret"

const (
	wsRatePerSec = 5.0
	wsBurst      = 10
)

type Config struct {
	Addr            string
	JWTSecret       string
	CORSOrigins     []string
	Boards          []string
	SuggestInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = ":8090"
	}
	if c.JWTSecret == "" {
		c.JWTSecret = DefaultJWTSecret
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if len(c.Boards) == 0 {
		c.Boards = []string{"board-1"}
	}
	return c
}

type Server struct {
	cfg    Config
	store  *boardStore
	router chi.Router
	cancel context.CancelFunc
}

// New builds a server with every configured board seeded with demo
// tasks. Background goroutines start immediately; call Close (or let
// Run return) to stop them.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg:    cfg,
		store:  newBoardStore(cfg.Boards),
		cancel: cancel,
	}
	s.router = s.routes(ctx)
	if cfg.SuggestInterval > 0 {
		go s.suggestLoop(ctx)
	}
	return s
}

func (s *Server) routes(ctx context.Context) chi.Router {
	router := chi.NewRouter()

	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)

	router.Use(cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.With(rateLimitByIP(ctx, wsRatePerSec, wsBurst)).
		Get("/ws/board/{boardID}/sync", s.handleSync)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Route("/boards/{boardID}/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Post("/", s.createTask)
			r.Patch("/{taskID}", s.moveTask)
			r.Delete("/{taskID}", s.deleteTask)
		})
	})

	// Embedded dashboard at the root.
	if assets, err := fs.Sub(web.Assets, "static"); err == nil {
		router.Handle("/*", http.FileServer(http.FS(assets)))
	} else {
		log.Error().Err(err).Msg("dashboard assets")
	}

	return router
}

// Handler exposes the router so tests can serve it through httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Run listens on the configured address until ctx is canceled, then
// drains in-flight requests and stops background goroutines.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info().Str("addr", s.cfg.Addr).Strs("boards", s.cfg.Boards).Msg("dev server listening")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		s.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("devserver.Run: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("devserver.Run: shutdown: %w", err)
	}
	log.Info().Msg("dev server stopped")
	return nil
}

// Close stops the suggestion and limiter-cleanup goroutines. Run calls
// it on the way out; tests using Handler call it directly.
func (s *Server) Close() { s.cancel() }

var suggestionTexts = []string{
	"Task t1 has been in progress for a while. Split it?",
	"Three inbox tasks mention onboarding. Group them under one epic?",
	"agent-7 is assigned to most high priority work. Rebalance?",
	"The review column is empty. Pull something forward?",
}

func (s *Server) suggestLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SuggestInterval)
	defer ticker.Stop()

	i := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			suggestion := protocol.Suggestion{
				ID:   uuid.NewString(),
				Text: suggestionTexts[i%len(suggestionTexts)],
			}
			i++
			for _, room := range s.store.all() {
				room.suggest(suggestion)
			}
		}
	}
}
