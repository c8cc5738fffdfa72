package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/asfreeas-aatto/aatto/internal/ai"
	"github.com/asfreeas-aatto/aatto/internal/ai/ollama"
	"github.com/asfreeas-aatto/aatto/internal/ai/openai"
	"github.com/asfreeas-aatto/aatto/internal/api"
	"github.com/asfreeas-aatto/aatto/internal/config"
	"github.com/asfreeas-aatto/aatto/internal/game"
	"github.com/asfreeas-aatto/aatto/internal/storage"
	"github.com/asfreeas-aatto/aatto/internal/storage/postgres"
	"github.com/asfreeas-aatto/aatto/internal/storage/sqlite"
	"github.com/asfreeas-aatto/aatto/internal/ws"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func run(ctx context.Context, f *flags) error {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if f.port != "" {
		cfg.Port = f.port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	setupLogging(cfg.LogLevel, f.verbose)

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo := openRepository(cfg)
	defer closeRepo()

	// Socket server + game core
	sock := ws.New()
	reg := game.NewRegistry()
	gw := game.NewGateway(sock, reg)
	opts := []game.ControllerOption{game.WithMaxLineLength(cfg.MaxLineLength)}
	if cfg.ExportEnabled {
		opts = append(opts, game.WithExporter(game.NewFileExporter(cfg.ExportFile)))
	}
	ctrl := game.NewController(game.NewStore(), gw, repo, game.Timings{
		Compose: cfg.ComposeTime,
		Vote:    cfg.VoteTime,
		Grace:   cfg.FinishGrace,
	}, opts...)

	poet := ai.NewPoet(newProvider(cfg), cfg.DefaultModel)
	lobby := game.NewLobby(game.NewQueue(), game.NewMatcher(cfg.FallbackWait), ctrl, reg, gw,
		game.WithThemes(cfg.Themes, nil),
		game.WithAIPoems(
			func(ctx context.Context, theme, difficulty string) game.Lines {
				return game.Lines(poet.Generate(ctx, ai.PoemRequest{Theme: theme, Difficulty: difficulty}).Lines())
			},
			func(difficulty string) game.Participant {
				return game.Participant{Nickname: ai.PersonalityFor(difficulty).Nickname}
			},
			cfg.AITimeout,
		),
	)
	sock.Attach(lobby, ctrl)

	// Gin setup with custom logger (skip /socket.io noise)
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), api.CORS(cfg.FrontendURL))

	sio := sock.Mount(r, api.AllowOrigin(cfg.FrontendURL))
	defer sio.Close()

	var history storage.Reader
	if rd, ok := repo.(storage.Reader); ok {
		history = rd
	}
	api.New(lobby, ctrl, poet, history, cfg.ShareURL()).Register(r)

	go lobby.Run(ctx, cfg.SweepInterval)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("provider", cfg.DefaultProvider).Str("db", cfg.DatabaseDriver).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	lobby.Wait()
	ctrl.Close()
	return nil
}

// setupLogging configures the global zerolog logger (human-friendly console).
func setupLogging(level string, verbose bool) {
	zerolog.TimeFieldFormat = time.RFC3339
	cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	log.Logger = log.Output(cw)

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	if verbose {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/socket.io") {
			return
		}
		log.Info().Str("method", c.Request.Method).Str("path", path).
			Int("status", c.Writer.Status()).Dur("dur", time.Since(start)).Msg("http")
	}
}

// openRepository falls back to the no-op repository when the configured
// database is unreachable; games still run without history.
func openRepository(cfg config.Config) (storage.Repository, func()) {
	var (
		repo storage.Repository
		c    io.Closer
		err  error
	)
	switch cfg.DatabaseDriver {
	case "sqlite":
		var s *sqlite.Store
		if s, err = sqlite.Open(cfg.DatabaseURL); err == nil {
			repo, c = s, s
		}
	case "postgres":
		var s *postgres.Store
		if s, err = postgres.Open(cfg.DatabaseURL); err == nil {
			repo, c = s, s
		}
	default:
		return storage.Nop{}, func() {}
	}
	if err != nil {
		log.Warn().Err(err).Str("driver", cfg.DatabaseDriver).Msg("database unavailable, results will not be stored")
		return storage.Nop{}, func() {}
	}
	log.Info().Str("driver", cfg.DatabaseDriver).Msg("database ready")
	return repo, func() {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close database")
		}
	}
}

func newProvider(cfg config.Config) ai.Provider {
	switch strings.ToLower(cfg.DefaultProvider) {
	case "openai":
		if cfg.OpenAIKey == "" {
			log.Warn().Msg("OPENAI_API_KEY not set, ai poems use templates")
			return nil
		}
		return openai.New(cfg.OpenAIKey, cfg.OpenAIBaseURL)
	case "ollama":
		return ollama.New(cfg.OllamaHost)
	default:
		return nil
	}
}
