package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/pavelanni/docexam/internal/exam"
	"github.com/pavelanni/docexam/internal/extract"
	"github.com/pavelanni/docexam/internal/handler"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/metrics"
	"github.com/pavelanni/docexam/internal/store"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP exam server",
		RunE:  runServe,
	}
	h := handler.DefaultConfig()
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addLLMFlags(f)
	f.Duration("auto-advance", 250*time.Millisecond, "Delay before moving to the next question after a single-choice answer")
	f.String("redis-url", "", "Redis URL for session liveness (empty keeps sessions in memory only)")
	f.Duration("session-ttl", 2*time.Hour, "Idle time after which a session expires (0 keeps sessions until restart)")
	f.Int("rate-limit", h.RateLimit, "Generation requests per client IP per rate window (0 disables)")
	f.Duration("rate-window", h.RateWindow, "Rate limit window")
	f.Int64("max-upload", h.MaxUploadBytes, "Maximum upload size in bytes")
	f.StringSlice("cors-origins", nil, "Allowed cross-origin callers")
	f.Bool("secure-cookies", h.SecureCookies, "Set Secure flag on session cookies")
	f.String("admin-password", "", "Admin password required to change the API key (or set DOCEXAM_ADMIN_PASSWORD)")
	addLogFlags(f)
	return cmd
}

// sessionStore is a session repository that can report its size.
type sessionStore interface {
	exam.Repository
	Len() int
}

func runServe(cmd *cobra.Command, _ []string) error {
	defer setupLogging(cmd)()
	v := viperForCmd(cmd)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedAdminPassword(db, v.GetString("admin-password")); err != nil {
		return fmt.Errorf("seed admin password: %w", err)
	}

	lang := v.GetString("lang")
	if err := i18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	cfg := examConfig(v)
	m := metrics.New()

	llmClient, err := llm.New(v.GetString("llm-url"), v.GetString("llm-model"), cfg, llm.WithObserver(m))
	if err != nil {
		return fmt.Errorf("create LLM client: %w", err)
	}
	if err := loadAPIKey(ctx, db, llmClient, v); err != nil {
		return err
	}

	repo, closeRepo, err := sessionRepository(ctx, v)
	if err != nil {
		return err
	}
	defer closeRepo()
	m.TrackSessions(repo.Len)

	svc := exam.NewService(repo, extract.New(), llmClient, db, cfg,
		exam.WithRunObserver(m),
		exam.WithSessionTTL(v.GetDuration("session-ttl")),
	)
	defer svc.Close()

	h := handler.New(svc, db, m, handler.Config{
		MaxUploadBytes: v.GetInt64("max-upload"),
		SecureCookies:  v.GetBool("secure-cookies"),
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		RateLimit:      v.GetInt("rate-limit"),
		RateWindow:     v.GetDuration("rate-window"),
	})
	defer h.Close()

	addr := v.GetString("addr")
	server := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server",
			"addr", addr,
			"model", v.GetString("llm-model"),
			"llm_url", v.GetString("llm-url"),
			"lang", lang,
			"num_questions", cfg.NumQuestions,
			"retries", cfg.Retries,
			"redis", v.GetString("redis-url") != "",
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadAPIKey stores a configured key and checks the endpoint with whatever
// key is stored. A missing or rejected key is not fatal: it can be set later
// over HTTP.
func loadAPIKey(ctx context.Context, db *store.Store, c *llm.Client, v *viper.Viper) error {
	if key := v.GetString("llm-key"); key != "" {
		if err := db.SetAPIKey(key); err != nil {
			return fmt.Errorf("store API key: %w", err)
		}
		slog.Info("API key loaded from configuration")
	}
	key, err := db.APIKey()
	if err != nil {
		return fmt.Errorf("load API key: %w", err)
	}
	if key == "" {
		slog.Warn("no API key configured, set one with `docexam key set` or PUT /api/settings/api-key")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx, key); err != nil {
		slog.Warn("LLM health check failed", "url", v.GetString("llm-url"), "error", err)
		return nil
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))
	return nil
}

func sessionRepository(ctx context.Context, v *viper.Viper) (sessionStore, func(), error) {
	url := v.GetString("redis-url")
	if url == "" {
		return exam.NewMemoryRepository(), func() {}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}
	slog.Info("using redis for session liveness", "addr", opts.Addr, "ttl", v.GetDuration("session-ttl"))
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("close redis client", "error", err)
		}
	}
	return exam.NewRedisRepository(client, v.GetDuration("session-ttl")), closeFn, nil
}

// seedAdminPassword stores the admin password hash unless one exists.
func seedAdminPassword(db *store.Store, password string) error {
	existing, err := db.AdminPasswordHash()
	if err != nil {
		return err
	}
	if existing != "" {
		return nil
	}
	if password == "" {
		slog.Warn("no admin password set, API key changes over HTTP are unrestricted")
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	if err := db.SetAdminPasswordHash(string(hash)); err != nil {
		return err
	}
	slog.Info("seeded admin password")
	return nil
}
