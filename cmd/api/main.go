package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"todocall-platform/internal/audit"
	"todocall-platform/internal/auth"
	"todocall-platform/internal/bans"
	"todocall-platform/internal/call"
	"todocall-platform/internal/config"
	"todocall-platform/internal/httpapi"
	"todocall-platform/internal/todos"
	"todocall-platform/internal/users"
	"todocall-platform/pkg/logger"
	"todocall-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Services, wired bottom-up. The todos and bans services depend on each
	// other through narrow interfaces, so construction order matters: bans
	// gets the todo service injected after both exist.
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	userSvc := users.NewService(users.NewPostgresRepo(db))
	banRepo := bans.NewPostgresRepo(db)
	todoSvc := todos.NewService(todos.NewPostgresRepo(db), userSvc, banChecker{repo: banRepo})
	banSvc := bans.NewService(banRepo, userSvc, todoSvc)

	coordinator := call.NewCoordinator(call.NewPostgresStore(db), call.CoordinatorOptions{
		Presence:   call.NewRedisPresence(rdb, cfg.Call.PresenceTTL),
		Audit:      auditSvc,
		StaleAfter: cfg.Call.StaleAfter,
	})
	go coordinator.RunReaper(rootCtx, cfg.Call.ReapInterval, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	h := httpapi.Handlers{
		Auth:  authManager,
		Users: userSvc,
		Todos: todoSvc,
		Bans:  banSvc,
		Calls: coordinator,
		Audit: auditSvc,
	}
	registerRoutes(r, h, auth.RequireAccessToken(authManager), db)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}

// banChecker adapts the ban repository for the todo service, breaking the
// construction cycle between the todo and ban services.
type banChecker struct {
	repo bans.Repository
}

func (b banChecker) IsBanned(ctx context.Context, blockerUserID, blockedUserID string) (bool, error) {
	return b.repo.Exists(ctx, blockerUserID, blockedUserID)
}
