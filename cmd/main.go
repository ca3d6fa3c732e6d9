package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwrk-planet/chat-sync/config"
	"github.com/cwrk-planet/chat-sync/internal/files"
	"github.com/cwrk-planet/chat-sync/internal/memstore"
	"github.com/cwrk-planet/chat-sync/internal/postgres"
	"github.com/cwrk-planet/chat-sync/internal/ratelimit"
	"github.com/cwrk-planet/chat-sync/internal/security"
	"github.com/cwrk-planet/chat-sync/internal/service"
	"github.com/cwrk-planet/chat-sync/internal/sqlite"
	grpcx "github.com/cwrk-planet/chat-sync/internal/transport/grpc"
	httpx "github.com/cwrk-planet/chat-sync/internal/transport/http"
	"github.com/cwrk-planet/chat-sync/internal/transport/ws"
	"github.com/cwrk-planet/chat-sync/pkg/logger"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// storage is whichever backend the config selects.
type storage struct {
	users    service.UserStore
	channels service.ChannelStore
	messages service.MessageStore
	ping     grpcx.Probe
	close    func()
}

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		AddSource: cfg.Logging.AddSource,
		Debug:     cfg.Logging.Debug,
	})
	slog.Info("starting chat-sync",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		stop()
		log.Fatalf("chat-sync: %v", err)
	}
	slog.Info("stopped")
}

// run starts every server and blocks until ctx ends or one of them fails.
// Startup errors are returned before any server goroutine is started.
func run(ctx context.Context, cfg *config.Config) error {
	// --- storage ---
	st, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer st.close()

	// --- realtime services ---
	hub := ws.NewHub()
	presence := service.NewPresenceService(st.users, hub)
	typing := service.NewTypingService(presence, hub, cfg.Realtime.TypingTTL)
	whiteboard := service.NewWhiteboardService(st.channels, presence, hub, cfg.Realtime.WhiteboardDebounce)

	chat := service.NewChatService(st.messages, st.users, st.channels, presence, hub)
	chat.SetTyping(typing)
	chat.SetLimits(cfg.Realtime.HistoryLimit, cfg.Realtime.MaxMessageLen)
	remover, err := files.NewLocalRemover(cfg.Uploads.Dir)
	if err != nil {
		return fmt.Errorf("uploads: %w", err)
	}
	chat.SetFileRemover(remover)

	sweeper := service.NewExpirySweeper(chat, cfg.Realtime.ExpirySweep)

	// --- WS server ---
	wsServer := ws.NewServer(hub, presence, chat, typing, whiteboard, ws.Options{
		PingEvery:      cfg.Realtime.PingEvery,
		ReadLimit:      cfg.Realtime.ReadLimit,
		SendQueue:      cfg.Realtime.SendQueue,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	limiter, closeLimiter := newLimiter(ctx, cfg.RateLimit)
	defer closeLimiter()
	wsServer.SetLimiter(limiter)

	// --- admin ---
	var admin *security.AdminVerifier
	if cfg.Admin.PublicKeyPath != "" {
		pub, err := security.LoadRSAPublicKeyFromPEM(cfg.Admin.PublicKeyPath)
		if err != nil {
			return fmt.Errorf("admin key: %w", err)
		}
		admin = security.NewAdminVerifier(pub, cfg.Admin.Issuer, cfg.Admin.Audience)
	} else {
		slog.Warn("admin api disabled: admin.publicKeyPath is not set")
	}

	// --- HTTP ---
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        httpx.NewHandler(chat, whiteboard, cfg.Uploads.Dir),
		WS:             wsServer.HandleWS,
		Admin:          admin,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC health ---
	grpcSrv := grpcx.NewServer()
	grpcSrv.AddProbe(st.ping)
	var grpcLis net.Listener
	if cfg.GRPC.Addr != "" {
		grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	// --- run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if grpcLis != nil {
		g.Go(func() error { return grpcSrv.Serve(grpcLis) })
		g.Go(func() error { return watchHealth(gctx, grpcSrv, cfg.Realtime.PingEvery) })
	}

	g.Go(func() error { return sweeper.Run(gctx) })

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		grpcSrv.SetServing(false)
		hub.CloseAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		err := httpSrv.Shutdown(shutdownCtx)
		if derr := wsServer.Drain(shutdownCtx); derr != nil {
			slog.Warn("ws connections did not drain", "err", derr)
		}

		typing.Close()
		whiteboard.Close()
		grpcSrv.Stop()
		return err
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Storage) (*storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		s := postgres.NewStore(pool)
		return &storage{
			users: s.Users, channels: s.Channels, messages: s.Messages,
			ping:  func(ctx context.Context) error { return postgres.Ping(ctx, pool) },
			close: pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		s := db.Store()
		return &storage{
			users: s.Users, channels: s.Channels, messages: s.Messages,
			ping:  db.Ping,
			close: func() { _ = db.Close() },
		}, nil

	default:
		slog.Warn("using in-memory storage: data is lost on restart")
		s := memstore.New()
		return &storage{
			users: s.Users, channels: s.Channels, messages: s.Messages,
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}
}

// newLimiter shares limits through Redis when configured, otherwise per process.
func newLimiter(ctx context.Context, cfg config.RateLimit) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr == "" {
		return ratelimit.NewLocal(cfg.Rate, cfg.Burst), func() {}
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Warn("redis unavailable, using local rate limiter", "addr", cfg.RedisAddr, "err", err)
		_ = client.Close()
		return ratelimit.NewLocal(cfg.Rate, cfg.Burst), func() {}
	}
	limit := int(cfg.Rate * cfg.Window.Seconds())
	if limit < 1 {
		limit = 1
	}
	slog.Info("rate limiter", "backend", "redis", "limit", limit, "window", cfg.Window)
	return ratelimit.NewRedis(client, limit, cfg.Window), func() { _ = client.Close() }
}

func watchHealth(ctx context.Context, s *grpcx.Server, every time.Duration) error {
	_ = s.Check(ctx)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = s.Check(ctx)
		}
	}
}
