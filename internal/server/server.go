package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/classquiz/internal/api"
	"github.com/victornm/classquiz/internal/auth"
	"github.com/victornm/classquiz/internal/event"
	"github.com/victornm/classquiz/internal/grading"
	"github.com/victornm/classquiz/internal/leaderboard"
	"github.com/victornm/classquiz/internal/quiz"
	"github.com/victornm/classquiz/internal/store"
	"github.com/victornm/classquiz/internal/submission"
	"github.com/victornm/classquiz/internal/telemetry"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Log struct {
		// Level is one of debug, info, warn, error.
		Level string
	}

	Auth struct {
		Secret string
		Issuer string
		TTL    time.Duration
	}

	Grading struct {
		Precision int32
	}

	Event struct {
		PoolSize int
		Timeout  time.Duration
	}

	Redis struct {
		Leaderboard struct {
			Addrs           []string
			Pass            string
			Prefix          string
			PublishInterval time.Duration
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	Postgres struct {
		Addr     string
		User     string
		Pass     string
		Name     string
		MaxConns int32
		// Migrate creates the schema on start.
		Migrate bool
	}
}

func (c *Config) Validate() error {
	switch {
	case c.HTTP.Port <= 0:
		return fmt.Errorf("http.port must be positive")
	case c.GRPC.Port <= 0:
		return fmt.Errorf("grpc.port must be positive")
	case c.Auth.Secret == "":
		return fmt.Errorf("auth.secret is required")
	case c.Postgres.Addr == "":
		return fmt.Errorf("postgres.addr is required")
	case len(c.Redis.Leaderboard.Addrs) == 0:
		return fmt.Errorf("redis.leaderboard.addrs is required")
	case len(c.Redis.Pubsub.Addrs) == 0:
		return fmt.Errorf("redis.pubsub.addrs is required")
	case c.Grading.Precision < 0:
		return fmt.Errorf("grading.precision must not be negative")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}

	return nil
}

// ParseLevel maps a config log level to slog. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

type Server struct {
	c Config

	eb      *event.Bus
	metrics *telemetry.Metrics

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres *pgxpool.Pool
	}

	store *store.Postgres

	service struct {
		quiz        *quiz.Service
		submission  *submission.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.metrics = telemetry.NewMetrics(prometheus.DefaultRegisterer)
	s.eb = event.NewBus(event.Config{
		PoolSize: c.Event.PoolSize,
		Timeout:  c.Event.Timeout,
	})

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(name string, addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r, name); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	s.infra.redis.leaderboard, err = connect("leaderboard", s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
	if err != nil {
		return fmt.Errorf("leaderboard: %w", err)
	}

	s.infra.redis.pubsub, err = connect("pubsub", s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
	if err != nil {
		return fmt.Errorf("pubsub: %w", err)
	}

	return nil
}

func (s *Server) initPostgres() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pc := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return err
	}
	if pc.MaxConns > 0 {
		cc.MaxConns = pc.MaxConns
	}

	lvl, _ := ParseLevel(s.c.Log.Level)
	cc.ConnConfig.Tracer = telemetry.PostgresTracer(slog.Default(), lvl)

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres = db
	s.store = store.NewPostgres(db)

	if pc.Migrate {
		if err := s.store.Migrate(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Server) initService() {
	s.service.quiz = quiz.NewService(quiz.Config{
		Store: s.store,
		Auth: auth.NewResolver(auth.Config{
			Secret: s.c.Auth.Secret,
			Issuer: s.c.Auth.Issuer,
			TTL:    s.c.Auth.TTL,
		}),
	})

	s.service.submission = submission.NewService(submission.Config{
		Store:    s.store,
		Quiz:     s.service.quiz,
		Engine:   grading.NewEngine(grading.Config{Precision: s.c.Grading.Precision}),
		EventBus: s.eb,
		Metrics:  s.metrics,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		EventBus:        s.eb,
		Redis:           s.infra.redis.leaderboard,
		Prefix:          s.c.Redis.Leaderboard.Prefix,
		PublishInterval: s.c.Redis.Leaderboard.PublishInterval,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.Use(gin.Recovery(), telemetry.GinMiddleware(slog.Default(), s.metrics))
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	e.GET("/healthz", s.healthz)
	pprof.Register(e, "/debug/pprof")

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor(slog.Default()))

	api.New(api.Config{
		GRPC:         s.grpc,
		HTTP:         e,
		EventBus:     s.eb,
		Quiz:         s.service.quiz,
		Submission:   s.service.submission,
		Leaderboard:  s.service.leaderboard,
		Redis:        s.infra.redis.pubsub,
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	var eg errgroup.Group
	eg.Go(func() error {
		if err := s.infra.postgres.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		return nil
	})
	eg.Go(func() error {
		if err := s.infra.redis.leaderboard.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.WarnContext(ctx, "server: health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// Shutdown stops accepting requests, drains in-flight event handlers, then closes the stores.
func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	s.infra.postgres.Close()
	for name, r := range map[string]redis.UniversalClient{
		"leaderboard": s.infra.redis.leaderboard,
		"pubsub":      s.infra.redis.pubsub,
	} {
		if err := r.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "redis", name, "error", err)
		}
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
