package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"campusportal/internal/auth"
	"campusportal/internal/config"
	"campusportal/internal/db"
	"campusportal/internal/fees"
	portalgrpc "campusportal/internal/grpc"
	internalhttp "campusportal/internal/http"
	"campusportal/internal/jobs"
	"campusportal/internal/kv"
	"campusportal/internal/logging"
	"campusportal/internal/memstore"
	"campusportal/internal/profile"
	"campusportal/internal/realtime"
	"campusportal/internal/repository"
	"campusportal/internal/views"
)

type backend interface {
	profile.Store
	views.AttendanceSource
	views.FeeSource
	internalhttp.Directory
}

func main() {
	cfg := config.Load()

	host, _ := os.Hostname()
	logger := logging.New(os.Stdout, logging.Options{
		Env:          cfg.Env,
		Level:        cfg.LogLevel,
		RollbarToken: cfg.RollbarToken,
		Host:         host,
	})
	defer logging.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTPublicKey, cfg.JWTIssuer)
	if err != nil {
		log.Fatalf("jwt verifier init failed: %v", err)
	}

	rules := fees.DefaultRules
	if cfg.FeeCategoryKeywords != "" {
		if rules, err = fees.ParseRules(cfg.FeeCategoryKeywords); err != nil {
			log.Fatalf("fee category keywords: %v", err)
		}
	}

	checks := map[string]portalgrpc.Check{}
	hub := realtime.NewHub()

	var store backend
	switch cfg.Store {
	case "memory":
		log.Printf("using in-memory store; data is lost on exit")
		store = memstore.New(hub)
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connection failed: %v", err)
		}
		defer pool.Close()
		if cfg.MigrateOnStart {
			if err := db.NewStore(pool).Migrate(ctx, cfg.ChangeChannel); err != nil {
				log.Fatalf("migration failed: %v", err)
			}
		}
		checks["postgres"] = pool.Ping
		store = repository.NewStore(pool)
		go realtime.NewListener(pool, cfg.ChangeChannel, hub, cfg.ListenRetryInterval, logger).Run(ctx)
	}

	backing, redisClient, err := openCache(ctx, cfg)
	if err != nil {
		log.Fatalf("profile cache init failed: %v", err)
	}
	defer func() {
		if err := backing.Close(); err != nil {
			log.Printf("profile cache close error: %v", err)
		}
	}()
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	cache := profile.NewCache(backing, logger)
	resolver := profile.NewResolver(store, cache, auth.ContextProvider{}, logger, profile.WithTimeout(cfg.ResolveTimeout))
	if err := jobs.StartProfileInvalidationJob(ctx, hub, store, resolver, cfg.ResolveTimeout, logger); err != nil {
		log.Fatalf("profile invalidation job failed: %v", err)
	}
	viewService := views.NewService(store, store, fees.NewClassifier(rules), hub, logger)

	server := internalhttp.NewServer(verifier, resolver, viewService, store, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcServer, err := newGRPCServer(cfg.ServiceAuthToken)
	if err != nil {
		log.Fatalf("grpc service auth init failed: %v", err)
	}
	healthServer := portalgrpc.NewHealthServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	portalgrpc.StartHealthChecks(ctx, healthServer, checks, 0, 0, logger)

	go func() {
		log.Printf("campusportal http listening on %s", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	go func() {
		listener, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen error: %v", err)
		}
		log.Printf("campusportal grpc listening on %s", cfg.GRPCAddr)
		if err := grpcServer.Serve(listener); err != nil {
			log.Fatalf("grpc server error: %v", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	grpcServer.GracefulStop()
}

func newGRPCServer(token string) (*grpc.Server, error) {
	if token == "" {
		log.Printf("SERVICE_AUTH_TOKEN not set; grpc health is unauthenticated")
		return grpc.NewServer(), nil
	}
	unary, err := portalgrpc.NewServiceAuthUnaryInterceptor(token)
	if err != nil {
		return nil, err
	}
	stream, err := portalgrpc.NewServiceAuthStreamInterceptor(token)
	if err != nil {
		return nil, err
	}
	return grpc.NewServer(grpc.UnaryInterceptor(unary), grpc.StreamInterceptor(stream)), nil
}

func openCache(ctx context.Context, cfg config.Config) (kv.Store, *redis.Client, error) {
	switch cfg.CacheBackend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return kv.NewRedis(client), client, nil
	case "sqlite":
		store, err := kv.OpenSQLite(cfg.CachePath)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return kv.NewMemory(), nil, nil
	}
}
