// rocketshoes-cartservice/main.go

package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/norun9/rocketshoes-cartservice/cart"
	"github.com/norun9/rocketshoes-cartservice/cartstore"
	"github.com/norun9/rocketshoes-cartservice/catalog"
	"github.com/norun9/rocketshoes-cartservice/config"
	"github.com/norun9/rocketshoes-cartservice/notify"
	"github.com/norun9/rocketshoes-cartservice/services"
)

const serviceName = "cartservice"

var log *logrus.Logger

func init() {
	log = logrus.New()
	log.Level = logrus.InfoLevel
	log.Formatter = &logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "severity",
			logrus.FieldKeyMsg:   "message",
		},
		TimestampFormat: time.RFC3339Nano,
	}
	log.Out = os.Stdout
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.Level = lvl
	} else {
		log.Warnf("unknown LOG_LEVEL %q, using %s", cfg.LogLevel, log.Level)
	}

	// 1) OpenTelemetry providers.
	tp, err := initTracerProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize tracer provider: %v", err)
	}
	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down tracer provider: %v", err)
		}
	}()
	mp, err := initMeterProvider(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to initialize meter provider: %v", err)
	}
	defer func() {
		if err := mp.Shutdown(context.Background()); err != nil {
			log.Printf("Error shutting down meter provider: %v", err)
		}
	}()

	// 2) Cart store, Redis when REDIS_ADDR is set.
	var store cartstore.ICartStore
	if cfg.RedisAddr != "" {
		log.Infof("Using RedisCartStore with address %s", cfg.RedisAddr)
		redisStore, err := cartstore.NewRedisCartStore(cfg.RedisAddr, log)
		if err != nil {
			log.Fatalf("failed to create RedisCartStore: %v", err)
		}
		defer redisStore.Close()
		store = redisStore
	} else {
		log.Info("REDIS_ADDR not set, using LocalCartStore")
		store = cartstore.NewLocalCartStore(log)
	}
	if err := store.Initialize(ctx); err != nil {
		log.Fatalf("failed to initialize cart store: %v", err)
	}

	// 3) Notification sinks.
	sinks := notify.Fanout{notify.NewLogSink(log)}
	if cfg.AMQPURL != "" {
		conn, ch, err := notify.SetupConn(cfg.AMQPURL, log)
		if err != nil {
			log.Fatalf("failed to set up RabbitMQ: %v", err)
		}
		defer conn.Close()
		defer ch.Close()
		sinks = append(sinks, notify.NewPublisher(ch, log))
		log.Infof("Publishing notifications to exchange %s", notify.ExchangeName)
	}

	// 4) Storefront API client and session registry.
	api, err := catalog.NewClient(cfg.APIBaseURL, catalog.WithTimeout(cfg.HTTPClientTimeout))
	if err != nil {
		log.Fatalf("failed to create API client: %v", err)
	}
	sessions := cart.NewSessions(cart.Deps{
		Stock:    api,
		Products: api,
		Notifier: sinks,
		Logger:   log,
	}, func(sessionID string) cart.PersistentStore {
		return cartstore.ForUser(store, sessionID)
	}, cart.WithCapacity(cfg.SessionCapacity), cart.WithIdleTimeout(cfg.SessionIdleTimeout))
	go sessions.Run(ctx, time.Minute)

	// 5) gRPC health server.
	healthLis, err := net.Listen("tcp", ":"+cfg.HealthPort)
	if err != nil {
		log.Fatalf("failed to listen on %s: %v", cfg.HealthPort, err)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthpb.RegisterHealthServer(grpcServer, services.NewHealthCheckService(store, log))
	go func() {
		log.Infof("Health server listening on :%s", cfg.HealthPort)
		if err := grpcServer.Serve(healthLis); err != nil {
			log.Errorf("health server stopped: %v", err)
		}
	}()

	// 6) HTTP cart API.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           services.NewCartServiceServer(sessions, log).Handler(serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		log.Info("Received shutdown signal, initiating graceful shutdown...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warnf("HTTP shutdown: %v", err)
		}
		grpcServer.GracefulStop()
	}()

	log.Infof("CartService HTTP server is listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("failed to serve HTTP: %v", err)
	}
}
