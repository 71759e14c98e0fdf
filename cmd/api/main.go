package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ricardovhz/rinha-ledger/api"
	"github.com/ricardovhz/rinha-ledger/config"
	"github.com/ricardovhz/rinha-ledger/health"
	"github.com/ricardovhz/rinha-ledger/repository"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	fmt.Printf("GOMAXPROCS is %d\n", runtime.GOMAXPROCS(0))
	var logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connCfg, err := pgx.ParseConfig(cfg.DB.DSN())
	if err != nil {
		panic(err)
	}
	connCfg.ConnectTimeout = cfg.DB.ConnectionTimeout

	pool, err := repository.NewConnPool(ctx, repository.PoolConfig{
		MaxSize:           cfg.DB.MaxSize,
		MinIdle:           cfg.DB.MinIdle,
		ConnectionTimeout: cfg.DB.ConnectionTimeout,
		ValidateIdleAfter: cfg.DB.ValidateIdleAfter,
	}, repository.PgxDialer(connCfg))
	if err != nil {
		panic(err)
	}
	repo := repository.NewPostgresRepository(pool)
	defer repo.ShutDown()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		repository.NewPoolCollector(pool),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: api.NewRouter(repo, api.WithMetrics(reg)),
	}

	gs := grpc.NewServer()
	health.Register(gs, health.NewServer(pool, cfg.DB.ConnectionTimeout))
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPCPort))
	if err != nil {
		panic(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server running", "port", cfg.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		slog.Info("gRPC server running", "port", cfg.GRPCPort)
		return gs.Serve(lis)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		gs.GracefulStop()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped", "error", err)
	}
}
