// stackd serves the desired-state provisioner over HTTP, backed by a
// real cloud provider or the built-in simulator.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/stackforge/stackforge/internal/api"
	"github.com/stackforge/stackforge/internal/config"
	"github.com/stackforge/stackforge/internal/engine"
	"github.com/stackforge/stackforge/internal/events"
	"github.com/stackforge/stackforge/internal/provider/sim"
	"github.com/stackforge/stackforge/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "HTTP listen address")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "metrics listen address")
	dbPath := flag.String("db", cfg.DBPath, "Badger DB path")
	natsURL := flag.String("nats", cfg.NATSURL, "NATS URL (empty disables events)")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.Trace {
		exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			log.Fatalf("init trace exporter: %v", err)
		}
		tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		otel.SetTracerProvider(tp)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(ctx)
		}()
	}

	store, err := storage.NewBadgerStore(*dbPath)
	if err != nil {
		log.Fatalf("failed to open badger store: %v", err)
	}
	defer store.Close()

	opts := []engine.Option{engine.WithLogger(logger)}
	if *natsURL != "" {
		pub, err := events.NewPublisher(*natsURL)
		if err != nil {
			log.Fatalf("connect nats: %v", err)
		}
		defer pub.Close()
		opts = append(opts, engine.WithPublisher(pub))
	}

	eng := engine.New(store, sim.New(), opts...)

	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: api.NewHTTPHandler(eng),
	}
	go func() {
		log.Printf("HTTP API listening on %s", *httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http listen: %v", err)
		}
	}()

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux)
		log.Printf("Prometheus metrics available on %s/metrics", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Printf("shutdown initiated")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("http server shutdown error: %v", err)
	}
	log.Println("shutdown complete")
}
