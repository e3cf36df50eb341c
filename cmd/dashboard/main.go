package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/signal.report/internal/api"
	"github.com/banshee-data/signal.report/internal/config"
	"github.com/banshee-data/signal.report/internal/export"
	"github.com/banshee-data/signal.report/internal/fsutil"
	"github.com/banshee-data/signal.report/internal/monitoring"
	"github.com/banshee-data/signal.report/internal/pipeline"
	"github.com/banshee-data/signal.report/internal/report"
	"github.com/banshee-data/signal.report/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a JSON or YAML pipeline config (defaults built in)")
	envFile     = flag.String("env-file", ".env", "Optional .env file with SIGNAL_* overrides")
	listen      = flag.String("listen", "", "Listen address (overrides config)")
	assetsHost  = flag.String("assets-host", "", "Host serving the echarts scripts (default: jsdelivr)")
	theme       = flag.String("theme", "", "echarts theme for reports (default: dark)")
	verbose     = flag.Bool("v", false, "Log pipeline stage diagnostics")
	artifactDir = flag.String("artifact-dir", "", "Write each run's artefacts below this directory")
)

func main() {
	flag.Parse()
	log.Printf("starting %s", version.String())

	cfg, err := config.Resolve(*configPath, *envFile)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	addr := cfg.GetListenAddr()
	if *listen != "" {
		addr = *listen
	}

	ops := monitoring.Writer("")
	if *verbose {
		pipeline.SetLogWriters(ops, ops, nil)
	} else {
		pipeline.SetLogWriters(ops, nil, nil)
	}

	srv := api.NewServer(cfg, pipeline.NewRunner())
	srv.SetReportOptions(report.Options{AssetsHost: *assetsHost, Theme: *theme})
	if *artifactDir != "" {
		format, err := export.ParseFormat(cfg.GetOutputFormat())
		if err != nil {
			log.Fatalf("invalid output format: %v", err)
		}
		if err := os.MkdirAll(*artifactDir, 0o755); err != nil {
			log.Fatalf("failed to create artifact directory: %v", err)
		}
		srv.SetArtifactDir(fsutil.OSFileSystem{}, *artifactDir, format)
	}
	mux := srv.ServeMux()
	srv.AttachAdminRoutes(mux)

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()

		server := &http.Server{
			Addr:              addr,
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			log.Printf("listening on %s (%s)", addr, cfg.Params())
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
