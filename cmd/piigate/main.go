package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"piigate/pkg/audit"
	"piigate/pkg/config"
	"piigate/pkg/control"
	"piigate/pkg/engine"
	"piigate/pkg/gateway"
	"piigate/pkg/logging"
	"piigate/pkg/metrics"
)

func main() {
	configPath := flag.String("config", os.Getenv("PIIGATE_CONFIG"), "path to YAML config file")
	flag.Parse()

	log, sync, err := logging.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer sync()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	// 2. Initial snapshot. Detector/policy mistakes are fatal here, not
	// discovered per-request.
	snap, err := engine.NewSnapshot(cfg)
	if err != nil {
		log.Fatal("invalid detector/policy configuration", zap.Error(err))
	}

	// 3. Audit
	var sinks []audit.Sink
	for _, sc := range cfg.Audit.Sinks {
		switch sc.Type {
		case "console":
			sinks = append(sinks, audit.NewConsoleSink())
		case "http":
			if sc.URL != "" {
				sinks = append(sinks, audit.NewHTTPSink(sc.URL, sc.Headers))
			}
		default:
			log.Fatal("unknown audit sink type", zap.String("type", sc.Type))
		}
	}
	if len(sinks) == 0 {
		sinks = append(sinks, audit.NewConsoleSink())
	}
	emitter := audit.NewEmitter(audit.NewFanOutSink(sinks...), cfg.Audit.BufferSize, log)

	// 4. Pipeline
	pm := metrics.NewPipelineMetrics()
	pipeline := engine.NewPipeline(snap, emitter, log, pm)

	// 5. Control plane watcher
	watcher := control.NewWatcher(cfg.Redis, pipeline, log)

	// 6. Gateway
	server := gateway.NewServer(fmt.Sprintf(":%d", cfg.Server.HTTPPort), pipeline, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go watcher.Start(ctx)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("gateway died", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	log.Info("piigate running",
		zap.Int("http_port", cfg.Server.HTTPPort),
		zap.Int("latency_budget_ms", cfg.Pipeline.LatencyBudgetMS))

	<-sigChan
	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("gateway shutdown", zap.Error(err))
	}
	emitter.Close()
	log.Info("bye")
}
