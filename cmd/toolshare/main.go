package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KereMath/toolshare/lib/config"
	"github.com/KereMath/toolshare/lib/fair"
	"github.com/KereMath/toolshare/lib/transport"
	"github.com/KereMath/toolshare/lib/util/beforeexit"
)

func main() {
	root := &cobra.Command{
		Use:          "toolshare <conn> <q> <Q> <k>",
		Short:        "fair-share scheduler for a fixed pool of tools",
		Args:         cobra.ExactArgs(4),
		RunE:         run,
		SilenceUsage: true,
	}
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(_ *cobra.Command, args []string) error {
	cfg, err := config.Parse(args[0], args[1], args[2], args[3])
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	store := fair.NewStore(cfg.Fair, log)

	ln, err := transport.Listen(cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}

	if addr := os.Getenv("TOOLSHARE_METRICS_ADDR"); addr != "" {
		go serveMetrics(addr, log)
	}

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		store.RunTools(ctx)
	}()

	srv := &transport.Server{Store: store, Log: log, Addr: cfg.Addr}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Serve(ctx, ln); err != nil {
			log.Warn("serve exited", zap.Error(err))
		}
	}()

	hookID := beforeexit.Run(func() {
		log.Info("shutting down")
		cancel()
		_ = ln.Close()
		wg.Wait()
	})
	defer beforeexit.Cancel(hookID)

	log.Info("listening",
		zap.String("addr", cfg.Addr),
		zap.Int("tools", cfg.Fair.NumTools),
		zap.Int("q", cfg.Fair.MinSliceMs),
		zap.Int("Q", cfg.Fair.MaxSliceMs))

	wg.Wait()
	return nil
}

func serveMetrics(addr string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Warn("metrics server exited", zap.Error(err))
	}
}
