package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"paraScope/internal/cache"
	"paraScope/internal/chain"
	"paraScope/internal/config"
	"paraScope/internal/correlator"
	"paraScope/internal/emit"
	"paraScope/internal/indexer"
	"paraScope/internal/metrics"
	"paraScope/internal/model"
	"paraScope/internal/storage"
	"paraScope/internal/storage/postgres"
)

const sinkBatch = 256

func runIndexer(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	groups := toGroups(cfg.Groups)
	if err := correlator.Validate(groups); err != nil {
		return err
	}
	start, err := indexer.ParseStart(cfg.Start)
	if err != nil {
		return fmt.Errorf("parse start: %w", err)
	}
	startTimestamp, err := indexer.ParseTimestamp(cfg.StartTimestamp)
	if err != nil {
		return fmt.Errorf("parse start-timestamp: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var (
		hooks    indexer.Hooks
		observer cache.Observer
		m        *metrics.Metrics
	)
	if cfg.MetricsAddr != "" {
		m, err = metrics.New()
		if err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		hooks, observer = m, m
		go serveMetrics(ctx, cfg.MetricsAddr, m, logger)
	}

	var sinks storage.Multi
	if cfg.Out != "" {
		sinks = append(sinks, storage.NewJsonlStorage(cfg.Out))
	}
	var checkpoints indexer.Checkpoints
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			return err
		}
		sinks = append(sinks, store)
		checkpoints = store
	}
	if cfg.Checkpoint != "" {
		checkpoints = indexer.NewCheckpointStore(cfg.Checkpoint)
	}
	if start == nil {
		checkpoints = nil
	}

	shared := indexer.Shared{
		Queue: emit.NewQueue(cfg.QueueSize),
		Epoch: &emit.Epoch{},
		Base:  &emit.BaseTimestamp{},
	}

	dial := func(ctx context.Context, endpoint string) (chain.Transport, error) {
		client, err := chain.NewClient(ctx, endpoint, logger.Named("rpc"))
		if err != nil {
			return nil, err
		}
		if cfg.CacheDir == "" {
			return client, nil
		}
		return cache.New(cfg.CacheDir, client, logger.Named("cache"), observer), nil
	}

	c := correlator.New(groups, dial, shared, correlator.Options{
		Start:          start,
		StartTimestamp: startTimestamp,
		Pacing:         cfg.Pacing,
		ChannelSize:    cfg.ChannelSize,
		MaxRetries:     cfg.MaxRetries,
		RetryBackoff:   cfg.RetryBackoff,
		MetadataMemo:   cfg.MetadataMemo,
	}, logger)
	c.Hooks = hooks
	c.Checkpoints = checkpoints
	c.Reload = watchReload(ctx, cfgFile, cmd, logger)

	logger.Info("indexer start",
		zap.Int("groups", len(groups)),
		zap.String("start", cfg.Start),
		zap.Uint64("start_timestamp", startTimestamp),
		zap.Duration("pacing", cfg.Pacing),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("out", cfg.Out),
		zap.String("pg_dsn", redactDSN(cfg.PGDSN)),
		zap.String("checkpoint", cfg.Checkpoint),
	)

	sinkDone := make(chan error, 1)
	go func() { sinkDone <- drainQueue(shared, sinks, m, logger) }()

	runErr := c.Run(ctx)
	shared.Queue.Close()
	sinkErr := <-sinkDone
	logger.Info("indexer stopped")
	return errors.Join(runErr, sinkErr)
}

func toGroups(in []config.GroupConfig) []correlator.Group {
	out := make([]correlator.Group, 0, len(in))
	for _, g := range in {
		group := correlator.Group{Env: g.Env, Parent: g.Parent}
		for _, c := range g.Children {
			group.Children = append(group.Children, correlator.Child{Endpoint: c.Endpoint, ParaID: c.ParaID})
		}
		out = append(out, group)
	}
	return out
}

// watchReload rereads the configuration on SIGHUP and hands the new groups
// to the correlator.
func watchReload(ctx context.Context, cfgFile string, cmd *cobra.Command, logger *zap.Logger) <-chan []correlator.Group {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	out := make(chan []correlator.Group)
	go func() {
		defer signal.Stop(hup)
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
			}
			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				logger.Error("reload config failed", zap.Error(err))
				continue
			}
			logger.Info("config reloaded", zap.Int("groups", len(cfg.Groups)))
			select {
			case out <- toGroups(cfg.Groups):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// drainQueue moves current-epoch records from the merge queue to the sinks
// until the queue is closed and empty.
func drainQueue(shared indexer.Shared, sinks storage.Multi, m *metrics.Metrics, logger *zap.Logger) error {
	ctx := context.Background()
	for {
		rec, err := shared.Queue.PopCurrent(ctx, shared.Epoch)
		if errors.Is(err, emit.ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		batch := []model.Record{rec}
		for len(batch) < sinkBatch && shared.Queue.Len() > 0 {
			next, err := shared.Queue.PopCurrent(ctx, shared.Epoch)
			if err != nil {
				break
			}
			batch = append(batch, next)
		}
		if m != nil {
			m.QueueDepth(shared.Queue.Len())
		}
		if len(sinks) == 0 {
			continue
		}
		if err := sinks.PutRecords(ctx, batch); err != nil {
			logger.Error("write records failed", zap.Int("records", len(batch)), zap.Error(err))
			continue
		}
		if m != nil {
			counts := make(map[model.RecordKind]int)
			for _, r := range batch {
				counts[r.Kind]++
			}
			for kind, n := range counts {
				m.RecordsWritten(string(kind), n)
			}
		}
	}
}

func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics server failed", zap.Error(err))
	}
}
