package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/tap-loopreturns/internal/config"
	"github.com/Sternrassler/tap-loopreturns/pkg/client"
	"github.com/Sternrassler/tap-loopreturns/pkg/logging"
	"github.com/Sternrassler/tap-loopreturns/pkg/metrics"
	"github.com/Sternrassler/tap-loopreturns/pkg/output"
	"github.com/Sternrassler/tap-loopreturns/pkg/state"
	"github.com/Sternrassler/tap-loopreturns/pkg/stream"
	"github.com/Sternrassler/tap-loopreturns/pkg/window"
	"github.com/spf13/cobra"
)

type syncOptions struct {
	configPath  string
	statePath   string
	metricsAddr string
	streamName  string
}

func newSyncCmd() *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Extract all records updated since the last checkpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath, _ = cmd.Flags().GetString("config")
			return runSync(cmd.Context(), opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVar(&opts.statePath, "state", "", "Singer state file used to seed the state store")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	cmd.Flags().StringVar(&opts.streamName, "stream", stream.Returns.Name, "stream to extract")
	return cmd
}

func runSync(ctx context.Context, opts *syncOptions, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Output = stderr
	logging.Setup(logCfg)
	logger := logging.NewLogger("sync")

	s, ok := stream.Lookup(opts.streamName)
	if !ok {
		return fmt.Errorf("unknown stream %q", opts.streamName)
	}

	startDate, err := cfg.StartTime()
	if err != nil {
		return err
	}

	planner, err := window.NewPlanner(cfg.Interval())
	if err != nil {
		return err
	}

	store, err := state.Open(ctx, cfg.StoreConfig())
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	out := output.NewWriter(stdout)
	defer out.Flush()

	if opts.statePath != "" {
		doc, err := readStateFile(opts.statePath)
		if err != nil {
			return err
		}
		effective, err := state.Seed(ctx, store, doc, logger)
		if err != nil {
			return err
		}
		out.Seed(effective)
		logger.Info().Str("path", opts.statePath).Int("bookmarks", len(doc.Bookmarks)).Msg("Seeded state from file")
	}

	metricsAddr := cfg.Metrics.Addr
	if opts.metricsAddr != "" {
		metricsAddr = opts.metricsAddr
	}
	if metricsAddr != "" {
		srv, err := metrics.Listen(metricsAddr, logging.NewLogger("metrics"))
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	c, err := client.New(cfg.ClientConfig())
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer c.Close()

	tracker, err := state.NewTracker(ctx, store, s.Name, startDate, logging.NewLogger("state"))
	if err != nil {
		return err
	}

	if err := out.WriteSchema(s.Name, s.Schema(), s.PrimaryKeys, s.ReplicationKey); err != nil {
		return err
	}

	fetcher := stream.NewFetcher(s, c.PageFetcher(s.RecordsPath), logging.NewLogger("fetcher"))
	driver := stream.NewDriver(s, planner, fetcher, tracker, out, logging.NewLogger("driver"))

	if _, err := driver.Run(ctx); err != nil {
		return err
	}
	return out.Flush()
}

func readStateFile(path string) (*state.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open state file: %w", err)
	}
	defer f.Close()

	doc, err := state.ReadDocument(f)
	if err != nil {
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}
	return doc, nil
}
