package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agenthands/waygraph/internal/config"
	"github.com/agenthands/waygraph/internal/core"
	"github.com/agenthands/waygraph/internal/core/model"
	"github.com/agenthands/waygraph/internal/driver"
	"github.com/agenthands/waygraph/internal/ioformat"
	"github.com/agenthands/waygraph/internal/observability"
	"github.com/agenthands/waygraph/internal/store"
)

const defaultConfigPath = "config/config.toml"

// app carries the state shared by every subcommand once the root command
// has loaded configuration.
type app struct {
	cfgFile   string
	sqlite    string
	memgraph  bool
	graphName string

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "waygraph",
		Short:         "Build and maintain location graphs from map data.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default $WAYGRAPH_CONFIG or "+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&a.sqlite, "sqlite", "", "also write a snapshot to this SQLite database")
	root.PersistentFlags().BoolVar(&a.memgraph, "memgraph", false, "also persist the result to Memgraph")
	root.PersistentFlags().StringVar(&a.graphName, "graph", "default", "graph name used when persisting to Memgraph")

	root.AddCommand(
		newRoadsCmd(a),
		newProximityCmd(a),
		newMergeCmd(a),
		newCleanCmd(a),
		newConnectivityCmd(a),
	)
	return root
}

func (a *app) load() error {
	_ = godotenv.Load()

	path := a.cfgFile
	if path == "" {
		path = os.Getenv("WAYGRAPH_CONFIG")
	}
	if path == "" {
		path = defaultConfigPath
	}

	var (
		cfg *config.Config
		err error
	)
	if a.cfgFile != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return err
	}
	cfg.ApplyEnv()
	if a.sqlite != "" {
		cfg.SQLite.Path = a.sqlite
	}

	a.cfg = cfg
	a.logger = observability.NewLogger(cfg.Logger)
	return nil
}

// openBuilder returns a builder wired to whichever backends are enabled and
// a function releasing them.
func (a *app) openBuilder(ctx context.Context) (*core.GraphBuilder, func(), error) {
	var (
		drv     driver.GraphDriver
		closers []func()
	)
	release := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if a.memgraph {
		md, err := driver.NewMemgraphDriver(ctx, a.cfg.Memgraph.URI, a.cfg.Memgraph.User, a.cfg.Memgraph.Password, a.logger.Named("memgraph"))
		if err != nil {
			return nil, release, err
		}
		closers = append(closers, func() { _ = md.Close(context.Background()) })
		drv = md
	}

	b := core.NewGraphBuilder(drv, a.cfg, a.logger)

	if a.cfg.SQLite.Path != "" {
		s, err := store.Open(ctx, a.cfg.SQLite.Path)
		if err != nil {
			release()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = s.Close() })
		b.Sink = s
	}

	if drv != nil {
		if err := b.BuildIndices(ctx); err != nil {
			release()
			return nil, func() {}, err
		}
	}
	return b, release, nil
}

// persist writes graph to the enabled backends. Without any backend it is a
// no-op.
func (a *app) persist(ctx context.Context, b *core.GraphBuilder, graph *core.Graph) error {
	if b.Driver == nil && b.Sink == nil {
		return nil
	}
	return b.Persist(ctx, a.graphName, graph)
}

func (a *app) logRecordErrors(kind string, bad []ioformat.RecordError) {
	for _, e := range bad {
		a.logger.Warn("skipping malformed "+kind,
			zap.Int("line", e.Line),
			zap.String("ref", e.Ref),
			zap.String("reason", e.Reason))
	}
}

func printSummary(w io.Writer, s model.RunSummary) {
	fmt.Fprintf(w, "Run: %s\n", s.RunID)
	fmt.Fprintf(w, "Processed: %d  Added: %d  Updated: %d  Skipped: %d  Errored: %d\n",
		s.Processed, s.Added, s.Updated, s.Skipped, s.Errored)
	fmt.Fprintf(w, "Nodes: %d  Edges: %d\n", s.Nodes, s.Edges)
}
