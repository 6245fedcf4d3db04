package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	"github.com/drblury/graphsink/internal/runtime/journal"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Databases []string
	DefaultDB string
	Journal   string
}

// ServeSummary is reported when serve stops.
type ServeSummary struct {
	Databases  []string `json:"databases"`
	Statements int64    `json:"statements"`
	Events     int64    `json:"events"`
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sink for every database until interrupted",
		Long: `Activate the databases, run their sinks and serve the metrics and admin
endpoints until SIGINT or SIGTERM.

Statements are recorded in a SQLite journal instead of a live graph store,
which makes serve a dry run of the configured topic bindings.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Databases, "db", nil, "databases to activate (default: every configured database)")
	cmd.Flags().StringVar(&opts.DefaultDB, "default-db", DefaultDatabase, "default database name")
	cmd.Flags().StringVar(&opts.Journal, "journal", journal.DefaultFilePath, "journal database file")
	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	conf, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	store, err := journal.New(journal.Config{FilePath: opts.Journal})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, "cannot open journal", err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := runtimepkg.NewService(conf, newLogger(opts.RootOptions, cmd.ErrOrStderr()), ctx, runtimepkg.ServiceDependencies{
		Writer: store,
	})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "cannot create service", err)
	}
	defer svc.Close()

	dbs := opts.Databases
	if len(dbs) == 0 {
		dbs = databaseNames(conf.Properties, conf.TopicNamespace, opts.DefaultDB)
	}
	for _, db := range dbs {
		if err := svc.ActivateDatabase(ctx, db, db == opts.DefaultDB); err != nil {
			return out.Fail(ExitCommandError, ErrCodeBroker, fmt.Sprintf("cannot activate %s", db), err)
		}
		out.VerboseLog("Activated %s (sink %s)", db, svc.SinkStatus(db))
	}

	active := svc.Databases()

	if err := svc.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "service stopped", err)
	}
	if err := svc.Close(); err != nil {
		out.VerboseLog("Close: %v", err)
	}

	statements, events, err := store.Stats(context.Background())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, "cannot read journal", err)
	}
	summary := ServeSummary{Databases: active, Statements: statements, Events: events}
	return out.Success(
		fmt.Sprintf("Stopped. Journal %s holds %d statement(s) for %d event(s).", opts.Journal, statements, events),
		summary,
	)
}
