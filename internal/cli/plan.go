package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
	"github.com/drblury/graphsink/internal/runtime/sink"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database  string
	DefaultDB string
	Input     string
}

// Statement is one query the sink would run, with its bound events.
type Statement struct {
	Query  string `json:"query"`
	Events []any  `json:"events"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <topic>",
		Short: "Show the statements a batch of records would produce",
		Long: `Run a batch of records through the strategy bound to a topic and print the
resulting statements without touching the graph store.

Records are read as a JSON array from --input, or from stdin when --input
is "-". Each element is an object with "key" and "value"; a null value is
a tombstone.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "database the topic is bound to")
	cmd.Flags().StringVar(&opts.DefaultDB, "default-db", DefaultDatabase, "default database name")
	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "records file (JSON array)")
	return cmd
}

func runPlan(opts *PlanOptions, args []string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	topic := args[0]

	conf, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	storage, err := runtimepkg.BuildStorage(conf, opts.Database, opts.Database == opts.DefaultDB)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeTopics, fmt.Sprintf("invalid topics for %s", opts.Database), err)
	}

	data, err := readInput(opts.Input, cmd.InOrStdin())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeInvalidRecord, "cannot read records", err)
	}
	batch, err := ParseRecords(data)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeInvalidRecord, "invalid records", err)
	}
	out.VerboseLog("Planning %d record(s) for topic %s on %s", len(batch), topic, opts.Database)

	var statements []Statement
	collect := sink.WriterFunc(func(_ context.Context, query string, events []any) error {
		statements = append(statements, Statement{Query: query, Events: events})
		return nil
	})
	svc, err := sink.NewService(storage, collect)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeGeneric, "cannot build sink", err)
	}
	if err := svc.WriteForTopic(cmd.Context(), topic, batch); err != nil {
		return out.Fail(ExitFailure, ErrCodeTopics, fmt.Sprintf("cannot plan topic %s", topic), err)
	}

	return out.Success(formatStatements(statements), statements)
}

// ParseRecords decodes a JSON array of {"key", "value"} objects.
func ParseRecords(data []byte) ([]events.SinkEntity, error) {
	var raw []map[string]any
	if err := jsoncodec.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	batch := make([]events.SinkEntity, 0, len(raw))
	for i, r := range raw {
		if r == nil {
			return nil, fmt.Errorf("record %d: expected an object", i)
		}
		batch = append(batch, events.SinkEntity{Key: r["key"], Value: r["value"]})
	}
	return batch, nil
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func formatStatements(statements []Statement) string {
	if len(statements) == 0 {
		return "No statements."
	}
	var sb strings.Builder
	for i, st := range statements {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "-- %d event(s)\n%s", len(st.Events), st.Query)
	}
	return sb.String()
}
