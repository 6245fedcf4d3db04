package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	"github.com/drblury/graphsink/internal/runtime/topics"
)

// DefaultDatabase is the database that also receives the unscoped topics.
const DefaultDatabase = "neo4j"

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	DefaultDB string
}

// DatabaseReport summarises the topics bound to one database.
type DatabaseReport struct {
	Database string                        `json:"database"`
	Default  bool                          `json:"default"`
	Topics   map[topics.TopicType][]string `json:"topics,omitempty"`
	Count    int                           `json:"count"`
	Error    string                        `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and the topic bindings of every database",
		Long: `Parse the configuration, classify the topics of the default database and
of every database named by a ".to.<db>" key, and build their strategies.

Exit codes:
  0 - configuration is valid
  1 - at least one database has invalid topics
  2 - the configuration could not be read or parsed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DefaultDB, "default-db", DefaultDatabase, "default database name")
	return cmd
}

func runValidate(opts *ValidateOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	conf, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	var (
		reports []DatabaseReport
		failed  int
	)
	for _, db := range databaseNames(conf.Properties, conf.TopicNamespace, opts.DefaultDB) {
		isDefault := db == opts.DefaultDB
		out.VerboseLog("Classifying topics of %s", db)

		report := DatabaseReport{Database: db, Default: isDefault}
		storage, err := runtimepkg.BuildStorage(conf, db, isDefault)
		if err != nil {
			report.Error = err.Error()
			failed++
		} else {
			report.Topics = nonEmpty(storage.Topics().ByType())
			report.Count = storage.Len()
		}
		reports = append(reports, report)
	}

	if failed > 0 {
		if out.Format != "json" {
			fmt.Fprintln(out.Writer, formatReports(reports))
		}
		if err := out.Error(ErrCodeTopics, fmt.Sprintf("%d database(s) have invalid topics", failed), reports); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	return out.Success(formatReports(reports), reports)
}

func nonEmpty(byType map[topics.TopicType][]string) map[topics.TopicType][]string {
	out := make(map[topics.TopicType][]string, len(byType))
	for typ, names := range byType {
		if len(names) > 0 {
			out[typ] = names
		}
	}
	return out
}

func formatReports(reports []DatabaseReport) string {
	var sb strings.Builder
	for i, r := range reports {
		if i > 0 {
			sb.WriteString("\n")
		}
		label := r.Database
		if r.Default {
			label += " (default)"
		}
		if r.Error != "" {
			fmt.Fprintf(&sb, "%s: invalid: %s", label, r.Error)
			continue
		}
		fmt.Fprintf(&sb, "%s: %d topic(s)", label, r.Count)
		for _, typ := range topics.AllTypes {
			if names := r.Topics[typ]; len(names) > 0 {
				fmt.Fprintf(&sb, "\n  %-22s %s", typ, strings.Join(names, ", "))
			}
		}
	}
	return sb.String()
}
