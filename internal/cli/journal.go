package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drblury/graphsink/internal/runtime/journal"
)

// JournalOptions holds flags for the journal command.
type JournalOptions struct {
	*RootOptions
	Path  string
	Limit int
}

// JournalEntry is the rendered form of one recorded statement.
type JournalEntry struct {
	ID        int64  `json:"id"`
	Query     string `json:"query"`
	Events    []any  `json:"events"`
	WrittenAt string `json:"written_at"`
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &JournalOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "journal",
		Short:         "List the statements recorded by serve",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Path, "journal", journal.DefaultFilePath, "journal database file")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "show only the last n statements")
	return cmd
}

func runJournal(opts *JournalOptions, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	store, err := journal.New(journal.Config{FilePath: opts.Path})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, "cannot open journal", err)
	}
	defer store.Close()

	entries, err := store.Entries(cmd.Context())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeJournal, "cannot read journal", err)
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[len(entries)-opts.Limit:]
	}

	rendered := make([]JournalEntry, 0, len(entries))
	for _, e := range entries {
		rendered = append(rendered, JournalEntry{
			ID:        e.ID,
			Query:     e.Query,
			Events:    e.Events,
			WrittenAt: e.WrittenAt.UTC().Format(time.RFC3339),
		})
	}
	return out.Success(formatJournal(rendered), rendered)
}

func formatJournal(entries []JournalEntry) string {
	if len(entries) == 0 {
		return "Journal is empty."
	}
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "#%d %s (%d event(s))\n%s", e.ID, e.WrittenAt, len(e.Events), e.Query)
	}
	return sb.String()
}
