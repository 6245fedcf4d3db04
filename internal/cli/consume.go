package cli

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

// ConsumeOptions holds flags for the consume command.
type ConsumeOptions struct {
	*RootOptions
	Timeout    time.Duration
	From       string
	GroupID    string
	NoCommit   bool
	Partitions []string
}

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConsumeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "consume <topic>",
		Short: "Read records from a topic",
		Long: `Read records from a topic with a dedicated consumer until the timeout
elapses. Tombstones are skipped.

Partitions are given as partition:offset, for example --partition 0:42.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(opts, args, cmd)
		},
	}

	cmd.Flags().DurationVarP(&opts.Timeout, "timeout", "t", 5*time.Second, "how long to keep consuming")
	cmd.Flags().StringVar(&opts.From, "from", "", "offset reset policy (earliest|latest)")
	cmd.Flags().StringVarP(&opts.GroupID, "group", "g", "", "consumer group (defaults to the configured one)")
	cmd.Flags().BoolVar(&opts.NoCommit, "no-commit", false, "do not commit offsets")
	cmd.Flags().StringSliceVar(&opts.Partitions, "partition", nil, "partition:offset to read from (repeatable)")
	return cmd
}

func runConsume(opts *ConsumeOptions, args []string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	topic := args[0]

	partitions, err := ParsePartitions(opts.Partitions)
	if err != nil {
		return out.Fail(ExitFailure, ErrCodeGeneric, "invalid partition", err)
	}

	conf, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	ctx := cmd.Context()
	svc, err := newClientService(ctx, opts.RootOptions, conf, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "cannot create service", err)
	}
	defer svc.Close()

	records, err := svc.Consume(ctx, topic, runtimepkg.ConsumeOptions{
		Timeout:    opts.Timeout,
		From:       opts.From,
		GroupID:    opts.GroupID,
		Commit:     !opts.NoCommit,
		Partitions: partitions,
	})
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeBroker, fmt.Sprintf("cannot consume %s", topic), err)
	}
	defer records.Close()

	var collected []map[string]any
	for rec := range records.All() {
		m := rec.Map()
		if out.Format == "json" {
			collected = append(collected, m)
			continue
		}
		line, err := jsoncodec.Marshal(m)
		if err != nil {
			return out.Fail(ExitFailure, ErrCodeInvalidRecord, "cannot render record", err)
		}
		fmt.Fprintln(out.Writer, string(line))
	}
	out.VerboseLog("Consumer stopped: %s", records.EndReason())

	if out.Format == "json" {
		return out.Success("", collected)
	}
	return nil
}

// ParsePartitions parses partition:offset pairs. An offset may be omitted
// to start at zero.
func ParsePartitions(values []string) ([]runtimepkg.PartitionOffset, error) {
	var out []runtimepkg.PartitionOffset
	for _, v := range values {
		p, o, hasOffset := strings.Cut(strings.TrimSpace(v), ":")
		partition, err := strconv.ParseInt(p, 10, 32)
		if err != nil || partition < 0 {
			return nil, fmt.Errorf("invalid partition %q", v)
		}
		var offset int64
		if hasOffset {
			offset, err = strconv.ParseInt(o, 10, 64)
			if err != nil || offset < 0 {
				return nil, fmt.Errorf("invalid offset in %q", v)
			}
		}
		out = append(out, runtimepkg.PartitionOffset{Partition: int32(partition), Offset: offset})
	}
	return out, nil
}
