package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drblury/graphsink/internal/runtime/broker"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Database  string
	DefaultDB string
	Key       string
	Encoding  string
	Partition int32
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <topic> <value>",
		Short: "Publish one record to a topic",
		Long: `Publish one record. The value and the --key are JSON documents; a value
that is not valid JSON is sent as a string. An empty value publishes a
tombstone.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", DefaultDatabase, "database whose router publishes the record")
	cmd.Flags().StringVar(&opts.DefaultDB, "default-db", DefaultDatabase, "default database name")
	cmd.Flags().StringVarP(&opts.Key, "key", "k", "", "record key (JSON); a random UUID when empty")
	cmd.Flags().StringVar(&opts.Encoding, "encoding", string(broker.FormatJSON), "value encoding (json|proto)")
	cmd.Flags().Int32Var(&opts.Partition, "partition", -1, "partition to publish to (default: by key)")
	return cmd
}

func runPublish(opts *PublishOptions, args []string, cmd *cobra.Command) error {
	out := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	topic, rawValue := args[0], args[1]

	conf, err := loadConfig(opts.RootOptions)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
	}

	pubOpts := broker.PublishOptions{Format: broker.ParseFormat(opts.Encoding)}
	if opts.Key != "" {
		pubOpts.Key = parseLenient(opts.Key)
	}
	if cmd.Flags().Changed("partition") {
		pubOpts.Partition = &opts.Partition
	}
	var value any
	if rawValue != "" {
		value = parseLenient(rawValue)
	}

	ctx := cmd.Context()
	svc, err := newClientService(ctx, opts.RootOptions, conf, cmd.ErrOrStderr())
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeConfig, "cannot create service", err)
	}
	defer svc.Close()

	if err := svc.ActivateDatabase(ctx, opts.Database, opts.Database == opts.DefaultDB); err != nil {
		return out.Fail(ExitCommandError, ErrCodeBroker, fmt.Sprintf("cannot activate %s", opts.Database), err)
	}

	receipt, err := svc.Publish(ctx, opts.Database, topic, value, pubOpts)
	if err != nil {
		return out.Fail(ExitCommandError, ErrCodeBroker, fmt.Sprintf("cannot publish to %s", topic), err)
	}
	if receipt == nil {
		return out.Success("Nothing published.", nil)
	}
	msg := fmt.Sprintf("Published %s to %s (key %v, %d bytes)", receipt.MessageID, receipt.Topic, receipt.Key, receipt.ValueSize)
	if receipt.Partition >= 0 {
		msg += fmt.Sprintf(" at partition %d offset %d", receipt.Partition, receipt.Offset)
	}
	return out.Success(msg, receipt.Map())
}

// parseLenient decodes raw as JSON and falls back to the raw string.
func parseLenient(raw string) any {
	v, err := jsoncodec.DecodeValue([]byte(raw))
	if err != nil {
		return raw
	}
	return v
}
