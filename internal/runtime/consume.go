package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/drblury/graphsink/internal/runtime/broker"
	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/stream"
	newtransport "github.com/drblury/graphsink/transport"
)

// DefaultConsumeTimeout bounds a consume call when no timeout is given.
const DefaultConsumeTimeout = time.Second

// PartitionOffset pins a partition to the first offset a consumer wants.
type PartitionOffset struct {
	Partition int32
	Offset    int64
}

// ConsumeOptions tune a single Consume call.
type ConsumeOptions struct {
	// Timeout is how long the consumer keeps polling and how long each pull
	// waits for the next record.
	Timeout time.Duration
	// From overrides the offset reset policy ("earliest" or "latest").
	From string
	// GroupID overrides the consumer group.
	GroupID string
	// Commit enables automatic offset commits for this consumer.
	Commit bool
	// Partitions restricts the records to the listed partitions, starting
	// at the given offsets. Ignored by transports without partitions.
	Partitions []PartitionOffset
}

// DefaultConsumeOptions returns the options used when a caller has none.
func DefaultConsumeOptions() ConsumeOptions {
	return ConsumeOptions{Timeout: DefaultConsumeTimeout, Commit: true}
}

// Consume reads topic with a dedicated consumer and returns the records as a
// pull-based sequence. The consumer polls until the timeout has elapsed
// since the call, then ends the sequence. Tombstones are skipped. An empty
// topic yields an already finished sequence.
func (s *Service) Consume(ctx context.Context, topic string, opts ConsumeOptions) (*stream.Bridge[broker.Record], error) {
	if topic == "" {
		return stream.Finished[broker.Record](), nil
	}
	// The consumer is counted before Close can observe it.
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return nil, errspkg.ErrServiceClosed
	}
	s.consumers.Add(1)
	s.closeMu.RUnlock()
	started := false
	defer func() {
		if !started {
			s.consumers.Done()
		}
	}()

	if opts.Timeout <= 0 {
		opts.Timeout = DefaultConsumeTimeout
	}

	base := s.Config()
	conf := base.WithConsumer(opts.GroupID, opts.From, opts.Commit)
	t, err := s.buildTransport(ctx, conf)
	if err != nil {
		return nil, err
	}

	log := s.Logger.With(loggingpkg.LogFields{loggingpkg.FieldTopic: topic, loggingpkg.FieldGroupID: conf.KafkaConsumerGroup})
	clientOpts := []broker.ClientOption{
		broker.WithAutoAck(true),
		broker.WithPosition(t.Position),
		broker.WithClientLogger(log),
	}
	var wanted []newtransport.Feature
	if len(opts.Partitions) > 0 {
		wanted = append(wanted, newtransport.FeaturePartitioning)
	}
	if opts.GroupID != "" {
		wanted = append(wanted, newtransport.FeatureConsumerGroups)
	}
	if missing := t.Capabilities.Missing(wanted...); len(missing) > 0 {
		log.Info("Transport ignores consume options", loggingpkg.LogFields{loggingpkg.FieldTransport: t.Capabilities.Name, "unsupported": missing})
	}
	if len(opts.Partitions) > 0 && t.Capabilities.Supports(newtransport.FeaturePartitioning) {
		clientOpts = append(clientOpts, broker.WithFilter(partitionFilter(opts.Partitions)))
	}
	client, err := broker.NewSubscriberClient(t.Subscriber, []string{topic}, clientOpts...)
	if err != nil {
		return nil, errors.Join(err, t.Close())
	}
	if err := client.Start(ctx); err != nil {
		return nil, errors.Join(err, t.Close())
	}

	queue := stream.NewQueue[broker.Record](base.ConsumeQueueCapacity)
	prodCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)

	started = true
	go func() {
		defer s.consumers.Done()
		defer stop()
		s.produce(prodCtx, client, queue, opts.Timeout, max(base.ConsumeQueueCapacity, 1), log)
		if err := errors.Join(client.Stop(), t.Close()); err != nil {
			log.Error("Failed to close consumer", err, nil)
		}
	}()

	return stream.NewBridge(queue, stream.ContextGuard(ctx), opts.Timeout, stream.WithRelease(cancel)), nil
}

// produce moves records into queue until timeout has elapsed or ctx ends,
// then pushes the tombstone.
func (s *Service) produce(ctx context.Context, client broker.Client, queue *stream.Queue[broker.Record], timeout time.Duration, batch int, log loggingpkg.ServiceLogger) {
	deadline := time.Now().Add(timeout)
	for ctx.Err() == nil {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		records, err := client.Poll(ctx, broker.PollOptions{Timeout: remaining, MaxRecords: batch})
		if err != nil {
			if ctx.Err() == nil {
				log.Error("Consumer poll failed", err, nil)
			}
			break
		}
		for _, r := range records {
			if r.Value == nil {
				continue
			}
			if err := queue.Put(ctx, r); err != nil {
				return
			}
		}
	}
	if err := queue.PutTombstone(ctx); err != nil {
		log.Debug("Consumer ended before the tombstone was read", nil)
	}
}

func partitionFilter(partitions []PartitionOffset) broker.Filter {
	start := make(map[int32]int64, len(partitions))
	for _, p := range partitions {
		start[p.Partition] = p.Offset
	}
	return func(r broker.Record) bool {
		offset, ok := start[r.Partition]
		return ok && r.Offset >= offset
	}
}
