package runtime

import (
	"context"
	"errors"
	"sync"

	"github.com/drblury/graphsink/internal/runtime/broker"
	"github.com/drblury/graphsink/internal/runtime/events"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/sink"
)

// Status is the lifecycle position of an event sink.
type Status string

const (
	StatusRunning Status = "RUNNING"
	StatusStopped Status = "STOPPED"
	StatusUnknown Status = "UNKNOWN"
)

// EventSink polls the topics of one database and writes every batch through
// the sink service.
type EventSink struct {
	db      string
	client  broker.Client
	writer  *sink.Service
	poll    broker.PollOptions
	autoAck bool
	logger  loggingpkg.ServiceLogger

	mu      sync.Mutex
	status  Status
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

func (s *Service) newEventSink(d *database) (*EventSink, error) {
	names := d.holder.Load().Topics().Names()
	log := s.Logger.With(loggingpkg.LogFields{loggingpkg.FieldDatabase: d.name, "component": "event_sink"})

	opts := []broker.ClientOption{
		broker.WithAutoAck(d.conf.KafkaAutoCommit),
		broker.WithPosition(d.transport.Position),
		broker.WithClientLogger(log),
	}
	if d.conf.PoisonQueue != "" {
		opts = append(opts, broker.WithPoisonQueue(d.transport.Publisher, d.conf.PoisonQueue))
	}
	client, err := broker.NewSubscriberClient(d.transport.Subscriber, names, opts...)
	if err != nil {
		return nil, err
	}

	return &EventSink{
		db:     d.name,
		client: client,
		writer: d.writer,
		poll: broker.PollOptions{
			Timeout:    d.conf.SinkPollInterval,
			MaxRecords: d.conf.SinkPollMaxRecords,
		},
		autoAck: d.conf.KafkaAutoCommit,
		logger:  log,
		status:  StatusStopped,
	}, nil
}

// Start subscribes to the topics and runs the sink job in the background.
func (e *EventSink) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusRunning {
		return nil
	}
	if err := e.client.Start(ctx); err != nil {
		return err
	}

	jobCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.status = StatusRunning
	go e.run(jobCtx, e.done)

	e.logger.Info("Event sink started", nil)
	return nil
}

// Status reports whether the job is still polling.
func (e *EventSink) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Stop ends the job and the broker subscription. It waits for an in-flight
// batch to finish writing.
func (e *EventSink) Stop() error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil
	}
	e.stopped = true
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	err := e.client.Stop()

	e.mu.Lock()
	e.status = StatusStopped
	e.mu.Unlock()
	e.logger.Info("Event sink stopped", nil)
	return err
}

func (e *EventSink) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer func() {
		e.mu.Lock()
		e.status = StatusStopped
		e.mu.Unlock()
	}()

	for {
		records, err := e.client.Poll(ctx, e.poll)
		if err != nil {
			if ctx.Err() == nil {
				e.logger.Error("Event sink poll failed, stopping job", err, nil)
			}
			return
		}
		e.handle(ctx, records)
		if ctx.Err() != nil {
			return
		}
	}
}

// handle writes records topic by topic, keeping the order records arrived
// in within each topic. Once ctx is canceled no further topic batch starts:
// with manual acknowledgement the remaining records are nacked for
// redelivery. Auto-acknowledged records are already committed, so they are
// written to the end on a detached context.
func (e *EventSink) handle(ctx context.Context, records []broker.Record) {
	if len(records) == 0 {
		return
	}

	var order []string
	byTopic := make(map[string][]broker.Record)
	for _, r := range records {
		if _, ok := byTopic[r.Topic]; !ok {
			order = append(order, r.Topic)
		}
		byTopic[r.Topic] = append(byTopic[r.Topic], r)
	}

	writeCtx := ctx
	if e.autoAck {
		writeCtx = context.WithoutCancel(ctx)
	}

	for i, topic := range order {
		batch := byTopic[topic]
		if !e.autoAck && ctx.Err() != nil {
			var rest []broker.Record
			for _, t := range order[i:] {
				rest = append(rest, byTopic[t]...)
			}
			e.client.Nack(rest)
			e.logger.Debug("Event sink canceled, batches left for redelivery", loggingpkg.LogFields{"records": len(rest)})
			return
		}

		entities := make([]events.SinkEntity, 0, len(batch))
		for _, r := range batch {
			entities = append(entities, r.Entity())
		}

		err := e.writer.WriteForTopic(writeCtx, topic, entities)
		switch {
		case err == nil:
			if !e.autoAck {
				e.client.Ack(batch)
			}
		case errors.Is(err, context.Canceled):
			if !e.autoAck {
				e.client.Nack(batch)
			}
		default:
			e.logger.Error("Failed to write batch", err, loggingpkg.LogFields{
				loggingpkg.FieldTopic: topic,
				"records":             len(batch),
			})
			if !e.autoAck {
				e.client.Nack(batch)
			}
		}
	}
}
