// Package sink applies ingestion strategies to batches of records and writes
// the resulting statements to the graph store.
package sink

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/strategy"
)

const tracerName = "graphsink-sink"

// Writer executes one statement with its events bound to the $events
// parameter. It fails on constraint violations or transaction conflicts.
type Writer interface {
	Write(ctx context.Context, query string, events []any) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(ctx context.Context, query string, events []any) error

func (f WriterFunc) Write(ctx context.Context, query string, events []any) error {
	return f(ctx, query, events)
}

// StrategyResolver looks up the strategy bound to a topic.
type StrategyResolver interface {
	Strategy(topic string) (strategy.Strategy, error)
}

// Service writes batches for a topic through its strategy.
type Service struct {
	resolver StrategyResolver
	writer   Writer
	metrics  *Metrics
	logger   logging.ServiceLogger
	tracer   trace.Tracer
}

// Option customises a Service.
type Option func(*Service)

// WithMetrics records write statistics into m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger used for write diagnostics.
func WithLogger(log logging.ServiceLogger) Option {
	return func(s *Service) {
		if log != nil {
			s.logger = log
		}
	}
}

// NewService returns a Service resolving strategies through resolver and
// writing through writer.
func NewService(resolver StrategyResolver, writer Writer, opts ...Option) (*Service, error) {
	if resolver == nil {
		return nil, errspkg.ErrResolverRequired
	}
	if writer == nil {
		return nil, errspkg.ErrWriterRequired
	}
	s := &Service{
		resolver: resolver,
		writer:   writer,
		logger:   logging.NewNopServiceLogger(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Metrics returns the collector the service records into, or nil.
func (s *Service) Metrics() *Metrics {
	return s.metrics
}

// WriteForTopic runs the four phases of the topic's strategy in order and
// writes every produced statement before producing the next. A ctx that is
// already canceled rejects the batch before anything is written. Once the
// first phase starts the batch runs to the end detached from ctx, so records
// that were already acknowledged are never left half applied. The first
// failing write aborts the batch with a *errors.StoreWriteError.
func (s *Service) WriteForTopic(ctx context.Context, topic string, batch []events.SinkEntity) error {
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	st, err := s.resolver.Strategy(topic)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "WriteForTopic")
	defer span.End()
	span.SetAttributes(
		attribute.String("graphsink.topic", topic),
		attribute.String("graphsink.strategy", st.Name()),
		attribute.Int("graphsink.batch_size", len(batch)),
	)

	if err := ctx.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "canceled")
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordBatch(topic, st.Name())
	}
	log := logging.ForTopic(s.logger, "", topic).With(logging.LogFields{"strategy": st.Name()})

	writeCtx := context.WithoutCancel(ctx)
	statements := 0
	for _, phase := range strategy.Phases {
		for _, qe := range strategy.Apply(st, phase, batch) {
			if err := s.write(writeCtx, topic, phase, qe); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "write failed")
				log.Error("Graph store write failed", err, logging.LogFields{"phase": phase.String(), "events": len(qe.Events)})
				return err
			}
			statements++
		}
	}

	span.SetAttributes(attribute.Int("graphsink.statements", statements))
	log.Debug("Batch written", logging.LogFields{"statements": statements, "records": len(batch)})
	return nil
}

func (s *Service) write(ctx context.Context, topic string, phase strategy.Phase, qe strategy.QueryEvents) error {
	started := time.Now()
	err := s.writer.Write(ctx, qe.Query, qe.Events)
	took := time.Since(started)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordFailure(topic, phase.String(), err, took)
		}
		return &errspkg.StoreWriteError{
			Topic:  topic,
			Phase:  phase.String(),
			Query:  qe.Query,
			Events: len(qe.Events),
			Err:    err,
		}
	}
	if s.metrics != nil {
		s.metrics.RecordWrite(topic, phase.String(), len(qe.Events), took)
	}
	return nil
}
