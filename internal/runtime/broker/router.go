package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/ids"
	"github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/metadata"
)

// PublishOptions tune a single send.
type PublishOptions struct {
	// Key is the record key. A nil key is replaced by a random UUID.
	Key      any
	Format   Format
	Metadata metadata.Metadata
	// Partition pins the record to a partition. Transports without
	// partitions ignore it.
	Partition *int32
}

// Receipt describes a record accepted by the broker. Partition and Offset
// are -1 when the transport does not report them.
type Receipt struct {
	Topic     string
	Key       any
	MessageID string
	KeySize   int
	ValueSize int
	Timestamp time.Time
	Partition int32
	Offset    int64
}

// Map renders the receipt the way publishers receive it.
func (r Receipt) Map() map[string]any {
	out := map[string]any{
		"topic":     r.Topic,
		"messageId": r.MessageID,
		"keySize":   r.KeySize,
		"valueSize": r.ValueSize,
		"timestamp": r.Timestamp.UnixMilli(),
	}
	if r.Partition >= 0 {
		out["partition"] = r.Partition
		out["offset"] = r.Offset
	}
	return out
}

// Result is the outcome of an asynchronous send.
type Result struct {
	Receipt *Receipt
	Err     error
}

// Router publishes records on behalf of one database.
type Router struct {
	db        string
	publisher message.Publisher
	logger    logging.ServiceLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// RouterOption customises a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger used for asynchronous send failures.
func WithRouterLogger(log logging.ServiceLogger) RouterOption {
	return func(r *Router) {
		if log != nil {
			r.logger = log
		}
	}
}

// NewRouter builds a router for db writing through publisher. The router
// owns the publisher and closes it on Close.
func NewRouter(db string, publisher message.Publisher, opts ...RouterOption) (*Router, error) {
	if publisher == nil {
		return nil, errspkg.ErrPublisherRequired
	}
	if db == "" {
		return nil, errspkg.ErrDatabaseRequired
	}
	r := &Router{db: db, publisher: publisher, logger: logging.NewNopServiceLogger()}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// Database returns the database the router publishes for.
func (r *Router) Database() string {
	return r.db
}

// Send publishes payload to topic and waits for the broker to accept it.
func (r *Router) Send(ctx context.Context, topic string, payload any, opts PublishOptions) (*Receipt, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, errspkg.ErrServiceClosed
	}
	return r.send(ctx, topic, payload, opts)
}

// SendAsync publishes in the background. The returned channel receives
// exactly one Result. Failures are also logged.
func (r *Router) SendAsync(ctx context.Context, topic string, payload any, opts PublishOptions) <-chan Result {
	out := make(chan Result, 1)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		out <- Result{Err: errspkg.ErrServiceClosed}
		return out
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		receipt, err := r.send(context.WithoutCancel(ctx), topic, payload, opts)
		if err != nil {
			r.logger.Error("Async publish failed", err, logging.LogFields{logging.FieldTopic: topic, logging.FieldDatabase: r.db})
		}
		out <- Result{Receipt: receipt, Err: err}
	}()
	return out
}

func (r *Router) send(ctx context.Context, topic string, payload any, opts PublishOptions) (*Receipt, error) {
	if topic == "" {
		return nil, errspkg.ErrTopicRequired
	}

	key := opts.Key
	if key == nil {
		key = ids.NewRecordKey()
	}
	md := opts.Metadata.With(metadata.KeyDatabase, r.db)
	if opts.Partition != nil {
		if *opts.Partition < 0 {
			return nil, fmt.Errorf("partition %d: %w", *opts.Partition, errspkg.ErrInvalidPartition)
		}
		md = md.WithPartition(*opts.Partition)
	}
	msg, err := Encode(key, payload, opts.Format, md)
	if err != nil {
		return nil, err
	}
	position := &metadata.SentPosition{}
	msg.SetContext(metadata.WithSentPosition(ctx, position))

	if err := r.publisher.Publish(topic, msg); err != nil {
		return nil, fmt.Errorf("publish to %s: %w", topic, err)
	}

	receipt := &Receipt{
		Topic:     topic,
		Key:       key,
		MessageID: msg.UUID,
		KeySize:   len(msg.Metadata.Get(metadata.KeyRecordKey)),
		ValueSize: len(msg.Payload),
		Timestamp: time.Now(),
		Partition: -1,
		Offset:    -1,
	}
	if partition, offset, ok := position.Get(); ok {
		receipt.Partition, receipt.Offset = partition, offset
	}

	r.logger.Debug("Record published", logging.LogFields{
		logging.FieldTopic:    topic,
		logging.FieldDatabase: r.db,
		"message_uuid":        msg.UUID,
		"partition":           receipt.Partition,
		"offset":              receipt.Offset,
	})
	return receipt, nil
}

// Close waits for in-flight asynchronous sends and closes the publisher.
func (r *Router) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.wg.Wait()
	return r.publisher.Close()
}
