package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/transport"
)

// PollOptions bound a single Poll call.
type PollOptions struct {
	// Timeout is how long Poll waits for the first record.
	Timeout time.Duration
	// MaxRecords caps the batch size. Zero means unbounded.
	MaxRecords int
	// Linger is how long Poll keeps collecting after the first record. Zero
	// collects only what is already buffered.
	Linger time.Duration
}

// Client is a pull-based view onto a set of broker topics.
type Client interface {
	Start(ctx context.Context) error
	Poll(ctx context.Context, opts PollOptions) ([]Record, error)
	Ack(records []Record)
	Nack(records []Record)
	Stop() error
}

// Filter decides whether a decoded record is handed to the caller. Rejected
// records are acknowledged and dropped.
type Filter func(Record) bool

// ClientOption customises a SubscriberClient.
type ClientOption func(*SubscriberClient)

// WithAutoAck acknowledges every record as soon as Poll returns it.
func WithAutoAck(enabled bool) ClientOption {
	return func(c *SubscriberClient) {
		c.autoAck = enabled
	}
}

// WithPosition reads partition and offset from consumed messages.
func WithPosition(fn transport.PositionFunc) ClientOption {
	return func(c *SubscriberClient) {
		c.position = fn
	}
}

// WithPoisonQueue forwards undecodable messages to topic before they are
// acknowledged.
func WithPoisonQueue(publisher message.Publisher, topic string) ClientOption {
	return func(c *SubscriberClient) {
		c.poison = publisher
		c.poisonTopic = topic
	}
}

// WithFilter drops records rejected by fn.
func WithFilter(fn Filter) ClientOption {
	return func(c *SubscriberClient) {
		c.filter = fn
	}
}

// WithClientLogger sets the logger used for decode and subscription errors.
func WithClientLogger(log logging.ServiceLogger) ClientOption {
	return func(c *SubscriberClient) {
		if log != nil {
			c.logger = log
		}
	}
}

type delivery struct {
	topic string
	msg   *message.Message
}

// SubscriberClient implements Client over a watermill subscriber. It is safe
// for one polling goroutine; Ack, Nack and Stop may be called from others.
type SubscriberClient struct {
	subscriber  message.Subscriber
	topics      []string
	autoAck     bool
	position    transport.PositionFunc
	poison      message.Publisher
	poisonTopic string
	filter      Filter
	logger      logging.ServiceLogger

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	inbox   chan delivery
	wg      sync.WaitGroup
	pending map[string]*message.Message
}

// NewSubscriberClient builds a client reading topics from subscriber.
func NewSubscriberClient(subscriber message.Subscriber, topics []string, opts ...ClientOption) (*SubscriberClient, error) {
	if subscriber == nil {
		return nil, errspkg.ErrSubscriberRequired
	}
	c := &SubscriberClient{
		subscriber: subscriber,
		topics:     append([]string(nil), topics...),
		logger:     logging.NewNopServiceLogger(),
		inbox:      make(chan delivery),
		pending:    make(map[string]*message.Message),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Topics returns the topics the client reads.
func (c *SubscriberClient) Topics() []string {
	return append([]string(nil), c.topics...)
}

// Start subscribes to every topic. Subscriptions live until Stop, not
// until ctx ends; ctx only bounds the subscribe calls themselves.
func (c *SubscriberClient) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errspkg.ErrServiceClosed
	}
	if c.started {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	for _, topic := range c.topics {
		ch, err := c.subscriber.Subscribe(runCtx, topic)
		if err != nil {
			cancel()
			c.wg.Wait()
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		c.wg.Add(1)
		go c.forward(runCtx, topic, ch)
	}
	c.cancel = cancel
	c.started = true
	return nil
}

func (c *SubscriberClient) forward(ctx context.Context, topic string, ch <-chan *message.Message) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case c.inbox <- delivery{topic: topic, msg: msg}:
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}
}

// Poll waits up to opts.Timeout for a first record and then gathers more
// until MaxRecords is reached or the linger window closes. A timeout with
// nothing received returns an empty batch and no error.
func (c *SubscriberClient) Poll(ctx context.Context, opts PollOptions) ([]Record, error) {
	c.mu.Lock()
	started, stopped := c.started, c.stopped
	c.mu.Unlock()
	if stopped {
		return nil, errspkg.ErrServiceClosed
	}
	if !started {
		return nil, errspkg.ErrClientNotStarted
	}

	var records []Record
	timer := time.NewTimer(opts.Timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d := <-c.inbox:
		records = c.collect(records, d)
	}

	var linger <-chan time.Time
	if opts.Linger > 0 {
		lt := time.NewTimer(opts.Linger)
		defer lt.Stop()
		linger = lt.C
	}
	for opts.MaxRecords <= 0 || len(records) < opts.MaxRecords {
		if linger == nil {
			select {
			case d := <-c.inbox:
				records = c.collect(records, d)
				continue
			default:
				return records, nil
			}
		}
		select {
		case <-ctx.Done():
			return records, nil
		case <-linger:
			return records, nil
		case d := <-c.inbox:
			records = c.collect(records, d)
		}
	}
	return records, nil
}

func (c *SubscriberClient) collect(records []Record, d delivery) []Record {
	rec, err := Decode(d.topic, d.msg, c.position)
	if err != nil {
		c.toPoisonQueue(d, err)
		d.msg.Ack()
		return records
	}
	if c.filter != nil && !c.filter(rec) {
		d.msg.Ack()
		return records
	}
	if c.autoAck {
		d.msg.Ack()
	} else {
		c.mu.Lock()
		c.pending[d.msg.UUID] = d.msg
		c.mu.Unlock()
	}
	return append(records, rec)
}

func (c *SubscriberClient) toPoisonQueue(d delivery, cause error) {
	fields := logging.LogFields{logging.FieldTopic: d.topic, "message_uuid": d.msg.UUID}
	if c.poison == nil || c.poisonTopic == "" {
		c.logger.Error("Dropping undecodable message", cause, fields)
		return
	}
	poisoned := d.msg.Copy()
	poisoned.Metadata.Set("poison_reason", cause.Error())
	poisoned.Metadata.Set("poison_topic", d.topic)
	if err := c.poison.Publish(c.poisonTopic, poisoned); err != nil {
		c.logger.Error("Failed to forward message to poison queue", errors.Join(cause, err), fields)
		return
	}
	fields["poison_queue"] = c.poisonTopic
	c.logger.Info("Forwarded undecodable message to poison queue", fields)
}

// Ack acknowledges records returned by Poll. Records already acknowledged
// are ignored.
func (c *SubscriberClient) Ack(records []Record) {
	for _, msg := range c.release(records) {
		msg.Ack()
	}
}

// Nack rejects records returned by Poll so the broker redelivers them.
func (c *SubscriberClient) Nack(records []Record) {
	for _, msg := range c.release(records) {
		msg.Nack()
	}
}

func (c *SubscriberClient) release(records []Record) []*message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*message.Message, 0, len(records))
	for _, rec := range records {
		if msg, ok := c.pending[rec.MessageID]; ok {
			delete(c.pending, rec.MessageID)
			out = append(out, msg)
		}
	}
	return out
}

// Stop ends every subscription, rejects records still awaiting an
// acknowledgement and waits for the forwarding goroutines. The underlying
// subscriber is left open; its owner closes it.
func (c *SubscriberClient) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	cancel := c.cancel
	pending := c.pending
	c.pending = make(map[string]*message.Message)
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, msg := range pending {
		msg.Nack()
	}
	c.wg.Wait()
	return nil
}

var _ Client = (*SubscriberClient)(nil)
