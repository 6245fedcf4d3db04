// Package transporttest provides fakes for exercising transport builders
// without a running broker.
package transporttest

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Config is a transport.Config backed by plain fields.
type Config struct {
	PubSubSystem         string
	KafkaBrokers         []string
	KafkaConsumerGroup   string
	KafkaClientID        string
	KafkaAutoOffsetReset string
	KafkaAutoCommit      bool
	RabbitMQURL          string
	NATSURL              string
	HTTPServerAddress    string
	HTTPPublisherURL     string
	AWSRegion            string
	AWSAccountID         string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	AWSEndpoint          string
}

func (c *Config) GetPubSubSystem() string         { return c.PubSubSystem }
func (c *Config) GetKafkaBrokers() []string       { return c.KafkaBrokers }
func (c *Config) GetKafkaConsumerGroup() string   { return c.KafkaConsumerGroup }
func (c *Config) GetKafkaClientID() string        { return c.KafkaClientID }
func (c *Config) GetKafkaAutoOffsetReset() string { return c.KafkaAutoOffsetReset }
func (c *Config) GetKafkaAutoCommit() bool        { return c.KafkaAutoCommit }
func (c *Config) GetRabbitMQURL() string          { return c.RabbitMQURL }
func (c *Config) GetNATSURL() string              { return c.NATSURL }
func (c *Config) GetHTTPServerAddress() string    { return c.HTTPServerAddress }
func (c *Config) GetHTTPPublisherURL() string     { return c.HTTPPublisherURL }
func (c *Config) GetAWSRegion() string            { return c.AWSRegion }
func (c *Config) GetAWSAccountID() string         { return c.AWSAccountID }
func (c *Config) GetAWSAccessKeyID() string       { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string   { return c.AWSSecretAccessKey }
func (c *Config) GetAWSEndpoint() string          { return c.AWSEndpoint }

// Publisher records published messages.
type Publisher struct {
	mu       sync.Mutex
	Messages map[string][]*message.Message
	Err      error
	Closed   bool
}

func (p *Publisher) Publish(topic string, messages ...*message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	if p.Messages == nil {
		p.Messages = make(map[string][]*message.Message)
	}
	p.Messages[topic] = append(p.Messages[topic], messages...)
	return nil
}

// Published returns the messages published to topic so far.
func (p *Publisher) Published(topic string) []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*message.Message(nil), p.Messages[topic]...)
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Subscriber hands out channels that stay open until the subscription
// context ends.
type Subscriber struct {
	mu       sync.Mutex
	Topics   []string
	Err      error
	CloseErr error
	Closed   bool
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	s.Topics = append(s.Topics, topic)
	ch := make(chan *message.Message)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return s.CloseErr
}
