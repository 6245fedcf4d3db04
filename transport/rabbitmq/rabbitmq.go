// Package rabbitmq provides a RabbitMQ/AMQP transport for graphsink.
// Topics map to durable fanout exchanges; every consumer group binds its own
// durable queue so that sinks of different databases each see every record.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/graphsink/transport"
)

// TransportName is the streams.pubsub.system value of this transport.
const TransportName = "rabbitmq"

// ErrMissingURL is returned when streams.rabbitmq.url is empty.
var ErrMissingURL = errors.New("rabbitmq: streams.rabbitmq.url is required")

// Hooks replaced in tests.
var (
	ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
		return amqp.NewConnection(cfg, logger)
	}
	PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
		return amqp.NewPublisherWithConnection(cfg, logger, conn)
	}
	SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
		return amqp.NewSubscriberWithConnection(cfg, logger, conn)
	}
	ConnectionCloser = func(conn *amqp.ConnectionWrapper) error {
		return conn.Close()
	}
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.RabbitMQCapabilities)
}

// Build dials the broker once and shares the connection between the
// publisher and the subscriber. Anything opened before a failure is closed
// again.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetRabbitMQURL()
	if url == "" {
		return transport.Transport{}, ErrMissingURL
	}
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("rabbitmq: connect: %w", err)
	}

	amqpConfig := amqp.NewDurablePubSubConfig(url, QueueName(cfg.GetKafkaConsumerGroup()))

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("rabbitmq: publisher: %w", err), ConnectionCloser(conn))
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		return transport.Transport{}, errors.Join(
			fmt.Errorf("rabbitmq: subscriber: %w", err),
			publisher.Close(),
			ConnectionCloser(conn),
		)
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// QueueName names the queue bound for a consumer group: the topic alone
// without a group, topic_group otherwise.
func QueueName(group string) amqp.QueueNameGenerator {
	if group == "" {
		return amqp.GenerateQueueNameTopicName
	}
	return amqp.GenerateQueueNameTopicNameWithSuffix(group)
}

func Capabilities() transport.Capabilities {
	return transport.RabbitMQCapabilities
}
