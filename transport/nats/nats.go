// Package nats provides a NATS Core transport for graphsink. Sinks of the
// same database share a queue group, so each record reaches one of them.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	natsgo "github.com/nats-io/nats.go"

	"github.com/drblury/graphsink/transport"
)

// TransportName is the streams.pubsub.system value of this transport.
const TransportName = "nats"

const (
	defaultClientName = "graphsink"
	reconnectWait     = 2 * time.Second
)

// Hooks replaced in tests.
var (
	PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return nats.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return nats.NewSubscriber(cfg, logger)
	}
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.NATSCapabilities)
}

// Build connects a publisher and a subscriber to streams.nats.url, or to the
// local default server when it is empty. JetStream stays disabled.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	url := cfg.GetNATSURL()
	if url == "" {
		url = natsgo.DefaultURL
	}
	options := connectOptions(cfg)
	marshaler := &nats.NATSMarshaler{}
	noJetStream := nats.JetStreamConfig{Disabled: true}

	publisher, err := PublisherFactory(nats.PublisherConfig{
		URL:         url,
		NatsOptions: options,
		Marshaler:   marshaler,
		JetStream:   noJetStream,
	}, logger)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("nats: publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(nats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.GetKafkaConsumerGroup(),
		NatsOptions:      options,
		Unmarshaler:      marshaler,
		JetStream:        noJetStream,
	}, logger)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("nats: subscriber: %w", err), publisher.Close())
	}

	return transport.Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

func Capabilities() transport.Capabilities {
	return transport.NATSCapabilities
}

func connectOptions(cfg transport.Config) []natsgo.Option {
	name := cfg.GetKafkaClientID()
	if name == "" {
		name = defaultClientName
	}
	return []natsgo.Option{
		natsgo.Name(name),
		natsgo.RetryOnFailedConnect(true),
		natsgo.ReconnectWait(reconnectWait),
	}
}
