// Package channel provides an in-memory Go channel transport for graphsink.
// Every transport built in one process shares the same bus, so a publisher
// built for one database reaches the consumers built for another. This
// transport is useful for testing and local development.
package channel

import (
	"context"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/graphsink/transport"
)

// TransportName is the name used to register this transport.
const TransportName = "channel"

// Factory allows overriding the channel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// BusConfig configures the shared bus. Messages are kept so consumers that
// subscribe late still read from the beginning, like a log with
// auto.offset.reset=earliest.
var BusConfig = gochannel.Config{
	OutputChannelBuffer: 64,
	Persistent:          true,
}

var (
	busMu sync.Mutex
	bus   *sharedBus
)

type sharedBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber
}

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.ChannelCapabilities)
}

// Build returns a view onto the shared bus. Closing the returned publisher
// or subscriber leaves the bus running; subscriptions end with their
// context.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	b := sharedInstance(logger)
	return transport.Transport{
		Publisher:  detachedPublisher{b.publisher},
		Subscriber: detachedSubscriber{b.subscriber},
	}, nil
}

// Reset closes the shared bus and drops every retained message. The next
// Build starts a fresh one.
func Reset() error {
	busMu.Lock()
	defer busMu.Unlock()
	if bus == nil {
		return nil
	}
	err := bus.publisher.Close()
	bus = nil
	return err
}

// Capabilities returns the capabilities of this transport.
func Capabilities() transport.Capabilities {
	return transport.ChannelCapabilities
}

func sharedInstance(logger watermill.LoggerAdapter) *sharedBus {
	busMu.Lock()
	defer busMu.Unlock()
	if bus == nil {
		if logger == nil {
			logger = watermill.NopLogger{}
		}
		pub, sub := Factory(BusConfig, logger)
		bus = &sharedBus{publisher: pub, subscriber: sub}
	}
	return bus
}

type detachedPublisher struct {
	message.Publisher
}

func (detachedPublisher) Close() error { return nil }

type detachedSubscriber struct {
	message.Subscriber
}

func (detachedSubscriber) Close() error { return nil }
