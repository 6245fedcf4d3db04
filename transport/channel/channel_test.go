package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/graphsink/transport"
	"github.com/drblury/graphsink/transport/transporttest"
)

func TestRegistered(t *testing.T) {
	assert.True(t, transport.DefaultRegistry.Has(TransportName))

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsAck)
	assert.True(t, caps.SupportsNack)
	assert.False(t, caps.SupportsPartitioning)
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuildSharesOneBus(t *testing.T) {
	require.NoError(t, Reset())
	t.Cleanup(func() { _ = Reset() })

	cfg := &transporttest.Config{PubSubSystem: TransportName}
	producer, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)
	consumer, err := Build(context.Background(), cfg, watermill.NopLogger{})
	require.NoError(t, err)

	require.NoError(t, producer.Publisher.Publish("people", message.NewMessage("1", []byte(`{"id":1}`))))
	require.NoError(t, producer.Publisher.Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := consumer.Subscriber.Subscribe(ctx, "people")
	require.NoError(t, err)

	select {
	case msg := <-messages:
		assert.Equal(t, "1", msg.UUID)
		msg.Ack()
	case <-time.After(time.Second):
		t.Fatal("retained message was not delivered to a late subscriber")
	}

	require.NoError(t, consumer.Subscriber.Close())
	_, err = consumer.Subscriber.Subscribe(ctx, "people")
	assert.NoError(t, err, "closing a view must not close the bus")
}

func TestBuildUsesCustomFactory(t *testing.T) {
	require.NoError(t, Reset())
	originalFactory := Factory
	defer func() {
		Factory = originalFactory
		_ = Reset()
	}()

	mockPub := &transporttest.Publisher{}
	mockSub := &transporttest.Subscriber{}
	calls := 0
	Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
		calls++
		assert.True(t, cfg.Persistent)
		return mockPub, mockSub
	}

	for i := 0; i < 2; i++ {
		tr, err := Build(context.Background(), &transporttest.Config{}, nil)
		require.NoError(t, err)
		require.NoError(t, tr.Publisher.Publish("t", message.NewMessage("x", nil)))
	}
	assert.Equal(t, 1, calls)
	assert.Len(t, mockPub.Published("t"), 2)

	require.NoError(t, Reset())
	assert.True(t, mockPub.Closed)
}
