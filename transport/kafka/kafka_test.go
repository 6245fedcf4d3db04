package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/graphsink/internal/runtime/metadata"
	"github.com/drblury/graphsink/transport"
	"github.com/drblury/graphsink/transport/transporttest"
)

var brokers = []string{"kafka-1:9092", "kafka-2:9092"}

func stubFactories(t *testing.T, pub message.Publisher, pubErr error, sub message.Subscriber, subErr error) (*kafka.PublisherConfig, *kafka.SubscriberConfig) {
	t.Helper()
	origPub, origSub := PublisherFactory, SubscriberFactory
	t.Cleanup(func() { PublisherFactory, SubscriberFactory = origPub, origSub })

	var pubCfg kafka.PublisherConfig
	var subCfg kafka.SubscriberConfig
	PublisherFactory = func(cfg kafka.PublisherConfig, _ watermill.LoggerAdapter) (message.Publisher, error) {
		pubCfg = cfg
		return pub, pubErr
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, _ watermill.LoggerAdapter) (message.Subscriber, error) {
		subCfg = cfg
		return sub, subErr
	}
	return &pubCfg, &subCfg
}

func TestRegistered(t *testing.T) {
	require.True(t, transport.DefaultRegistry.Has(TransportName))
	assert.Equal(t, Capabilities(), transport.GetCapabilities(TransportName))
	assert.True(t, Capabilities().Supports(transport.FeaturePartitioning))
}

func TestBuildPinsConsumerSettings(t *testing.T) {
	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
	pubCfg, subCfg := stubFactories(t, pub, nil, sub, nil)

	cfg := &transporttest.Config{
		KafkaBrokers:         brokers,
		KafkaConsumerGroup:   "neo4j-archive",
		KafkaClientID:        "graphsink-1",
		KafkaAutoOffsetReset: "LATEST",
	}
	tr, err := Build(context.Background(), cfg, nil)

	require.NoError(t, err)
	assert.Same(t, pub, tr.Publisher)
	assert.Same(t, sub, tr.Subscriber)
	require.NotNil(t, tr.Position)

	assert.Equal(t, brokers, pubCfg.Brokers)
	assert.True(t, pubCfg.OTELEnabled)
	assert.Equal(t, "graphsink-1", pubCfg.OverwriteSaramaConfig.ClientID)
	assert.Equal(t, sarama.WaitForAll, pubCfg.OverwriteSaramaConfig.Producer.RequiredAcks)

	assert.Equal(t, "neo4j-archive", subCfg.ConsumerGroup)
	offsets := subCfg.OverwriteSaramaConfig.Consumer.Offsets
	assert.Equal(t, sarama.OffsetNewest, offsets.Initial)
	assert.False(t, offsets.AutoCommit.Enable)
}

func TestBuildFailures(t *testing.T) {
	boom := errors.New("boom")

	_, err := Build(context.Background(), &transporttest.Config{}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	stubFactories(t, nil, boom, &transporttest.Subscriber{}, nil)
	_, err = Build(context.Background(), &transporttest.Config{KafkaBrokers: brokers}, nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "kafka: publisher")

	pub := &transporttest.Publisher{}
	stubFactories(t, pub, nil, nil, boom)
	_, err = Build(context.Background(), &transporttest.Config{KafkaBrokers: brokers}, nil)
	assert.ErrorIs(t, err, boom)
	assert.ErrorContains(t, err, "kafka: subscriber")
	assert.True(t, pub.Closed)
}

func TestSubscriberSaramaConfigDefaults(t *testing.T) {
	sc := SubscriberSaramaConfig(&transporttest.Config{KafkaAutoCommit: true})
	assert.Equal(t, sarama.OffsetOldest, sc.Consumer.Offsets.Initial)
	assert.True(t, sc.Consumer.Offsets.AutoCommit.Enable)
}

func TestPartitionKeyPrefersRecordKey(t *testing.T) {
	msg := message.NewMessage("msg-1", nil)
	key, err := partitionKey("people", msg)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", key)

	msg.Metadata.Set(metadata.KeyRecordKey, "person-42")
	key, err = partitionKey("people", msg)
	require.NoError(t, err)
	assert.Equal(t, "person-42", key)
}

func TestPositionNeedsSubscriberContext(t *testing.T) {
	for _, msg := range []*message.Message{nil, message.NewMessage("1", nil)} {
		_, ok := Position(msg)
		assert.False(t, ok)
	}
}

func TestMarshalerReportsSentPosition(t *testing.T) {
	pub, sub := &transporttest.Publisher{}, &transporttest.Subscriber{}
	pubCfg, _ := stubFactories(t, pub, nil, sub, nil)
	_, err := Build(context.Background(), &transporttest.Config{KafkaBrokers: brokers}, nil)
	require.NoError(t, err)
	require.IsType(t, positionMarshaler{}, pubCfg.Marshaler)

	msg := message.NewMessage("msg-1", []byte(`{}`))
	msg.Metadata = message.Metadata(metadata.Metadata{metadata.KeyRecordKey: "person-42"}.WithPartition(2))
	pos := &metadata.SentPosition{}
	msg.SetContext(metadata.WithSentPosition(context.Background(), pos))

	pm, err := pubCfg.Marshaler.Marshal("people", msg)
	require.NoError(t, err)
	_, _, ok := pos.Get()
	require.True(t, ok)

	// The producer fills these in once the broker acknowledged the record.
	pm.Partition, pm.Offset = 2, 1234
	partition, offset, ok := pos.Get()
	assert.True(t, ok)
	assert.Equal(t, int32(2), partition)
	assert.Equal(t, int64(1234), offset)

	got, err := NewPinnedPartitioner("people").Partition(pm, 4)
	require.NoError(t, err)
	assert.Equal(t, int32(2), got)
}

func TestPinnedPartitioner(t *testing.T) {
	p := NewPinnedPartitioner("people")
	assert.True(t, p.RequiresConsistency())

	keyed := &sarama.ProducerMessage{Topic: "people", Key: sarama.StringEncoder("person-42")}
	want, err := sarama.NewHashPartitioner("people").Partition(keyed, 8)
	require.NoError(t, err)
	got, err := p.Partition(keyed, 8)
	require.NoError(t, err)
	assert.Equal(t, want, got, "unpinned records are hashed by key")

	pinned := &sarama.ProducerMessage{
		Topic:   "people",
		Key:     sarama.StringEncoder("person-42"),
		Headers: []sarama.RecordHeader{{Key: []byte(metadata.KeyPartition), Value: []byte("5")}},
	}
	got, err = p.Partition(pinned, 8)
	require.NoError(t, err)
	assert.Equal(t, int32(5), got)

	_, err = p.Partition(pinned, 4)
	assert.ErrorContains(t, err, "partition 5 out of range")
}
