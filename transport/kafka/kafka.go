// Package kafka provides a Kafka transport for graphsink.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/graphsink/internal/runtime/metadata"
	"github.com/drblury/graphsink/transport"
)

// TransportName is the streams.pubsub.system value of this transport.
const TransportName = "kafka"

// ErrNoBrokers is returned when kafka.bootstrap.servers is empty.
var ErrNoBrokers = errors.New("kafka: kafka.bootstrap.servers is empty")

// Hooks replaced in tests.
var (
	PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
		return kafka.NewPublisher(cfg, logger)
	}
	SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
		return kafka.NewSubscriber(cfg, logger)
	}
)

func init() {
	transport.RegisterWithCapabilities(TransportName, Build, transport.KafkaCapabilities)
}

// Build creates a new Kafka transport. Records are partitioned by their key
// so every event of one entity lands on the same partition.
func Build(ctx context.Context, cfg transport.Config, logger watermill.LoggerAdapter) (transport.Transport, error) {
	brokers := cfg.GetKafkaBrokers()
	if len(brokers) == 0 {
		return transport.Transport{}, ErrNoBrokers
	}
	marshaler := positionMarshaler{kafka.NewWithPartitioningMarshaler(partitionKey)}

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             marshaler,
			OverwriteSaramaConfig: PublisherSaramaConfig(cfg),
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, fmt.Errorf("kafka: publisher: %w", err)
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           marshaler,
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: SubscriberSaramaConfig(cfg),
			OTELEnabled:           true,
		},
		logger,
	)
	if err != nil {
		return transport.Transport{}, errors.Join(fmt.Errorf("kafka: subscriber: %w", err), publisher.Close())
	}

	return transport.Transport{
		Publisher:  publisher,
		Subscriber: subscriber,
		Position:   Position,
	}, nil
}

func Capabilities() transport.Capabilities {
	return transport.KafkaCapabilities
}

// PublisherSaramaConfig derives the producer settings from cfg. Every
// in-sync replica has to acknowledge a record and keys are hashed onto
// partitions unless the record is pinned to one.
func PublisherSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSyncPublisherConfig()
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = NewPinnedPartitioner
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	return sc
}

// SubscriberSaramaConfig derives the consumer settings from cfg: the
// initial offset follows auto.offset.reset and offset auto-commit can be
// switched off per consumer.
func SubscriberSaramaConfig(cfg transport.Config) *sarama.Config {
	sc := kafka.DefaultSaramaSubscriberConfig()
	if id := cfg.GetKafkaClientID(); id != "" {
		sc.ClientID = id
	}
	switch strings.ToLower(cfg.GetKafkaAutoOffsetReset()) {
	case "latest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
	sc.Consumer.Offsets.AutoCommit.Enable = cfg.GetKafkaAutoCommit()
	return sc
}

// Position reads the partition and offset the subscriber attached to a
// received message.
func Position(msg *message.Message) (transport.Position, bool) {
	if msg == nil {
		return transport.Position{}, false
	}
	partition, ok := kafka.MessagePartitionFromCtx(msg.Context())
	if !ok {
		return transport.Position{}, false
	}
	offset, ok := kafka.MessagePartitionOffsetFromCtx(msg.Context())
	if !ok {
		return transport.Position{}, false
	}
	return transport.Position{Partition: partition, Offset: offset}, true
}

func partitionKey(topic string, msg *message.Message) (string, error) {
	if key := msg.Metadata.Get(metadata.KeyRecordKey); key != "" {
		return key, nil
	}
	return msg.UUID, nil
}

// positionMarshaler reports the partition and offset the producer assigned
// to each record back through the record context.
type positionMarshaler struct {
	kafka.MarshalerUnmarshaler
}

func (m positionMarshaler) Marshal(topic string, msg *message.Message) (*sarama.ProducerMessage, error) {
	pm, err := m.MarshalerUnmarshaler.Marshal(topic, msg)
	if err != nil {
		return nil, err
	}
	if pos, ok := metadata.SentPositionFromContext(msg.Context()); ok {
		pos.Bind(func() (int32, int64) { return pm.Partition, pm.Offset })
	}
	return pm, nil
}

type pinnedPartitioner struct {
	hash sarama.Partitioner
}

// NewPinnedPartitioner places records carrying a partition header on that
// partition and hashes the key of every other record.
func NewPinnedPartitioner(topic string) sarama.Partitioner {
	return pinnedPartitioner{hash: sarama.NewHashPartitioner(topic)}
}

func (p pinnedPartitioner) Partition(msg *sarama.ProducerMessage, numPartitions int32) (int32, error) {
	for _, h := range msg.Headers {
		if string(h.Key) != metadata.KeyPartition {
			continue
		}
		if partition, ok := (metadata.Metadata{metadata.KeyPartition: string(h.Value)}).Partition(); ok {
			if partition >= numPartitions {
				return -1, fmt.Errorf("kafka: partition %d out of range (%d partitions)", partition, numPartitions)
			}
			return partition, nil
		}
	}
	return p.hash.Partition(msg, numPartitions)
}

func (p pinnedPartitioner) RequiresConsistency() bool {
	return true
}
