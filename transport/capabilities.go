package transport

// Feature names a transport ability that callers may depend on.
type Feature string

const (
	FeatureOrdering       Feature = "ordering"
	FeatureTracing        Feature = "tracing"
	FeatureAck            Feature = "ack"
	FeatureNack           Feature = "nack"
	FeaturePartitioning   Feature = "partitioning"
	FeatureConsumerGroups Feature = "consumer-groups"
)

// Capabilities describes what a broker backend can do for the sink and
// for ad hoc consumers.
type Capabilities struct {
	// Name of the transport as registered.
	Name string

	// SupportsOrdering means records of one partition or stream arrive in
	// publish order, which keeps per-key CDC events in sequence.
	SupportsOrdering bool
	// SupportsTracing means trace headers travel with the message.
	SupportsTracing bool
	// SupportsAck and SupportsNack cover explicit acknowledgement and
	// redelivery of failed batches.
	SupportsAck  bool
	SupportsNack bool
	// SupportsPartitioning means records carry a partition and an offset,
	// so consumers can be pinned to explicit start positions.
	SupportsPartitioning bool
	// SupportsConsumerGroups means several consumers can share a
	// subscription under a group id.
	SupportsConsumerGroups bool

	// MaxMessageSize in bytes, 0 when unlimited or unknown.
	MaxMessageSize int64
}

// Supports reports whether the transport has feature f.
func (c Capabilities) Supports(f Feature) bool {
	switch f {
	case FeatureOrdering:
		return c.SupportsOrdering
	case FeatureTracing:
		return c.SupportsTracing
	case FeatureAck:
		return c.SupportsAck
	case FeatureNack:
		return c.SupportsNack
	case FeaturePartitioning:
		return c.SupportsPartitioning
	case FeatureConsumerGroups:
		return c.SupportsConsumerGroups
	}
	return false
}

// Missing returns the features of required the transport lacks, in the
// order given.
func (c Capabilities) Missing(required ...Feature) []Feature {
	var missing []Feature
	for _, f := range required {
		if !c.Supports(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// SupportsReliableDelivery reports at-least-once delivery (ack and nack).
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

// Capabilities of the built-in transports.
var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	KafkaCapabilities = Capabilities{
		Name:                   "kafka",
		SupportsOrdering:       true,
		SupportsTracing:        true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsPartitioning:   true,
		SupportsConsumerGroups: true,
		MaxMessageSize:         1 << 20, // broker default message.max.bytes
	}

	RabbitMQCapabilities = Capabilities{
		Name:                   "rabbitmq",
		SupportsOrdering:       true,
		SupportsTracing:        true,
		SupportsAck:            true,
		SupportsNack:           true,
		SupportsConsumerGroups: true,
	}

	NATSCapabilities = Capabilities{
		Name:                   "nats",
		SupportsTracing:        true,
		SupportsConsumerGroups: true,
		MaxMessageSize:         1 << 20, // server default max_payload
	}

	AWSCapabilities = Capabilities{
		Name:             "aws",
		SupportsOrdering: true,
		SupportsTracing:  true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   256 << 10, // SQS message limit
	}

	HTTPCapabilities = Capabilities{
		Name:            "http",
		SupportsTracing: true,
	}
)

// GetCapabilities looks up transportName in the default registry.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
