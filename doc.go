// Package graphsink routes broker events into a graph database. It reads
// flat properties (the same keys the graphsink CLI flattens out of YAML),
// classifies every configured topic under one ingestion strategy and runs a
// sink per database that polls the broker, applies the strategy and hands
// the resulting Cypher statements to a Writer.
//
// Service hosts one event router and one event sink per active database. The
// router publishes records (Publish, PublishAsync); the sink consumes the
// topics bound to the database and writes them in merge-then-delete phase
// order. Consume reads a topic on demand and returns the records as a
// pull-based RecordStream that ends on timeout, cancellation or tombstone.
// A minimal setup is: ConfigFromProperties, NewService with a Writer,
// ActivateDatabase, then Start to serve the metrics and admin endpoints.
//
// # Topic types
//
// Topics are bound through keys under streams.sink.topic:
//   - cdc.sourceId / cdc.schema: change data capture events
//   - cud: create/update/delete commands
//   - cypher.<topic>: a user supplied statement per topic
//   - pattern.node.<topic> / pattern.relationship.<topic>: node and
//     relationship patterns such as (:User{!userId,name})
//
// A key ending in .to.<db> binds the topic to that database only. A topic
// declared under more than one type is a ConfigurationError.
//
// # Transports
//
// The broker is picked with streams.pubsub.system:
//   - kafka: consumer groups scoped per database
//   - channel: in-memory Go channels for tests and dry runs
//   - rabbitmq: AMQP-based durable queues
//   - aws: AWS SNS/SQS with LocalStack support
//   - nats: NATS core messaging
//   - http: request/response messaging
//
// Bring your own broker through ServiceDependencies.TransportFactory, and
// record statements without a live graph store with a Journal.
package graphsink
