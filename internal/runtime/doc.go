/*
Package runtime provides the event routing infrastructure for graphsink.

# Architecture Overview

The runtime package moves records between a message broker and a graph
store. For every active database it keeps an event router that publishes
records and, when sinking is enabled, an event sink that polls the
configured topics and writes each batch through the ingestion strategy the
topic is bound to. Callers can also read a topic directly as a pull-based
sequence.

# Package Structure

## Core Service (service.go)

The Service struct owns, per database:
  - The strategy storage built from the topic configuration
  - A broker connection built by the transport factory
  - An event router (broker.Router)
  - An event sink (eventsink.go)

It also serves the metrics and admin endpoints.

## Event Sink (eventsink.go)

The sink job polls its topics, groups each poll by topic and hands the
batches to sink.Service. Its status is RUNNING, STOPPED or UNKNOWN.

## Consuming (consume.go)

Consume builds a dedicated consumer, feeds a bounded queue from a
background producer and returns a stream.Bridge over it.

## Publishing (publisher.go)

Publish and PublishAsync forward to the router of a database.

## Admin API (admin.go)

HTTP API for inspecting sink status, topic bindings and write statistics.

# Sub-packages

  - broker/: Record codec, polling client and event router
  - config/: Service configuration from flat properties, with validation
  - errors/: Sentinel errors and error types
  - events/: Sink entities and the CDC event model
  - ids/: ULID message IDs and UUID record keys
  - jsoncodec/: JSON marshaling utilities
  - logging/: Logger interface and adapters
  - metadata/: Message metadata utilities
  - pattern/: Node and relationship pattern parser
  - registry/: Per-database registries
  - routing/: Topic to strategy storage
  - sink/: Strategy application and store writes
  - strategy/: Ingestion strategies generating Cypher
  - stream/: Bounded queue and pull bridge
  - topics/: Topic classification and validation
  - transport/: Transport factory over the modular transports

# Usage Example

	conf, err := graphsink.ConfigFromProperties(map[string]string{
		"kafka.bootstrap.servers":          "localhost:9092",
		"streams.sink.enabled":             "true",
		"streams.sink.topic.cypher.people": "MERGE (p:Person {id: event.id})",
	})

	svc, err := graphsink.NewService(conf, logger, ctx, graphsink.ServiceDependencies{Writer: writer})
	err = svc.ActivateDatabase(ctx, "neo4j", true)

	receipt, err := svc.Publish(ctx, "neo4j", "people", map[string]any{"id": 1}, graphsink.PublishOptions{})
*/
package runtime
