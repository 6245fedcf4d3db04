package graphsink

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewServiceRequiresWriter(t *testing.T) {
	conf, err := ConfigFromProperties(map[string]string{"streams.pubsub.system": "channel"})
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}
	if _, err := NewService(conf, NewNopServiceLogger(), context.Background(), ServiceDependencies{}); !errors.Is(err, ErrWriterRequired) {
		t.Fatalf("expected writer required error, got %v", err)
	}
}

func TestServiceExports(t *testing.T) {
	conf, err := ConfigFromProperties(map[string]string{
		"streams.pubsub.system":            "channel",
		"streams.sink.topic.cypher.people": "MERGE (p:Person {id: event.id})",
	})
	if err != nil {
		t.Fatalf("unexpected config error: %v", err)
	}

	var written []string
	writer := WriterFunc(func(_ context.Context, query string, _ []any) error {
		written = append(written, query)
		return nil
	})
	svc, err := NewService(conf, NewNopServiceLogger(), context.Background(), ServiceDependencies{
		Writer:            writer,
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	defer svc.Close()

	ctx := context.Background()
	if err := svc.ActivateDatabase(ctx, "neo4j", true); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if status := svc.SinkStatus("neo4j"); status != SinkUnknown {
		t.Fatalf("expected no sink while sinking is disabled, got %s", status)
	}
	if err := svc.WriteForTopic(ctx, "neo4j", "people", []SinkEntity{{Value: map[string]any{"id": 1}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(written) != 1 {
		t.Fatalf("expected one statement, got %d", len(written))
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := svc.Publish(ctx, "neo4j", "people", nil, PublishOptions{}); !errors.Is(err, ErrServiceClosed) {
		t.Fatalf("expected service closed error, got %v", err)
	}
}

func TestTopicExports(t *testing.T) {
	topics, err := TopicsForDatabase(map[string]string{
		"streams.sink.topic.cud":                    "orders",
		"streams.sink.topic.pattern.node.users":     "(:User{!userId})",
		"streams.sink.topic.cypher.reports.to.olap": "MERGE (r:Report)",
	}, "", "neo4j", true, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if typ, ok := topics.TypeOf("users"); !ok || typ != TopicPatternNode {
		t.Fatalf("expected users to be a node pattern topic, got %q", typ)
	}
	if _, ok := topics.TypeOf("reports"); ok {
		t.Fatal("expected scoped topic to be hidden from the default database")
	}

	if _, err := ParseNodePattern("(:User{!userId,name})"); err != nil {
		t.Fatalf("unexpected pattern error: %v", err)
	}
	if _, err := ParseRelationshipPattern(""); err == nil {
		t.Fatal("expected relationship pattern error")
	}
}

func TestLoggerExports(t *testing.T) {
	logger := NewEntryServiceLogger(&stubEntry{})
	logger.Info("boot", LogFields{"component": "test"})
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	if _, err := Marshal(payload); err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	if _, err := MarshalIndent(payload, "", "  "); err != nil {
		t.Fatalf("marshal indent alias failed: %v", err)
	}
	if err := Unmarshal([]byte(`{"hello":"world"}`), &payload); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
}

func TestJournalExport(t *testing.T) {
	j, err := NewJournal(JournalConfig{FilePath: ":memory:"})
	if err != nil {
		t.Fatalf("unexpected journal error: %v", err)
	}
	var _ Writer = j
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := j.Write(context.Background(), "RETURN 1", nil); !errors.Is(err, ErrJournalClosed) {
		t.Fatalf("expected journal closed error, got %v", err)
	}
}

func TestIDExports(t *testing.T) {
	if NewMessageID() == NewMessageID() {
		t.Fatal("expected unique message ids")
	}
	if NewRecordKey() == "" {
		t.Fatal("expected record key")
	}
}

type stubEntry struct {
	fields LogFields
	err    error
}

func (s *stubEntry) Error(args ...any) {}
func (s *stubEntry) Info(args ...any)  {}
func (s *stubEntry) Debug(args ...any) {}
func (s *stubEntry) Trace(args ...any) {}

func (s *stubEntry) WithError(err error) *stubEntry {
	clone := *s
	clone.err = err
	return &clone
}

func (s *stubEntry) WithField(key string, value any) *stubEntry {
	clone := *s
	if clone.fields == nil {
		clone.fields = make(LogFields)
	}
	clone.fields[key] = value
	return &clone
}
