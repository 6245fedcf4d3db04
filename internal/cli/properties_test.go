package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPropertiesFlattensYAML(t *testing.T) {
	props, err := LoadProperties(filepath.Join("testdata", "config.yaml"), nil)
	require.NoError(t, err)

	assert.Equal(t, "channel", props["streams.pubsub.system"])
	assert.Equal(t, "true", props["streams.sink.enabled"])
	assert.Equal(t, "20", props["streams.sink.poll.interval"])
	assert.Equal(t, "orders,refunds", props["streams.sink.topic.cud"])
	assert.Equal(t, "MERGE (p:Person {id: event.id})", props["streams.sink.topic.cypher.people"])
	assert.Equal(t, "changes", props["streams.sink.topic.cud.to.archive"])
	assert.Equal(t, "graphsink-test", props["kafka.group.id"])
}

func TestLoadPropertiesOverrides(t *testing.T) {
	path := writeConfig(t, "kafka:\n  group.id: from-file\n")

	props, err := LoadProperties(path, []string{"kafka.group.id=from-flag", "metrics.enabled=true", "empty="})
	require.NoError(t, err)
	assert.Equal(t, "from-flag", props["kafka.group.id"])
	assert.Equal(t, "true", props["metrics.enabled"])
	assert.Equal(t, "", props["empty"])

	_, err = LoadProperties("", []string{"no-separator"})
	assert.ErrorContains(t, err, "expected key=value")

	_, err = LoadProperties("", []string{"=value"})
	assert.Error(t, err)
}

func TestLoadPropertiesWithoutFile(t *testing.T) {
	props, err := LoadProperties("", nil)
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestLoadPropertiesErrors(t *testing.T) {
	_, err := LoadProperties(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "read config")

	_, err = LoadProperties(writeConfig(t, "- a\n- b\n"), nil)
	assert.ErrorContains(t, err, "top level must be a mapping")

	_, err = LoadProperties(writeConfig(t, "topics:\n  - name: a\n"), nil)
	assert.ErrorContains(t, err, "list items must be scalars")

	_, err = LoadProperties(writeConfig(t, "a: [b\n"), nil)
	assert.Error(t, err)

	props, err := LoadProperties(writeConfig(t, "   \n"), nil)
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestLoadPropertiesResolvesAliases(t *testing.T) {
	path := writeConfig(t, "base: &group shared\nkafka:\n  group.id: *group\n")

	props, err := LoadProperties(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "shared", props["kafka.group.id"])
}

func TestDatabaseNames(t *testing.T) {
	props := map[string]string{
		"streams.sink.topic.cud":                      "a",
		"streams.sink.topic.cud.to.Archive":           "b",
		"streams.sink.topic.cypher.people.to.reports": "MERGE (n)",
		"streams.sink.topic.cud.to.neo4j":             "c",
		"kafka.to.ignored":                            "x",
	}

	assert.Equal(t, []string{"neo4j", "archive", "reports"}, databaseNames(props, "", "neo4j"))
	assert.Equal(t, []string{"neo4j"}, databaseNames(props, "custom.ns", "neo4j"))
}
