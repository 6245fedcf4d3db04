package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nodeEventJSON = `{
  "meta": {"timestamp": 1, "username": "user", "txId": 1, "txEventId": 0, "txEventsCount": 1, "operation": "created"},
  "payload": {"id": "0", "type": "node", "before": null, "after": {"labels": ["User"], "properties": {"name": "Andrea", "age": 42}}},
  "schema": {"properties": {"name": "String"}, "constraints": [{"label": "User", "properties": ["name"], "type": "UNIQUE"}]}
}`

func TestAsTransactionEventFromJSON(t *testing.T) {
	for name, input := range map[string]any{
		"string": nodeEventJSON,
		"bytes":  []byte(nodeEventJSON),
	} {
		t.Run(name, func(t *testing.T) {
			evt, err := AsTransactionEvent(input)
			require.NoError(t, err)

			assert.Equal(t, OperationCreated, evt.Meta.Operation)
			assert.Equal(t, EntityNode, evt.Payload.Type)
			assert.Nil(t, evt.Payload.Before)
			require.NotNil(t, evt.Payload.After)
			assert.Equal(t, []string{"User"}, evt.Payload.After.Labels)
			assert.Equal(t, int64(42), evt.Payload.After.Properties["age"])
			assert.Equal(t, []Constraint{{Label: "User", Properties: []string{"name"}, Type: ConstraintUnique}}, evt.Schema.Constraints)
			assert.False(t, evt.IsDeletion())
		})
	}
}

func TestAsTransactionEventFromMap(t *testing.T) {
	value := map[string]any{
		"meta": map[string]any{"operation": "deleted"},
		"payload": map[string]any{
			"id":     "1",
			"type":   "relationship",
			"label":  "KNOWS",
			"before": map[string]any{"properties": map[string]any{"since": int64(2010)}},
			"start":  map[string]any{"id": "10", "labels": []any{"User"}, "ids": map[string]any{"name": "a"}},
			"end":    map[string]any{"id": "11", "labels": []any{"User"}, "ids": map[string]any{"name": "b"}},
		},
		"schema": map[string]any{"constraints": []any{}},
	}

	evt, err := AsTransactionEvent(value)
	require.NoError(t, err)
	assert.True(t, evt.IsDeletion())
	assert.Equal(t, "KNOWS", evt.Payload.Label)
	require.NotNil(t, evt.Payload.Start)
	assert.Equal(t, map[string]any{"name": "a"}, evt.Payload.Start.IDs)
	assert.Equal(t, int64(2010), evt.Payload.Before.Properties["since"])
}

func TestAsTransactionEventPassThrough(t *testing.T) {
	evt := TransactionEvent{Meta: Meta{Operation: OperationUpdated}, Payload: Payload{After: &Change{}}}

	got, err := AsTransactionEvent(evt)
	require.NoError(t, err)
	assert.Equal(t, evt, got)

	got, err = AsTransactionEvent(&evt)
	require.NoError(t, err)
	assert.Equal(t, evt, got)
}

func TestAsTransactionEventErrors(t *testing.T) {
	_, err := AsTransactionEvent(nil)
	assert.Error(t, err)

	_, err = AsTransactionEvent("{not json")
	assert.ErrorContains(t, err, "invalid transaction event")
}

func TestIsDeletionWithoutAfterImage(t *testing.T) {
	evt := TransactionEvent{Meta: Meta{Operation: OperationUpdated}}
	assert.True(t, evt.IsDeletion())
}
