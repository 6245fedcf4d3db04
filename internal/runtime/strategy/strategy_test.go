package strategy

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/pattern"
)

// render prints every statement a strategy produces for batch, phase by
// phase, so the output can be compared with a golden file.
func render(s Strategy, batch []events.SinkEntity) []byte {
	var buf bytes.Buffer
	for _, phase := range Phases {
		for _, qe := range Apply(s, phase, batch) {
			fmt.Fprintf(&buf, "-- %s (%d events)\n%s\n", phase, len(qe.Events), qe.Query)
		}
	}
	return buf.Bytes()
}

func assertGolden(t *testing.T, name string, actual []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, actual)
}

func entities(values ...any) []events.SinkEntity {
	out := make([]events.SinkEntity, len(values))
	for i, v := range values {
		out[i] = events.SinkEntity{Value: v}
	}
	return out
}

func nodeEvent(id string, op events.OperationType, before, after *events.Change, constraints ...events.Constraint) events.TransactionEvent {
	return events.TransactionEvent{
		Meta:    events.Meta{Operation: op},
		Payload: events.Payload{ID: id, Type: events.EntityNode, Before: before, After: after},
		Schema:  events.Schema{Constraints: constraints},
	}
}

func relEvent(id, label string, op events.OperationType, start, end *events.RelationshipNode, after *events.Change, constraints ...events.Constraint) events.TransactionEvent {
	return events.TransactionEvent{
		Meta: events.Meta{Operation: op},
		Payload: events.Payload{
			ID: id, Type: events.EntityRelationship, Label: label,
			Start: start, End: end, After: after,
		},
		Schema: events.Schema{Constraints: constraints},
	}
}

func unique(label string, props ...string) events.Constraint {
	return events.Constraint{Label: label, Properties: props, Type: events.ConstraintUnique}
}

func TestPhasesOrder(t *testing.T) {
	assert.Equal(t, []Phase{PhaseMergeNodes, PhaseDeleteNodes, PhaseMergeRelationships, PhaseDeleteRelationships}, Phases)
	assert.Equal(t, "merge-nodes", PhaseMergeNodes.String())
	assert.Equal(t, "delete-relationships", PhaseDeleteRelationships.String())
	assert.Nil(t, Apply(NewCUDStrategy(), Phase(42), nil))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, "Person", quote("Person"))
	assert.Equal(t, "_id2", quote("_id2"))
	assert.Equal(t, "`KNOWS WHO`", quote("KNOWS WHO"))
	assert.Equal(t, "`comp@ny`", quote("comp@ny"))
	assert.Equal(t, "`1st`", quote("1st"))
	assert.Equal(t, "`a``b`", quote("a`b"))
	assert.Equal(t, ":A:`B C`", labelsString([]string{"A", "B C"}))
	assert.Equal(t, "", labelsString(nil))
	assert.Equal(t, "id: event.keys.id, `my key`: event.keys.`my key`", keysString("keys", []string{"id", "my key"}))
}

func TestFlattenRoundTrip(t *testing.T) {
	nested := map[string]any{
		"id":      int64(1),
		"address": map[string]any{"city": "Rome", "geo": map[string]any{"lat": 1.5}},
	}
	flat := flatten(nested)
	assert.Equal(t, map[string]any{"id": int64(1), "address.city": "Rome", "address.geo.lat": 1.5}, flat)
	assert.Equal(t, nested, unflatten(flat))

	assert.True(t, containsProp("address.city", []string{"address"}))
	assert.True(t, containsProp("address", []string{"address"}))
	assert.False(t, containsProp("addressbook", []string{"address"}))
}

func TestSourceIDStrategy(t *testing.T) {
	s := NewSourceIDStrategy(SourceIDConfig{LabelName: "Custom SourceEvent", IDName: "custom Id"})
	batch := entities(
		nodeEvent("0", events.OperationCreated, nil, &events.Change{Labels: []string{"User"}, Properties: map[string]any{"name": "Andrea", "comp@ny": "LARUS-BA"}}),
		nodeEvent("1", events.OperationCreated, nil, &events.Change{Labels: []string{"User"}, Properties: map[string]any{"name": "Michael", "comp@ny": "Neo4j"}}),
		relEvent("2", "KNOWS WHO", events.OperationCreated, &events.RelationshipNode{ID: "0"}, &events.RelationshipNode{ID: "1"}, &events.Change{Properties: map[string]any{"since": int64(2014)}}),
	)

	assertGolden(t, "sourceid_custom", render(s, batch))

	nodes := s.MergeNodeEvents(batch)
	require.Len(t, nodes, 1)
	assert.Equal(t, []any{
		map[string]any{"id": "0", "properties": map[string]any{"name": "Andrea", "comp@ny": "LARUS-BA"}},
		map[string]any{"id": "1", "properties": map[string]any{"name": "Michael", "comp@ny": "Neo4j"}},
	}, nodes[0].Events)

	rels := s.MergeRelationshipEvents(batch)
	require.Len(t, rels, 1)
	assert.Equal(t, []any{
		map[string]any{"id": "2", "start": "0", "end": "1", "properties": map[string]any{"since": int64(2014)}},
	}, rels[0].Events)
}

func TestSourceIDStrategyLabelChangesAndDeletes(t *testing.T) {
	s := NewSourceIDStrategy(SourceIDConfig{})
	batch := entities(
		nodeEvent("0", events.OperationUpdated,
			&events.Change{Labels: []string{"ToRemove", "Keep"}},
			&events.Change{Labels: []string{"Keep", "NewLabel"}, Properties: map[string]any{"name": "Andrea"}}),
		nodeEvent("1", events.OperationDeleted, &events.Change{Labels: []string{"User"}}, nil),
		relEvent("2", "KNOWS WHO", events.OperationDeleted, &events.RelationshipNode{ID: "0"}, &events.RelationshipNode{ID: "1"}, nil),
		"not an event",
	)
	batch = append(batch, events.SinkEntity{Key: "tombstone"})

	assertGolden(t, "sourceid_changes", render(s, batch))
	assert.Equal(t, []any{map[string]any{"id": "1"}}, s.DeleteNodeEvents(batch)[0].Events)
	assert.Equal(t, []any{map[string]any{"id": "2"}}, s.DeleteRelationshipEvents(batch)[0].Events)
}

func TestSourceIDStrategyCreateAndDeleteSameKey(t *testing.T) {
	s := NewSourceIDStrategy(DefaultSourceIDConfig())
	batch := entities(
		nodeEvent("7", events.OperationCreated, nil, &events.Change{Properties: map[string]any{"a": int64(1)}}),
		nodeEvent("7", events.OperationDeleted, &events.Change{Properties: map[string]any{"a": int64(1)}}, nil),
	)

	assert.Len(t, s.MergeNodeEvents(batch), 1)
	assert.Len(t, s.DeleteNodeEvents(batch), 1)
	assert.Empty(t, s.MergeRelationshipEvents(batch))
	assert.Empty(t, s.DeleteRelationshipEvents(batch))
}

func TestSourceIDStrategyDecodesJSONMaps(t *testing.T) {
	s := NewSourceIDStrategy(DefaultSourceIDConfig())
	value := map[string]any{
		"meta":    map[string]any{"operation": "created"},
		"payload": map[string]any{"id": "9", "type": "node", "after": map[string]any{"labels": []any{"A"}, "properties": map[string]any{"x": int64(1)}}},
		"schema":  map[string]any{"constraints": []any{}},
	}

	got := s.MergeNodeEvents(entities(value))
	require.Len(t, got, 1)
	assert.Equal(t, []any{map[string]any{"id": "9", "properties": map[string]any{"x": int64(1)}}}, got[0].Events)
}

func TestSchemaStrategy(t *testing.T) {
	s := NewSchemaStrategy(KeyStrategyDefault)
	batch := entities(
		nodeEvent("0", events.OperationCreated, nil,
			&events.Change{Labels: []string{"User", "Admin", "Other"}, Properties: map[string]any{"name": "Andrea", "surname": "S", "comp@ny": "LARUS"}},
			unique("User", "name", "surname"), unique("Admin", "name")),
		nodeEvent("1", events.OperationDeleted,
			&events.Change{Labels: []string{"User"}, Properties: map[string]any{"name": "x", "surname": "y"}}, nil,
			unique("User", "name", "surname")),
		relEvent("2", "KNOWS", events.OperationCreated,
			&events.RelationshipNode{Labels: []string{"User"}, IDs: map[string]any{"name": "a"}},
			&events.RelationshipNode{Labels: []string{"User"}, IDs: map[string]any{"name": "b"}},
			&events.Change{Properties: map[string]any{"since": int64(2010)}},
			unique("User", "name")),
		nodeEvent("3", events.OperationCreated, nil,
			&events.Change{Labels: []string{"Thing"}, Properties: map[string]any{"b": int64(2), "a": int64(1)}}),
		relEvent("4", "LINKS", events.OperationDeleted,
			&events.RelationshipNode{Labels: []string{"A"}, IDs: map[string]any{"k": int64(1)}},
			&events.RelationshipNode{Labels: []string{"B"}, IDs: map[string]any{"k": int64(2)}},
			nil),
	)

	assertGolden(t, "schema", render(s, batch))

	rels := s.MergeRelationshipEvents(batch)
	require.Len(t, rels, 1)
	assert.Equal(t, []any{map[string]any{
		"start":      map[string]any{"name": "a"},
		"end":        map[string]any{"name": "b"},
		"properties": map[string]any{"since": int64(2010)},
	}}, rels[0].Events)

	deletes := s.DeleteRelationshipEvents(batch)
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{map[string]any{
		"start": map[string]any{"k": int64(1)},
		"end":   map[string]any{"k": int64(2)},
	}}, deletes[0].Events)
}

func TestSchemaStrategyKeyStrategyAll(t *testing.T) {
	batch := entities(nodeEvent("0", events.OperationCreated, nil,
		&events.Change{Labels: []string{"User"}, Properties: map[string]any{"name": "a", "surname": "b", "email": "c"}},
		unique("User", "name", "surname"), unique("User", "email")))

	def := NewSchemaStrategy(KeyStrategyDefault).MergeNodeEvents(batch)
	require.Len(t, def, 1)
	assert.Contains(t, def[0].Query, "MERGE (n:User{email: event.properties.email})")

	all := NewSchemaStrategy(ParseKeyStrategy("all")).MergeNodeEvents(batch)
	require.Len(t, all, 1)
	assert.Contains(t, all[0].Query, "MERGE (n:User{email: event.properties.email, name: event.properties.name, surname: event.properties.surname})")

	assert.Equal(t, KeyStrategyDefault, ParseKeyStrategy("whatever"))
}

func TestCUDStrategy(t *testing.T) {
	s := NewCUDStrategy()
	batch := entities(
		map[string]any{"op": "create", "type": "node", "labels": []any{"Foo", "Bar"}, "properties": map[string]any{"id": int64(1)}},
		map[string]any{"op": "create", "type": "node", "labels": []any{"Foo", "Bar"}, "properties": map[string]any{"id": int64(2)}},
		map[string]any{"op": "merge", "type": "node", "labels": []any{"Foo"}, "ids": map[string]any{"id": int64(1)}, "properties": map[string]any{"a": int64(1)}},
		map[string]any{"op": "merge", "type": "node", "labels": []any{"Foo"}, "ids": map[string]any{"_id": int64(2)}, "properties": map[string]any{"a": int64(2)}},
		map[string]any{"op": "update", "type": "node", "labels": []any{"Foo"}, "ids": map[string]any{"_id": int64(1)}, "properties": map[string]any{"a": int64(1)}},
		map[string]any{"op": "delete", "type": "node", "labels": []any{"Foo"}, "ids": map[string]any{"id": int64(3)}, "detach": false},
		map[string]any{"op": "create", "type": "node", "properties": map[string]any{}},
		map[string]any{"op": "merge", "labels": []any{"X"}, "ids": map[string]any{"id": int64(1)}, "properties": map[string]any{"a": int64(1)}},
		map[string]any{"op": "upsert", "type": "node", "labels": []any{"X"}, "properties": map[string]any{"a": int64(1)}},
		map[string]any{
			"op": "create", "type": "relationship", "rel_type": "MY_REL",
			"from":       map[string]any{"ids": map[string]any{"key": int64(1)}, "labels": []any{"Foo"}},
			"to":         map[string]any{"ids": map[string]any{"key": int64(2)}, "labels": []any{"Bar"}, "op": "merge"},
			"properties": map[string]any{"p": int64(1)},
		},
		map[string]any{
			"op": "update", "type": "relationship", "rel_type": "MY_REL",
			"from":       map[string]any{"ids": map[string]any{"_id": int64(1)}},
			"to":         map[string]any{"ids": map[string]any{"key": int64(2)}, "labels": []any{"Bar"}},
			"properties": map[string]any{"p": int64(2)},
		},
		map[string]any{
			"op": "delete", "type": "relationship", "rel_type": "MY_REL",
			"from": map[string]any{"ids": map[string]any{"key": int64(1)}, "labels": []any{"Foo"}},
			"to":   map[string]any{"ids": map[string]any{"key": int64(2)}, "labels": []any{"Bar"}},
		},
		map[string]any{
			"op": "create", "type": "relationship", "rel_type": "MY_REL",
			"from": map[string]any{"ids": map[string]any{}, "labels": []any{"Foo"}},
			"to":   map[string]any{"ids": map[string]any{"key": int64(2)}, "labels": []any{"Bar"}},
		},
		nil,
	)

	assertGolden(t, "cud", render(s, batch))

	nodes := s.MergeNodeEvents(batch)
	require.Len(t, nodes, 3)
	assert.Equal(t, []any{
		map[string]any{"ids": map[string]any{}, "properties": map[string]any{"id": int64(1)}},
		map[string]any{"ids": map[string]any{}, "properties": map[string]any{"id": int64(2)}},
	}, nodes[0].Events)

	deletes := s.DeleteNodeEvents(batch)
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{map[string]any{"ids": map[string]any{"id": int64(3)}}}, deletes[0].Events)

	relDeletes := s.DeleteRelationshipEvents(batch)
	require.Len(t, relDeletes, 1)
	assert.Equal(t, []any{map[string]any{
		"from": map[string]any{"ids": map[string]any{"key": int64(1)}},
		"to":   map[string]any{"ids": map[string]any{"key": int64(2)}},
	}}, relDeletes[0].Events)
}

func TestNodePatternStrategy(t *testing.T) {
	cfg, err := pattern.ParseNode("(:User{!userId,name,address.city})")
	require.NoError(t, err)
	s := NewNodePatternStrategy(cfg)

	batch := []events.SinkEntity{
		{Key: map[string]any{"userId": int64(1)}, Value: map[string]any{
			"userId":  int64(1),
			"name":    "Andrea",
			"surname": "S",
			"address": map[string]any{"city": "Rome", "zip": "00100"},
		}},
		{Key: map[string]any{"userId": int64(2)}, Value: nil},
		{Key: map[string]any{"other": int64(3)}, Value: nil},
		{Value: map[string]any{"name": "no key"}},
	}

	assertGolden(t, "pattern_node", render(s, batch))

	merges := s.MergeNodeEvents(batch)
	require.Len(t, merges, 1)
	assert.Equal(t, []any{map[string]any{
		"keys":       map[string]any{"userId": int64(1)},
		"properties": map[string]any{"name": "Andrea", "address": map[string]any{"city": "Rome"}},
	}}, merges[0].Events)

	deletes := s.DeleteNodeEvents(batch)
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{map[string]any{"keys": map[string]any{"userId": int64(2)}}}, deletes[0].Events)
}

func TestNodePatternStrategyExclude(t *testing.T) {
	cfg, err := pattern.ParseNode("User{!userId,-surname}")
	require.NoError(t, err)

	got := NewNodePatternStrategy(cfg).MergeNodeEvents(entities(map[string]any{
		"userId": int64(1), "name": "Andrea", "surname": "S",
	}))
	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"name": "Andrea"}, got[0].Events[0].(map[string]any)["properties"])
}

func TestRelationshipPatternStrategy(t *testing.T) {
	cfg, err := pattern.ParseRelationship("(:LabelA{!idStart})-[:REL_TYPE]->(:LabelB{!idEnd})")
	require.NoError(t, err)
	s := NewRelationshipPatternStrategy(cfg)

	data := map[string]any{"idStart": int64(1), "idEnd": int64(2), "foo": "foo", "bar": "bar"}
	batch := []events.SinkEntity{
		{Key: data, Value: data},
		{Key: map[string]any{"idStart": int64(3), "idEnd": int64(4)}, Value: nil},
	}

	assertGolden(t, "pattern_relationship", render(s, batch))

	merges := s.MergeRelationshipEvents(batch)
	require.Len(t, merges, 1)
	assert.Equal(t, []any{map[string]any{
		"start":      map[string]any{"keys": map[string]any{"idStart": int64(1)}, "properties": map[string]any{}},
		"end":        map[string]any{"keys": map[string]any{"idEnd": int64(2)}, "properties": map[string]any{}},
		"properties": map[string]any{"foo": "foo", "bar": "bar"},
	}}, merges[0].Events)

	deletes := s.DeleteRelationshipEvents(batch)
	require.Len(t, deletes, 1)
	assert.Equal(t, []any{map[string]any{
		"start": map[string]any{"keys": map[string]any{"idStart": int64(3)}},
		"end":   map[string]any{"keys": map[string]any{"idEnd": int64(4)}},
	}}, deletes[0].Events)

	assert.Empty(t, s.MergeNodeEvents(batch))
	assert.Empty(t, s.DeleteNodeEvents(batch))
}

func TestRelationshipPatternStrategyEndpointProperties(t *testing.T) {
	cfg, err := pattern.ParseRelationship("(:LabelA{!idStart,foo})-[:REL_TYPE{-bar}]->(:LabelB{!idEnd,baz})")
	require.NoError(t, err)

	got := NewRelationshipPatternStrategy(cfg).MergeRelationshipEvents(entities(map[string]any{
		"idStart": int64(1), "idEnd": int64(2), "foo": "f", "bar": "b", "baz": "z", "qux": "q",
	}))
	require.Len(t, got, 1)
	event := got[0].Events[0].(map[string]any)
	assert.Equal(t, map[string]any{"foo": "f"}, event["start"].(map[string]any)["properties"])
	assert.Equal(t, map[string]any{"baz": "z"}, event["end"].(map[string]any)["properties"])
	assert.Equal(t, map[string]any{"qux": "q"}, event["properties"])
}

func TestCypherTemplateStrategy(t *testing.T) {
	s := NewCypherTemplateStrategy("MERGE (n:Label{id: event.id})")
	batch := []events.SinkEntity{
		{Value: map[string]any{"id": int64(1)}},
		{Key: "tombstone"},
		{Value: map[string]any{"id": int64(2)}},
	}

	got := s.MergeNodeEvents(batch)
	require.Len(t, got, 1)
	assert.Equal(t, "UNWIND $events AS event MERGE (n:Label{id: event.id})", got[0].Query)
	assert.Equal(t, []any{map[string]any{"id": int64(1)}, map[string]any{"id": int64(2)}}, got[0].Events)

	assert.Empty(t, s.DeleteNodeEvents(batch))
	assert.Empty(t, s.MergeRelationshipEvents(batch))
	assert.Empty(t, s.DeleteRelationshipEvents(batch))
	assert.Empty(t, s.MergeNodeEvents([]events.SinkEntity{{Key: "only tombstones"}}))
}
