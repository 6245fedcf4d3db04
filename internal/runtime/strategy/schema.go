package strategy

import (
	"sort"
	"strings"

	"github.com/drblury/graphsink/internal/runtime/events"
)

// KeyStrategy selects which unique constraint properties identify a node.
type KeyStrategy string

const (
	// KeyStrategyDefault matches on the smallest unique constraint.
	KeyStrategyDefault KeyStrategy = "DEFAULT"
	// KeyStrategyAll matches on the union of every unique constraint.
	KeyStrategyAll KeyStrategy = "ALL"
)

// ParseKeyStrategy maps a configuration value to a KeyStrategy. Unknown
// values fall back to KeyStrategyDefault.
func ParseKeyStrategy(v string) KeyStrategy {
	if strings.EqualFold(strings.TrimSpace(v), string(KeyStrategyAll)) {
		return KeyStrategyAll
	}
	return KeyStrategyDefault
}

// SchemaStrategy mirrors CDC events using the unique constraints carried in
// each event's schema. Without a usable constraint it matches nodes on their
// labels and every property, and relationship endpoints on every id.
type SchemaStrategy struct {
	noop
	keys KeyStrategy
}

func NewSchemaStrategy(keys KeyStrategy) *SchemaStrategy {
	if keys != KeyStrategyAll {
		keys = KeyStrategyDefault
	}
	return &SchemaStrategy{keys: keys}
}

func (s *SchemaStrategy) Name() string { return "cdc-schema" }

func (s *SchemaStrategy) MergeNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityNode) {
		if evt.IsDeletion() {
			continue
		}
		after := evt.Payload.After
		var before []string
		if evt.Payload.Before != nil {
			before = evt.Payload.Before.Labels
		}
		properties := propertiesOf(after)

		constraints := uniqueConstraints(evt.Schema.Constraints, after.Labels)
		keys := nodeKeys(after.Labels, properties, constraints, s.keys)

		var matchLabels []string
		if len(keys) == 0 {
			matchLabels = after.Labels
			keys = sortedKeys(properties)
		} else {
			for _, c := range constraints {
				matchLabels = appendUnique(matchLabels, c.Label)
			}
		}
		if len(keys) == 0 {
			continue
		}

		parts := []string{
			unwind,
			"MERGE (n" + labelsString(matchLabels) + "{" + keysString("properties", keys) + "})",
			"SET n = event.properties",
		}
		if added := difference(difference(after.Labels, before), matchLabels); len(added) > 0 {
			parts = append(parts, "SET n"+labelsString(added))
		}
		if removed := difference(difference(before, after.Labels), matchLabels); len(removed) > 0 {
			parts = append(parts, "REMOVE n"+labelsString(removed))
		}
		b.add(lines(parts...), map[string]any{"properties": properties})
	}
	return b.result()
}

func (s *SchemaStrategy) DeleteNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityNode) {
		if !evt.IsDeletion() || evt.Payload.Before == nil {
			continue
		}
		before := evt.Payload.Before
		properties := propertiesOf(before)

		var labels, keys []string
		constraints := uniqueConstraints(evt.Schema.Constraints, before.Labels)
		for _, c := range constraints {
			labels = appendUnique(labels, c.Label)
			for _, prop := range c.Properties {
				keys = appendUnique(keys, prop)
			}
		}
		sort.Strings(keys)
		if len(constraints) == 0 {
			labels = before.Labels
			keys = sortedKeys(properties)
		}
		if len(keys) == 0 {
			continue
		}

		query := lines(
			unwind,
			"MATCH (n"+labelsString(labels)+"{"+keysString("properties", keys)+"})",
			"DETACH DELETE n",
		)
		b.add(query, map[string]any{"properties": properties})
	}
	return b.result()
}

func (s *SchemaStrategy) MergeRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityRelationship) {
		if evt.IsDeletion() {
			continue
		}
		rel, ok := s.relationship(evt)
		if !ok {
			continue
		}
		query := lines(
			unwind,
			"MERGE (start"+labelsString(rel.startLabels)+"{"+keysString("start", rel.startKeys)+"})",
			"MERGE (end"+labelsString(rel.endLabels)+"{"+keysString("end", rel.endKeys)+"})",
			"MERGE (start)-[r:"+quote(evt.Payload.Label)+"]->(end)",
			"SET r = event.properties",
		)
		properties := propertiesOf(evt.Payload.After)
		if evt.Payload.After == nil {
			properties = propertiesOf(evt.Payload.Before)
		}
		b.add(query, map[string]any{"start": rel.start, "end": rel.end, "properties": properties})
	}
	return b.result()
}

func (s *SchemaStrategy) DeleteRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityRelationship) {
		if !evt.IsDeletion() {
			continue
		}
		rel, ok := s.relationship(evt)
		if !ok {
			continue
		}
		query := lines(
			unwind,
			"MATCH (start"+labelsString(rel.startLabels)+"{"+keysString("start", rel.startKeys)+"})",
			"MATCH (end"+labelsString(rel.endLabels)+"{"+keysString("end", rel.endKeys)+"})",
			"MATCH (start)-[r:"+quote(evt.Payload.Label)+"]->(end)",
			"DELETE r",
		)
		b.add(query, map[string]any{"start": rel.start, "end": rel.end})
	}
	return b.result()
}

type schemaRelationship struct {
	startLabels, endLabels []string
	startKeys, endKeys     []string
	start, end             map[string]any
}

func (s *SchemaStrategy) relationship(evt events.TransactionEvent) (schemaRelationship, bool) {
	if evt.Payload.Start == nil || evt.Payload.End == nil {
		return schemaRelationship{}, false
	}
	var rel schemaRelationship
	rel.startLabels, rel.startKeys, rel.start = s.endpoint(evt.Payload.Start, evt.Schema.Constraints)
	rel.endLabels, rel.endKeys, rel.end = s.endpoint(evt.Payload.End, evt.Schema.Constraints)
	if len(rel.start) == 0 || len(rel.end) == 0 {
		return schemaRelationship{}, false
	}
	return rel, true
}

// endpoint picks the labels and ids a relationship endpoint is matched on.
func (s *SchemaStrategy) endpoint(node *events.RelationshipNode, all []events.Constraint) ([]string, []string, map[string]any) {
	constraints := uniqueConstraints(all, node.Labels)
	keys := nodeKeys(node.Labels, node.IDs, constraints, s.keys)
	if len(keys) == 0 {
		return node.Labels, sortedKeys(node.IDs), node.IDs
	}

	var labels []string
	for _, label := range node.Labels {
		for _, c := range constraints {
			if c.Label == label {
				labels = append(labels, label)
				break
			}
		}
	}
	ids := make(map[string]any, len(keys))
	for _, key := range keys {
		ids[key] = node.IDs[key]
	}
	return labels, keys, ids
}

// uniqueConstraints returns the unique constraints declared on one of labels.
func uniqueConstraints(all []events.Constraint, labels []string) []events.Constraint {
	var out []events.Constraint
	for _, c := range all {
		if c.Type == events.ConstraintUnique && contains(labels, c.Label) {
			out = append(out, c)
		}
	}
	return out
}

// nodeKeys returns the sorted property names that identify a node. Only
// constraints whose properties are all present take part.
func nodeKeys(labels []string, properties map[string]any, constraints []events.Constraint, strategy KeyStrategy) []string {
	var candidates []events.Constraint
	for _, c := range constraints {
		if !contains(labels, c.Label) || len(c.Properties) == 0 {
			continue
		}
		present := true
		for _, prop := range c.Properties {
			if _, ok := properties[prop]; !ok {
				present = false
				break
			}
		}
		if present {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	var keys []string
	if strategy == KeyStrategyAll {
		for _, c := range candidates {
			for _, prop := range c.Properties {
				keys = appendUnique(keys, prop)
			}
		}
	} else {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i], candidates[j]
			if len(a.Properties) != len(b.Properties) {
				return len(a.Properties) < len(b.Properties)
			}
			if a.Label != b.Label {
				return a.Label < b.Label
			}
			return strings.Join(sortedCopy(a.Properties), ",") < strings.Join(sortedCopy(b.Properties), ",")
		})
		keys = append(keys, candidates[0].Properties...)
	}
	sort.Strings(keys)
	return keys
}

func sortedCopy(values []string) []string {
	out := append([]string(nil), values...)
	sort.Strings(out)
	return out
}
