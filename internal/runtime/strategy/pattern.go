package strategy

import (
	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/pattern"
)

// NodePatternStrategy maps every record value onto a node described by a
// pattern such as "(:Person{!id,name})".
type NodePatternStrategy struct {
	noop
	cfg         pattern.NodeConfig
	mergeQuery  string
	deleteQuery string
}

func NewNodePatternStrategy(cfg pattern.NodeConfig) *NodePatternStrategy {
	match := "(n" + labelsString(cfg.Labels) + "{" + keysString("keys", cfg.Keys) + "})"
	return &NodePatternStrategy{
		cfg: cfg,
		mergeQuery: lines(
			unwind,
			"MERGE "+match,
			"SET n = event.properties",
			"SET n += event.keys",
		),
		deleteQuery: lines(
			unwind,
			"MATCH "+match,
			"DETACH DELETE n",
		),
	}
}

func (s *NodePatternStrategy) Name() string { return "pattern-node" }

func (s *NodePatternStrategy) MergeNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, entity := range batch {
		value, ok := asMap(entity.Value)
		if !ok {
			continue
		}
		if data, ok := nodeData(s.cfg, value, true); ok {
			b.add(s.mergeQuery, data)
		}
	}
	return b.result()
}

func (s *NodePatternStrategy) DeleteNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, entity := range batch {
		if entity.Value != nil {
			continue
		}
		key, ok := asMap(entity.Key)
		if !ok {
			continue
		}
		if data, ok := nodeData(s.cfg, key, false); ok {
			b.add(s.deleteQuery, data)
		}
	}
	return b.result()
}

// RelationshipPatternStrategy maps every record value onto a relationship and
// its two endpoints, described by a pattern such as
// "(:User{!id})-[:BOUGHT{price}]->(:Product{!sku})".
type RelationshipPatternStrategy struct {
	noop
	cfg         pattern.RelationshipConfig
	mergeQuery  string
	deleteQuery string
}

func NewRelationshipPatternStrategy(cfg pattern.RelationshipConfig) *RelationshipPatternStrategy {
	start := "(start" + labelsString(cfg.Start.Labels) + "{" + keysString("start.keys", cfg.Start.Keys) + "})"
	end := "(end" + labelsString(cfg.End.Labels) + "{" + keysString("end.keys", cfg.End.Keys) + "})"
	rel := "(start)-[r:" + quote(cfg.RelType) + "]->(end)"
	return &RelationshipPatternStrategy{
		cfg: cfg,
		mergeQuery: lines(
			unwind,
			"MERGE "+start,
			"SET start = event.start.properties",
			"SET start += event.start.keys",
			"MERGE "+end,
			"SET end = event.end.properties",
			"SET end += event.end.keys",
			"MERGE "+rel,
			"SET r = event.properties",
		),
		deleteQuery: lines(
			unwind,
			"MATCH "+start,
			"MATCH "+end,
			"MATCH "+rel,
			"DELETE r",
		),
	}
}

func (s *RelationshipPatternStrategy) Name() string { return "pattern-relationship" }

func (s *RelationshipPatternStrategy) MergeRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, entity := range batch {
		value, ok := asMap(entity.Value)
		if !ok {
			continue
		}
		if data, ok := relationshipData(s.cfg, value, true); ok {
			b.add(s.mergeQuery, data)
		}
	}
	return b.result()
}

func (s *RelationshipPatternStrategy) DeleteRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, entity := range batch {
		if entity.Value != nil {
			continue
		}
		key, ok := asMap(entity.Key)
		if !ok {
			continue
		}
		if data, ok := relationshipData(s.cfg, key, false); ok {
			b.add(s.deleteQuery, data)
		}
	}
	return b.result()
}

// nodeData extracts {keys, properties} from a record. It fails when any key
// is missing.
func nodeData(cfg pattern.NodeConfig, value map[string]any, withProperties bool) (map[string]any, bool) {
	flat := flatten(value)
	keys := make(map[string]any, len(cfg.Keys))
	for _, key := range cfg.Keys {
		v, ok := flat[key]
		if !ok {
			return nil, false
		}
		keys[key] = v
	}
	if !withProperties {
		return map[string]any{"keys": keys}, true
	}

	properties := make(map[string]any)
	for key, v := range flat {
		if contains(cfg.Keys, key) {
			continue
		}
		if selected(cfg.Type, key, cfg.Properties) {
			properties[key] = v
		}
	}
	return map[string]any{"keys": keys, "properties": unflatten(properties)}, true
}

func relationshipData(cfg pattern.RelationshipConfig, value map[string]any, withProperties bool) (map[string]any, bool) {
	start, ok := nodeData(cfg.Start, value, withProperties)
	if !ok {
		return nil, false
	}
	end, ok := nodeData(cfg.End, value, withProperties)
	if !ok {
		return nil, false
	}
	data := map[string]any{"start": start, "end": end}
	if !withProperties {
		return data, true
	}

	properties := make(map[string]any)
	for key, v := range flatten(value) {
		if endpointProperty(cfg.Start, key) || endpointProperty(cfg.End, key) {
			continue
		}
		if selected(cfg.Type, key, cfg.Properties) {
			properties[key] = v
		}
	}
	data["properties"] = unflatten(properties)
	return data, true
}

func endpointProperty(cfg pattern.NodeConfig, key string) bool {
	return contains(cfg.Keys, key) || containsProp(key, cfg.Properties)
}

func selected(typ pattern.Type, key string, properties []string) bool {
	switch typ {
	case pattern.TypeInclude:
		return containsProp(key, properties)
	case pattern.TypeExclude:
		return !containsProp(key, properties)
	default:
		return true
	}
}
