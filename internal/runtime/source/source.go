package source

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/topics"
)

// Property keys of the source routes.
const (
	KeyNodesPrefix         = "streams.source.topic.nodes."
	KeyRelationshipsPrefix = "streams.source.topic.relationships."
	KeyStrategySuffix      = ".key_strategy"
)

// DefaultTopic receives every node and relationship event when no route is
// configured.
const DefaultTopic = "neo4j"

// Routes is the source routing table of one database.
type Routes struct {
	Nodes         []NodeRoute
	Relationships []RelationshipRoute
}

// Default routes every event to DefaultTopic.
func Default() Routes {
	return Routes{
		Nodes:         []NodeRoute{{Topic: DefaultTopic, Properties: Properties{All: true}}},
		Relationships: []RelationshipRoute{{Topic: DefaultTopic, KeyStrategy: KeyStrategyDefault, Properties: Properties{All: true}}},
	}
}

// FromProperties reads the routes that apply to db. The default database
// also sees routes declared without a ".to.<db>" suffix. Unknown key
// strategies fall back to KeyStrategyDefault and are returned in ignored.
// Without any route the Default table is returned.
func FromProperties(props map[string]string, db string, isDefault bool) (routes Routes, ignored []string, err error) {
	var scopes []string
	switch {
	case db == "":
		scopes = []string{""}
	case isDefault:
		scopes = []string{"", db}
	default:
		scopes = []string{db}
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, scope := range scopes {
		strategies := map[string]string{}
		for _, raw := range keys {
			key, ok := topics.ScopeKey(raw, scope)
			if !ok || !strings.HasPrefix(key, KeyRelationshipsPrefix) || !strings.HasSuffix(key, KeyStrategySuffix) {
				continue
			}
			topic := strings.TrimSuffix(strings.TrimPrefix(key, KeyRelationshipsPrefix), KeyStrategySuffix)
			strategies[topic] = props[raw]
		}

		for _, raw := range keys {
			key, ok := topics.ScopeKey(raw, scope)
			if !ok || strings.HasSuffix(key, KeyStrategySuffix) {
				continue
			}
			value := strings.TrimSpace(props[raw])
			switch {
			case strings.HasPrefix(key, KeyNodesPrefix):
				r, err := ParseNodeRoutes(strings.TrimPrefix(key, KeyNodesPrefix), value)
				if err != nil {
					errs = append(errs, fmt.Errorf("key %s: %w", raw, err))
					continue
				}
				routes.Nodes = append(routes.Nodes, r...)
			case strings.HasPrefix(key, KeyRelationshipsPrefix):
				topic := strings.TrimPrefix(key, KeyRelationshipsPrefix)
				strategy := KeyStrategyDefault
				if rawStrategy, ok := strategies[topic]; ok {
					var known bool
					if strategy, known = ParseKeyStrategy(rawStrategy); !known {
						ignored = append(ignored, rawStrategy)
					}
				}
				r, err := ParseRelationshipRoutes(topic, value, strategy)
				if err != nil {
					errs = append(errs, fmt.Errorf("key %s: %w", raw, err))
					continue
				}
				routes.Relationships = append(routes.Relationships, r...)
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return Routes{}, nil, err
	}
	if len(routes.Nodes) == 0 && len(routes.Relationships) == 0 {
		return Default(), ignored, nil
	}
	return routes, ignored, nil
}

// Topics returns every topic a route publishes to, sorted.
func (r Routes) Topics() []string {
	set := topics.Set{}
	for _, n := range r.Nodes {
		set[n.Topic] = struct{}{}
	}
	for _, rel := range r.Relationships {
		set[rel.Topic] = struct{}{}
	}
	return set.Sorted()
}

// KeyStrategy returns the key strategy of the first route bound to relType.
func (r Routes) KeyStrategy(relType string) KeyStrategy {
	for _, rel := range r.Relationships {
		if rel.Name == relType {
			return rel.KeyStrategy
		}
	}
	return KeyStrategyDefault
}

// Route returns, per topic, the copy of evt that topic receives. Node
// events go through the node routes matching one of their labels, taken
// from the before image for deletions and the after image otherwise;
// relationship events through the routes matching their type. Each copy
// carries only the properties its route selects. When several routes of
// one topic match, the last one wins.
func (r Routes) Route(evt events.TransactionEvent) map[string]events.TransactionEvent {
	out := map[string]events.TransactionEvent{}
	switch evt.Payload.Type {
	case events.EntityNode:
		labels := nodeLabels(evt)
		for _, route := range r.Nodes {
			if len(route.Labels) > 0 && !anyLabel(route.Labels, labels) {
				continue
			}
			out[route.Topic] = filtered(evt, route.Properties)
		}
	case events.EntityRelationship:
		for _, route := range r.Relationships {
			if route.Name != "" && route.Name != evt.Payload.Label {
				continue
			}
			out[route.Topic] = filtered(evt, route.Properties)
		}
	}
	return out
}

func (r Routes) String() string {
	parts := make([]string, 0, len(r.Nodes)+len(r.Relationships))
	for _, n := range r.Nodes {
		parts = append(parts, n.String())
	}
	for _, rel := range r.Relationships {
		parts = append(parts, rel.String())
	}
	return strings.Join(parts, "; ")
}

func nodeLabels(evt events.TransactionEvent) []string {
	change := evt.Payload.After
	if evt.Meta.Operation == events.OperationDeleted {
		change = evt.Payload.Before
	}
	if change == nil {
		return nil
	}
	return change.Labels
}

func anyLabel(wanted, have []string) bool {
	for _, w := range wanted {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

func filtered(evt events.TransactionEvent, p Properties) events.TransactionEvent {
	out := evt
	if evt.Payload.Before != nil {
		before := *evt.Payload.Before
		before.Properties = p.Filter(before.Properties)
		out.Payload.Before = &before
	}
	if evt.Payload.After != nil {
		after := *evt.Payload.After
		after.Properties = p.Filter(after.Properties)
		out.Payload.After = &after
	}
	return out
}
