// Package topics classifies sink configuration keys into topic collections,
// one per ingestion strategy type, and validates that no topic is bound to
// more than one strategy.
package topics

import (
	"fmt"
	"sort"
	"strings"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/pattern"
)

const (
	databaseSeparator = ".to."
	listSeparator     = ";"
)

// Set is an unordered set of topic names.
type Set map[string]struct{}

// NewSet builds a set from names.
func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, name := range names {
		s[name] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Sorted returns the names in lexical order.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for name := range s {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s Set) union(other Set) Set {
	out := make(Set, len(s)+len(other))
	for name := range s {
		out[name] = struct{}{}
	}
	for name := range other {
		out[name] = struct{}{}
	}
	return out
}

// Topics is the classified view of the sink configuration. Values are never
// mutated after construction; Plus returns a new aggregate.
type Topics struct {
	CypherTopics      map[string]string
	CDCSourceIDTopics Set
	CDCSchemaTopics   Set
	CUDTopics         Set
	NodePatternTopics map[string]pattern.NodeConfig
	RelPatternTopics  map[string]pattern.RelationshipConfig
	Invalid           []string
}

// Empty returns an aggregate with every collection initialised.
func Empty() Topics {
	return Topics{
		CypherTopics:      map[string]string{},
		CDCSourceIDTopics: Set{},
		CDCSchemaTopics:   Set{},
		CUDTopics:         Set{},
		NodePatternTopics: map[string]pattern.NodeConfig{},
		RelPatternTopics:  map[string]pattern.RelationshipConfig{},
	}
}

// Classify builds the Topics aggregate from flat configuration properties.
//
// With an empty dbName only keys without a ".to.<db>" suffix are considered;
// otherwise only keys ending in ".to.<dbName>" are, with the suffix stripped.
// An empty namespace means DefaultNamespace.
func Classify(config map[string]string, namespace, dbName string, invalid []string) (Topics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	out := Empty()
	out.Invalid = uniqueSorted(invalid)

	keys := make([]string, 0, len(config))
	for key := range config {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, rawKey := range keys {
		key, ok := ScopeKey(rawKey, dbName)
		if !ok || !strings.HasPrefix(key, namespace+".") {
			continue
		}
		value := config[rawKey]

		switch {
		case key == TypeCDCSourceID.ConfigKey(namespace):
			out.CDCSourceIDTopics = out.CDCSourceIDTopics.union(splitTopicList(value))
		case key == TypeCDCSchema.ConfigKey(namespace):
			out.CDCSchemaTopics = out.CDCSchemaTopics.union(splitTopicList(value))
		case key == TypeCUD.ConfigKey(namespace):
			out.CUDTopics = out.CUDTopics.union(splitTopicList(value))
		default:
			if topic, ok := topicSuffix(key, TypeCypher.ConfigKey(namespace)); ok {
				out.CypherTopics[topic] = value
				continue
			}
			if topic, ok := topicSuffix(key, TypePatternNode.ConfigKey(namespace)); ok {
				cfg, err := pattern.ParseNode(strings.TrimSpace(value))
				if err != nil {
					return Topics{}, errspkg.NewConfigurationError("key %s: %v", rawKey, err)
				}
				out.NodePatternTopics[topic] = cfg
				continue
			}
			if topic, ok := topicSuffix(key, TypePatternRelationship.ConfigKey(namespace)); ok {
				cfg, err := pattern.ParseRelationship(strings.TrimSpace(value))
				if err != nil {
					return Topics{}, errspkg.NewConfigurationError("key %s: %v", rawKey, err)
				}
				out.RelPatternTopics[topic] = cfg
			}
		}
	}

	return out, nil
}

// ForDatabase classifies the topics that apply to dbName. The default
// database sees the global topics plus its own scoped ones; any other
// database sees only its scoped topics. The result is validated.
func ForDatabase(config map[string]string, namespace, dbName string, isDefaultDB bool, invalid []string) (Topics, error) {
	scoped, err := Classify(config, namespace, dbName, invalid)
	if err != nil {
		return Topics{}, err
	}

	result := scoped
	if isDefaultDB || dbName == "" {
		global, err := Classify(config, namespace, "", invalid)
		if err != nil {
			return Topics{}, err
		}
		if dbName == "" {
			result = global
		} else {
			result = global.Plus(scoped)
		}
	}

	if err := Validate(result); err != nil {
		return Topics{}, err
	}
	return result, nil
}

// Plus returns the union of t and other. For map-valued collections the entry
// of other wins when both define the same topic.
func (t Topics) Plus(other Topics) Topics {
	out := Empty()
	for topic, query := range t.CypherTopics {
		out.CypherTopics[topic] = query
	}
	for topic, query := range other.CypherTopics {
		out.CypherTopics[topic] = query
	}
	for topic, cfg := range t.NodePatternTopics {
		out.NodePatternTopics[topic] = cfg
	}
	for topic, cfg := range other.NodePatternTopics {
		out.NodePatternTopics[topic] = cfg
	}
	for topic, cfg := range t.RelPatternTopics {
		out.RelPatternTopics[topic] = cfg
	}
	for topic, cfg := range other.RelPatternTopics {
		out.RelPatternTopics[topic] = cfg
	}
	out.CDCSourceIDTopics = t.CDCSourceIDTopics.union(other.CDCSourceIDTopics)
	out.CDCSchemaTopics = t.CDCSchemaTopics.union(other.CDCSchemaTopics)
	out.CUDTopics = t.CUDTopics.union(other.CUDTopics)
	out.Invalid = uniqueSorted(append(append([]string{}, t.Invalid...), other.Invalid...))
	return out
}

// ByType returns the sorted topic names of every type.
func (t Topics) ByType() map[TopicType][]string {
	return map[TopicType][]string{
		TypeCDCSourceID:         t.CDCSourceIDTopics.Sorted(),
		TypeCDCSchema:           t.CDCSchemaTopics.Sorted(),
		TypeCypher:              sortedKeys(t.CypherTopics),
		TypeCUD:                 t.CUDTopics.Sorted(),
		TypePatternNode:         sortedKeys(t.NodePatternTopics),
		TypePatternRelationship: sortedKeys(t.RelPatternTopics),
	}
}

// All returns every topic name in type order, keeping duplicates so cross
// definitions remain visible.
func (t Topics) All() []string {
	byType := t.ByType()
	var out []string
	for _, typ := range AllTypes {
		out = append(out, byType[typ]...)
	}
	return out
}

// Names returns the distinct topic names in lexical order.
func (t Topics) Names() []string {
	return uniqueSorted(t.All())
}

// TypeOf returns the type a topic is bound to.
func (t Topics) TypeOf(topic string) (TopicType, bool) {
	switch {
	case t.CDCSourceIDTopics.Has(topic):
		return TypeCDCSourceID, true
	case t.CDCSchemaTopics.Has(topic):
		return TypeCDCSchema, true
	}
	if _, ok := t.CypherTopics[topic]; ok {
		return TypeCypher, true
	}
	if t.CUDTopics.Has(topic) {
		return TypeCUD, true
	}
	if _, ok := t.NodePatternTopics[topic]; ok {
		return TypePatternNode, true
	}
	if _, ok := t.RelPatternTopics[topic]; ok {
		return TypePatternRelationship, true
	}
	return "", false
}

// IsEmpty reports whether no topic is configured.
func (t Topics) IsEmpty() bool {
	return len(t.All()) == 0
}

// Validate fails with a ConfigurationError naming every topic that is bound
// to more than one type.
func Validate(t Topics) error {
	byType := t.ByType()
	seen := make(map[string][]string)
	for _, typ := range AllTypes {
		for _, topic := range byType[typ] {
			seen[topic] = append(seen[topic], string(typ))
		}
	}

	crossDefined := make(map[string][]string)
	for topic, types := range seen {
		if len(types) > 1 {
			crossDefined[topic] = types
		}
	}
	if len(crossDefined) == 0 {
		return nil
	}
	return &errspkg.ConfigurationError{
		Reason:       "the following topics are cross defined",
		CrossDefined: crossDefined,
	}
}

// ScopeKey strips the ".to.<dbName>" suffix from key. With an empty dbName
// it accepts only keys without a database suffix. It reports false for keys
// that belong to another database.
func ScopeKey(key, dbName string) (string, bool) {
	if dbName == "" {
		return key, !strings.Contains(key, databaseSeparator)
	}
	suffix := databaseSeparator + strings.ToLower(dbName)
	if !strings.HasSuffix(strings.ToLower(key), suffix) {
		return "", false
	}
	return key[:len(key)-len(suffix)], true
}

func topicSuffix(key, prefix string) (string, bool) {
	if !strings.HasPrefix(key, prefix+".") {
		return "", false
	}
	topic := strings.TrimPrefix(key, prefix+".")
	return topic, topic != ""
}

func splitTopicList(value string) Set {
	out := Set{}
	for _, topic := range strings.Split(value, listSeparator) {
		if topic = strings.TrimSpace(topic); topic != "" {
			out[topic] = struct{}{}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for key := range m {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return NewSet(values...).Sorted()
}

// String renders the topics grouped by type.
func (t Topics) String() string {
	byType := t.ByType()
	parts := make([]string, 0, len(AllTypes))
	for _, typ := range AllTypes {
		if names := byType[typ]; len(names) > 0 {
			parts = append(parts, fmt.Sprintf("%s=%v", typ, names))
		}
	}
	return "Topics{" + strings.Join(parts, " ") + "}"
}
