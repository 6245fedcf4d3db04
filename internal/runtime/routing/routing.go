// Package routing maps topic names to the ingestion strategy bound to them.
package routing

import (
	"sync/atomic"

	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/pattern"
	"github.com/drblury/graphsink/internal/runtime/strategy"
	"github.com/drblury/graphsink/internal/runtime/topics"
)

// Options tune the strategies shared by every topic of a type.
type Options struct {
	SourceID    strategy.SourceIDConfig
	KeyStrategy strategy.KeyStrategy
}

type entry struct {
	typ      topics.TopicType
	strategy strategy.Strategy
}

// Storage is a read-only topic to strategy table built from one
// configuration load. It is safe for concurrent readers.
type Storage struct {
	topics  topics.Topics
	entries map[string]entry
}

// NewStorage validates t and builds the strategy of every topic. The CDC
// and CUD strategies are shared by all topics of their type.
func NewStorage(t topics.Topics, opts Options) (*Storage, error) {
	if err := topics.Validate(t); err != nil {
		return nil, err
	}

	sourceID := strategy.NewSourceIDStrategy(opts.SourceID)
	schema := strategy.NewSchemaStrategy(opts.KeyStrategy)
	cud := strategy.NewCUDStrategy()

	entries := make(map[string]entry)
	for name := range t.CDCSourceIDTopics {
		entries[name] = entry{typ: topics.TypeCDCSourceID, strategy: sourceID}
	}
	for name := range t.CDCSchemaTopics {
		entries[name] = entry{typ: topics.TypeCDCSchema, strategy: schema}
	}
	for name := range t.CUDTopics {
		entries[name] = entry{typ: topics.TypeCUD, strategy: cud}
	}
	for name, template := range t.CypherTopics {
		entries[name] = entry{typ: topics.TypeCypher, strategy: strategy.NewCypherTemplateStrategy(template)}
	}
	for name, cfg := range t.NodePatternTopics {
		entries[name] = entry{typ: topics.TypePatternNode, strategy: strategy.NewNodePatternStrategy(cfg)}
	}
	for name, cfg := range t.RelPatternTopics {
		entries[name] = entry{typ: topics.TypePatternRelationship, strategy: strategy.NewRelationshipPatternStrategy(cfg)}
	}

	return &Storage{topics: t, entries: entries}, nil
}

// Topics returns the aggregate the storage was built from.
func (s *Storage) Topics() topics.Topics {
	return s.topics
}

// TopicType returns the type topic is bound to.
func (s *Storage) TopicType(topic string) (topics.TopicType, bool) {
	e, ok := s.entries[topic]
	return e.typ, ok
}

// Strategy returns the strategy bound to topic.
func (s *Storage) Strategy(topic string) (strategy.Strategy, error) {
	e, ok := s.entries[topic]
	if !ok {
		return nil, &errspkg.TopicNotConfiguredError{Topic: topic}
	}
	return e.strategy, nil
}

// Len returns the number of configured topics.
func (s *Storage) Len() int {
	return len(s.entries)
}

// StrategyFor builds a strategy for typ. The template is used by CYPHER,
// node by PATTERN_NODE and rel by PATTERN_RELATIONSHIP; other types ignore
// them.
func StrategyFor(typ topics.TopicType, opts Options, template string, node pattern.NodeConfig, rel pattern.RelationshipConfig) (strategy.Strategy, error) {
	switch typ {
	case topics.TypeCDCSourceID:
		return strategy.NewSourceIDStrategy(opts.SourceID), nil
	case topics.TypeCDCSchema:
		return strategy.NewSchemaStrategy(opts.KeyStrategy), nil
	case topics.TypeCUD:
		return strategy.NewCUDStrategy(), nil
	case topics.TypeCypher:
		return strategy.NewCypherTemplateStrategy(template), nil
	case topics.TypePatternNode:
		return strategy.NewNodePatternStrategy(node), nil
	case topics.TypePatternRelationship:
		return strategy.NewRelationshipPatternStrategy(rel), nil
	default:
		return nil, &errspkg.UnsupportedTopicTypeError{Type: string(typ)}
	}
}

// Holder publishes the current Storage. Reloads build a new Storage and swap
// it in, so readers never observe a partially built table.
type Holder struct {
	current atomic.Pointer[Storage]
}

// NewHolder returns a holder publishing s, which may be nil.
func NewHolder(s *Storage) *Holder {
	h := &Holder{}
	if s != nil {
		h.current.Store(s)
	}
	return h
}

// Load returns the current storage, or nil before the first Store.
func (h *Holder) Load() *Storage {
	return h.current.Load()
}

// Store installs s.
func (h *Holder) Store(s *Storage) {
	h.current.Store(s)
}

// Swap installs s and returns the previous storage.
func (h *Holder) Swap(s *Storage) *Storage {
	return h.current.Swap(s)
}

// Strategy resolves topic against the current storage.
func (h *Holder) Strategy(topic string) (strategy.Strategy, error) {
	s := h.current.Load()
	if s == nil {
		return nil, &errspkg.TopicNotConfiguredError{Topic: topic}
	}
	return s.Strategy(topic)
}

// TopicType resolves the type of topic against the current storage.
func (h *Holder) TopicType(topic string) (topics.TopicType, bool) {
	s := h.current.Load()
	if s == nil {
		return "", false
	}
	return s.TopicType(topic)
}
