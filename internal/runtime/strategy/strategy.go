// Package strategy turns a batch of sink entities into graph write
// statements. Every strategy is pure: a batch goes in, (query, events) pairs
// come out, and no I/O happens.
package strategy

import (
	"github.com/drblury/graphsink/internal/runtime/events"
)

// QueryEvents is one statement and the events bound to its $events
// parameter.
type QueryEvents struct {
	Query  string
	Events []any
}

// Phase is one of the four write steps a batch goes through.
type Phase int

const (
	PhaseMergeNodes Phase = iota
	PhaseDeleteNodes
	PhaseMergeRelationships
	PhaseDeleteRelationships
)

// Phases lists the phases in the order they must be applied. Nodes exist
// before relationships reference them, and node deletes run before
// relationship merges.
var Phases = []Phase{
	PhaseMergeNodes,
	PhaseDeleteNodes,
	PhaseMergeRelationships,
	PhaseDeleteRelationships,
}

func (p Phase) String() string {
	switch p {
	case PhaseMergeNodes:
		return "merge-nodes"
	case PhaseDeleteNodes:
		return "delete-nodes"
	case PhaseMergeRelationships:
		return "merge-relationships"
	case PhaseDeleteRelationships:
		return "delete-relationships"
	default:
		return "unknown"
	}
}

// Strategy is the closed set of ingestion strategies. Only this package
// provides implementations.
type Strategy interface {
	MergeNodeEvents(batch []events.SinkEntity) []QueryEvents
	DeleteNodeEvents(batch []events.SinkEntity) []QueryEvents
	MergeRelationshipEvents(batch []events.SinkEntity) []QueryEvents
	DeleteRelationshipEvents(batch []events.SinkEntity) []QueryEvents

	// Name identifies the strategy in logs and metrics.
	Name() string

	sealed()
}

// Apply runs a single phase of s against batch.
func Apply(s Strategy, phase Phase, batch []events.SinkEntity) []QueryEvents {
	switch phase {
	case PhaseMergeNodes:
		return s.MergeNodeEvents(batch)
	case PhaseDeleteNodes:
		return s.DeleteNodeEvents(batch)
	case PhaseMergeRelationships:
		return s.MergeRelationshipEvents(batch)
	case PhaseDeleteRelationships:
		return s.DeleteRelationshipEvents(batch)
	default:
		return nil
	}
}

// noop provides empty phases for strategies that only emit some of them.
type noop struct{}

func (noop) MergeNodeEvents([]events.SinkEntity) []QueryEvents          { return nil }
func (noop) DeleteNodeEvents([]events.SinkEntity) []QueryEvents         { return nil }
func (noop) MergeRelationshipEvents([]events.SinkEntity) []QueryEvents  { return nil }
func (noop) DeleteRelationshipEvents([]events.SinkEntity) []QueryEvents { return nil }
func (noop) sealed()                                                    {}
