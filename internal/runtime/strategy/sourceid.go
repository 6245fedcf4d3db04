package strategy

import (
	"github.com/drblury/graphsink/internal/runtime/events"
)

// SourceIDConfig names the label and property that carry the id of the
// originating entity.
type SourceIDConfig struct {
	LabelName string
	IDName    string
}

// DefaultSourceIDConfig is used when no override is configured.
func DefaultSourceIDConfig() SourceIDConfig {
	return SourceIDConfig{LabelName: "SourceEvent", IDName: "sourceId"}
}

// SourceIDStrategy mirrors CDC events by the id the entity had in the source
// database, ignoring schema constraints.
type SourceIDStrategy struct {
	noop
	label string
	id    string
}

// NewSourceIDStrategy returns a strategy for cfg. Empty fields take the
// defaults.
func NewSourceIDStrategy(cfg SourceIDConfig) *SourceIDStrategy {
	def := DefaultSourceIDConfig()
	if cfg.LabelName == "" {
		cfg.LabelName = def.LabelName
	}
	if cfg.IDName == "" {
		cfg.IDName = def.IDName
	}
	return &SourceIDStrategy{label: quote(cfg.LabelName), id: quote(cfg.IDName)}
}

func (s *SourceIDStrategy) Name() string { return "cdc-source-id" }

func (s *SourceIDStrategy) MergeNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityNode) {
		if evt.IsDeletion() {
			continue
		}
		var before []string
		if evt.Payload.Before != nil {
			before = evt.Payload.Before.Labels
		}
		after := evt.Payload.After.Labels

		parts := []string{
			unwind,
			"MERGE (n:" + s.label + "{" + s.id + ": event.id})",
			"SET n = event.properties",
			"SET n." + s.id + " = event.id",
		}
		if removed := difference(before, after); len(removed) > 0 {
			parts = append(parts, "REMOVE n"+labelsString(removed))
		}
		if added := difference(after, before); len(added) > 0 {
			parts = append(parts, "SET n"+labelsString(added))
		}
		b.add(lines(parts...), map[string]any{
			"id":         evt.Payload.ID,
			"properties": propertiesOf(evt.Payload.After),
		})
	}
	return b.result()
}

func (s *SourceIDStrategy) DeleteNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	query := unwind + " MATCH (n:" + s.label + "{" + s.id + ": event.id}) DETACH DELETE n"
	for _, evt := range transactionEvents(batch, events.EntityNode) {
		if evt.IsDeletion() {
			b.add(query, map[string]any{"id": evt.Payload.ID})
		}
	}
	return b.result()
}

func (s *SourceIDStrategy) MergeRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityRelationship) {
		if evt.IsDeletion() || evt.Payload.Start == nil || evt.Payload.End == nil {
			continue
		}
		query := lines(
			unwind,
			"MERGE (start:"+s.label+"{"+s.id+": event.start})",
			"MERGE (end:"+s.label+"{"+s.id+": event.end})",
			"MERGE (start)-[r:"+quote(evt.Payload.Label)+"{"+s.id+": event.id}]->(end)",
			"SET r = event.properties",
			"SET r."+s.id+" = event.id",
		)
		b.add(query, map[string]any{
			"id":         evt.Payload.ID,
			"start":      evt.Payload.Start.ID,
			"end":        evt.Payload.End.ID,
			"properties": propertiesOf(evt.Payload.After),
		})
	}
	return b.result()
}

func (s *SourceIDStrategy) DeleteRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, evt := range transactionEvents(batch, events.EntityRelationship) {
		if !evt.IsDeletion() {
			continue
		}
		query := unwind + " MATCH ()-[r:" + quote(evt.Payload.Label) + "{" + s.id + ": event.id}]-() DELETE r"
		b.add(query, map[string]any{"id": evt.Payload.ID})
	}
	return b.result()
}

// transactionEvents decodes the non-tombstone values of batch whose payload
// is of type typ. Values that are not transaction events are skipped.
func transactionEvents(batch []events.SinkEntity, typ events.EntityType) []events.TransactionEvent {
	out := make([]events.TransactionEvent, 0, len(batch))
	for _, entity := range batch {
		if entity.Value == nil {
			continue
		}
		evt, err := events.AsTransactionEvent(entity.Value)
		if err != nil || evt.Payload.Type != typ {
			continue
		}
		out = append(out, evt)
	}
	return out
}

func propertiesOf(c *events.Change) map[string]any {
	if c == nil || c.Properties == nil {
		return map[string]any{}
	}
	return c.Properties
}
