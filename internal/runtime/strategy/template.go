package strategy

import (
	"github.com/drblury/graphsink/internal/runtime/events"
)

// CypherTemplateStrategy binds every record value of a batch to one
// user-provided statement.
type CypherTemplateStrategy struct {
	noop
	query string
}

func NewCypherTemplateStrategy(template string) *CypherTemplateStrategy {
	return &CypherTemplateStrategy{query: unwind + " " + template}
}

func (s *CypherTemplateStrategy) Name() string { return "cypher" }

// Query returns the full statement the template expands to.
func (s *CypherTemplateStrategy) Query() string { return s.query }

func (s *CypherTemplateStrategy) MergeNodeEvents(batch []events.SinkEntity) []QueryEvents {
	values := make([]any, 0, len(batch))
	for _, entity := range batch {
		if entity.Value != nil {
			values = append(values, entity.Value)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return []QueryEvents{{Query: s.query, Events: values}}
}
