package strategy

import (
	"strings"

	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

// CUDOperation is the explicit operation a CUD entry asks for.
type CUDOperation string

const (
	CUDCreate CUDOperation = "create"
	CUDMerge  CUDOperation = "merge"
	CUDUpdate CUDOperation = "update"
	CUDDelete CUDOperation = "delete"
	CUDMatch  CUDOperation = "match"
)

const (
	cudIDsKey        = "ids"
	cudPhysicalIDKey = "_id"
	cudFromKey       = "from"
	cudToKey         = "to"
)

type cudNode struct {
	Op         CUDOperation   `json:"op"`
	Properties map[string]any `json:"properties"`
	IDs        map[string]any `json:"ids"`
	Detach     *bool          `json:"detach"`
	Labels     []string       `json:"labels"`
}

type cudNodeRef struct {
	IDs    map[string]any `json:"ids"`
	Labels []string       `json:"labels"`
	Op     CUDOperation   `json:"op"`
}

type cudRelationship struct {
	Op         CUDOperation   `json:"op"`
	Properties map[string]any `json:"properties"`
	RelType    string         `json:"rel_type"`
	From       cudNodeRef     `json:"from"`
	To         cudNodeRef     `json:"to"`
}

// CUDStrategy applies entries that state their operation explicitly, e.g.
// {"op": "merge", "type": "node", "labels": [...], "ids": {...},
// "properties": {...}}.
type CUDStrategy struct {
	noop
}

func NewCUDStrategy() *CUDStrategy {
	return &CUDStrategy{}
}

func (s *CUDStrategy) Name() string { return "cud" }

func (s *CUDStrategy) MergeNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var create, merge, update []cudNode
	for _, node := range cudNodes(batch) {
		switch node.Op {
		case CUDMerge:
			if len(node.IDs) > 0 && len(node.Properties) > 0 {
				merge = append(merge, node)
			}
		case CUDCreate:
			if len(node.Properties) > 0 {
				create = append(create, node)
			}
		case CUDUpdate:
			if len(node.Properties) > 0 {
				update = append(update, node)
			}
		}
	}

	// Entries matched on the internal id render the same statement for merge
	// and update, so grouping by statement coalesces them.
	var b batcher
	for _, node := range create {
		query := lines(unwind, "CREATE (n"+labelsString(node.effectiveLabels())+")", "SET n = event.properties")
		b.add(query, node.toMap())
	}
	for _, node := range merge {
		query := lines(unwind, nodeLookup("MERGE", node.IDs, node.effectiveLabels(), "n", ""), "SET n += event.properties")
		b.add(query, node.toMap())
	}
	for _, node := range update {
		query := lines(unwind, nodeLookup("MATCH", node.IDs, node.effectiveLabels(), "n", ""), "SET n += event.properties")
		b.add(query, node.toMap())
	}
	return b.result()
}

func (s *CUDStrategy) DeleteNodeEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, node := range cudNodes(batch) {
		if node.Op != CUDDelete || len(node.IDs) == 0 || len(node.Properties) > 0 {
			continue
		}
		detach := ""
		if node.Detach == nil || *node.Detach {
			detach = "DETACH "
		}
		query := lines(unwind, nodeLookup("MATCH", node.IDs, node.Labels, "n", ""), detach+"DELETE n")
		b.add(query, node.toMap())
	}
	return b.result()
}

func (s *CUDStrategy) MergeRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, rel := range cudRelationships(batch) {
		if !rel.mergeable() {
			continue
		}
		var parts []string
		switch rel.Op {
		case CUDCreate, CUDMerge:
			parts = []string{
				unwind,
				nodeLookup(strings.ToUpper(string(rel.From.Op)), rel.From.IDs, rel.From.effectiveLabels(), cudFromKey, cudFromKey),
				withEventFrom,
				nodeLookup(strings.ToUpper(string(rel.To.Op)), rel.To.IDs, rel.To.effectiveLabels(), cudToKey, cudToKey),
			}
			if rel.Op == CUDCreate {
				parts = append(parts, "CREATE (from)-[r:"+quote(rel.RelType)+"]->(to)", "SET r = event.properties")
			} else {
				parts = append(parts, "MERGE (from)-[r:"+quote(rel.RelType)+"]->(to)", "SET r += event.properties")
			}
		default:
			parts = []string{
				unwind,
				nodeLookup("MATCH", rel.From.IDs, rel.From.effectiveLabels(), cudFromKey, cudFromKey),
				nodeLookup("MATCH", rel.To.IDs, rel.To.effectiveLabels(), cudToKey, cudToKey),
				"MATCH (from)-[r:" + quote(rel.RelType) + "]->(to)",
				"SET r += event.properties",
			}
		}
		b.add(lines(parts...), rel.toMap())
	}
	return b.result()
}

func (s *CUDStrategy) DeleteRelationshipEvents(batch []events.SinkEntity) []QueryEvents {
	var b batcher
	for _, rel := range cudRelationships(batch) {
		if rel.Op != CUDDelete || len(rel.From.IDs) == 0 || len(rel.To.IDs) == 0 {
			continue
		}
		query := lines(
			unwind,
			nodeLookup("MATCH", rel.From.IDs, rel.From.effectiveLabels(), cudFromKey, cudFromKey),
			nodeLookup("MATCH", rel.To.IDs, rel.To.effectiveLabels(), cudToKey, cudToKey),
			"MATCH (from)-[r:"+quote(rel.RelType)+"]->(to)",
			"DELETE r",
		)
		b.add(query, rel.toMap())
	}
	return b.result()
}

// nodeLookup renders the clause locating a node by its ids. The internal id
// always uses MATCH, whatever the keyword.
func nodeLookup(keyword string, ids map[string]any, labels []string, identifier, field string) string {
	prefix := cudIDsKey
	if field != "" {
		prefix = field + "." + cudIDsKey
	}
	id := quote(identifier)
	if _, ok := ids[cudPhysicalIDKey]; ok {
		return "MATCH (" + id + ") WHERE id(" + id + ") = event." + prefix + "." + cudPhysicalIDKey
	}
	return keyword + " (" + id + labelsString(labels) + " {" + keysString(prefix, sortedKeys(ids)) + "})"
}

func (n cudNode) effectiveLabels() []string {
	if _, ok := n.IDs[cudPhysicalIDKey]; ok {
		return nil
	}
	return n.Labels
}

func (n cudNode) toMap() map[string]any {
	if n.Op == CUDDelete {
		return map[string]any{cudIDsKey: nonNil(n.IDs)}
	}
	return map[string]any{cudIDsKey: nonNil(n.IDs), "properties": nonNil(n.Properties)}
}

func (r cudNodeRef) effectiveLabels() []string {
	if _, ok := r.IDs[cudPhysicalIDKey]; ok {
		return nil
	}
	return r.Labels
}

func (r cudRelationship) mergeable() bool {
	switch r.Op {
	case CUDCreate, CUDMerge, CUDUpdate:
	default:
		return false
	}
	for _, op := range []CUDOperation{r.From.Op, r.To.Op} {
		if op != CUDCreate && op != CUDMerge && op != CUDMatch {
			return false
		}
	}
	return len(r.From.IDs) > 0 && len(r.To.IDs) > 0
}

func (r cudRelationship) toMap() map[string]any {
	out := map[string]any{
		cudFromKey: map[string]any{cudIDsKey: nonNil(r.From.IDs)},
		cudToKey:   map[string]any{cudIDsKey: nonNil(r.To.IDs)},
	}
	if r.Op != CUDDelete {
		out["properties"] = nonNil(r.Properties)
	}
	return out
}

func cudNodes(batch []events.SinkEntity) []cudNode {
	var out []cudNode
	for _, value := range cudValues(batch, events.EntityNode) {
		var node cudNode
		if err := jsoncodec.Convert(value, &node); err != nil || !node.Op.valid() {
			continue
		}
		out = append(out, node)
	}
	return out
}

func cudRelationships(batch []events.SinkEntity) []cudRelationship {
	var out []cudRelationship
	for _, value := range cudValues(batch, events.EntityRelationship) {
		var rel cudRelationship
		if err := jsoncodec.Convert(value, &rel); err != nil || !rel.Op.valid() || rel.RelType == "" {
			continue
		}
		if rel.From.Op == "" {
			rel.From.Op = CUDMatch
		}
		if rel.To.Op == "" {
			rel.To.Op = CUDMatch
		}
		out = append(out, rel)
	}
	return out
}

// cudValues returns the map values of batch whose "type" is typ. Entries
// without a type are dropped.
func cudValues(batch []events.SinkEntity, typ events.EntityType) []map[string]any {
	var out []map[string]any
	for _, entity := range batch {
		m, ok := asMap(entity.Value)
		if !ok {
			continue
		}
		if t, _ := m["type"].(string); events.EntityType(t) == typ {
			out = append(out, m)
		}
	}
	return out
}

func (op CUDOperation) valid() bool {
	switch op {
	case CUDCreate, CUDMerge, CUDUpdate, CUDDelete, CUDMatch:
		return true
	default:
		return false
	}
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
