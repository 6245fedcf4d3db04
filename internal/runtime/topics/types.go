package topics

// TopicTypeGroup clusters topic types that share an ingestion family.
type TopicTypeGroup string

const (
	GroupCypher  TopicTypeGroup = "CYPHER"
	GroupCDC     TopicTypeGroup = "CDC"
	GroupPattern TopicTypeGroup = "PATTERN"
	GroupCUD     TopicTypeGroup = "CUD"
)

// TopicType identifies the ingestion strategy family a topic is bound to.
type TopicType string

const (
	TypeCDCSourceID         TopicType = "CDC_SOURCE_ID"
	TypeCDCSchema           TopicType = "CDC_SCHEMA"
	TypeCypher              TopicType = "CYPHER"
	TypeCUD                 TopicType = "CUD"
	TypePatternNode         TopicType = "PATTERN_NODE"
	TypePatternRelationship TopicType = "PATTERN_RELATIONSHIP"
)

// DefaultNamespace prefixes every topic configuration key.
const DefaultNamespace = "streams.sink.topic"

// AllTypes lists every topic type in classification order.
var AllTypes = []TopicType{
	TypeCDCSourceID,
	TypeCDCSchema,
	TypeCypher,
	TypeCUD,
	TypePatternNode,
	TypePatternRelationship,
}

// Group returns the family the type belongs to.
func (t TopicType) Group() TopicTypeGroup {
	switch t {
	case TypeCDCSourceID, TypeCDCSchema:
		return GroupCDC
	case TypePatternNode, TypePatternRelationship:
		return GroupPattern
	case TypeCUD:
		return GroupCUD
	default:
		return GroupCypher
	}
}

// Key returns the configuration key suffix of the type, relative to the
// namespace.
func (t TopicType) Key() string {
	switch t {
	case TypeCDCSourceID:
		return "cdc.sourceId"
	case TypeCDCSchema:
		return "cdc.schema"
	case TypeCUD:
		return "cud"
	case TypePatternNode:
		return "pattern.node"
	case TypePatternRelationship:
		return "pattern.relationship"
	case TypeCypher:
		return "cypher"
	default:
		return ""
	}
}

// ConfigKey returns the full configuration key of the type under namespace.
// An empty namespace means DefaultNamespace.
func (t TopicType) ConfigKey(namespace string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + "." + t.Key()
}

// Valid reports whether t is one of the known topic types.
func (t TopicType) Valid() bool {
	for _, known := range AllTypes {
		if known == t {
			return true
		}
	}
	return false
}
