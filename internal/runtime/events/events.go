// Package events holds the records a sink batch is made of and the
// change-data-capture envelope decoded from CDC topics.
package events

import (
	"fmt"

	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

// SinkEntity is one record consumed from a topic. A nil Value is a
// tombstone.
type SinkEntity struct {
	Key   any
	Value any
}

// OperationType is the kind of change a transaction event carries.
type OperationType string

const (
	OperationCreated OperationType = "created"
	OperationUpdated OperationType = "updated"
	OperationDeleted OperationType = "deleted"
)

// EntityType tells whether a payload describes a node or a relationship.
type EntityType string

const (
	EntityNode         EntityType = "node"
	EntityRelationship EntityType = "relationship"
)

// ConstraintType is the kind of schema constraint attached to an event.
type ConstraintType string

const (
	ConstraintUnique                     ConstraintType = "UNIQUE"
	ConstraintNodePropertyExists         ConstraintType = "NODE_PROPERTY_EXISTS"
	ConstraintRelationshipPropertyExists ConstraintType = "RELATIONSHIP_PROPERTY_EXISTS"
)

type Meta struct {
	Timestamp     int64          `json:"timestamp"`
	Username      string         `json:"username"`
	TxID          int64          `json:"txId"`
	TxEventID     int            `json:"txEventId"`
	TxEventsCount int            `json:"txEventsCount"`
	Operation     OperationType  `json:"operation"`
	Source        map[string]any `json:"source,omitempty"`
}

// Change is the before or after image of an entity.
type Change struct {
	Labels     []string       `json:"labels,omitempty"`
	Properties map[string]any `json:"properties"`
}

// RelationshipNode identifies an endpoint of a relationship payload.
type RelationshipNode struct {
	ID     string         `json:"id"`
	Labels []string       `json:"labels,omitempty"`
	IDs    map[string]any `json:"ids"`
}

type Payload struct {
	ID     string            `json:"id"`
	Type   EntityType        `json:"type"`
	Before *Change           `json:"before"`
	After  *Change           `json:"after"`
	Label  string            `json:"label,omitempty"`
	Start  *RelationshipNode `json:"start,omitempty"`
	End    *RelationshipNode `json:"end,omitempty"`
}

type Constraint struct {
	Label      string         `json:"label"`
	Properties []string       `json:"properties"`
	Type       ConstraintType `json:"type"`
}

type Schema struct {
	Properties  map[string]string `json:"properties,omitempty"`
	Constraints []Constraint      `json:"constraints"`
}

// TransactionEvent is the CDC envelope produced for every changed entity.
type TransactionEvent struct {
	Meta    Meta    `json:"meta"`
	Payload Payload `json:"payload"`
	Schema  Schema  `json:"schema"`
}

// IsDeletion reports whether the event removes its entity.
func (e TransactionEvent) IsDeletion() bool {
	return e.Meta.Operation == OperationDeleted || e.Payload.After == nil
}

// AsTransactionEvent converts a decoded record value into a TransactionEvent.
// It accepts the typed value itself, a decoded JSON map, or raw JSON.
func AsTransactionEvent(v any) (TransactionEvent, error) {
	var out TransactionEvent
	switch value := v.(type) {
	case nil:
		return out, fmt.Errorf("events: cannot convert a tombstone into a transaction event")
	case TransactionEvent:
		return value, nil
	case *TransactionEvent:
		if value == nil {
			return out, fmt.Errorf("events: nil transaction event")
		}
		return *value, nil
	case []byte:
		err := jsoncodec.Unmarshal(value, &out)
		return out, wrapConvert(err)
	case string:
		err := jsoncodec.Unmarshal([]byte(value), &out)
		return out, wrapConvert(err)
	default:
		return out, wrapConvert(jsoncodec.Convert(value, &out))
	}
}

func wrapConvert(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("events: invalid transaction event: %w", err)
}
