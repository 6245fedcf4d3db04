// Package broker adapts watermill publishers and subscribers to the
// poll-based record client used by the sink and by ad hoc consumers.
package broker

import (
	"fmt"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/drblury/graphsink/internal/runtime/events"
	"github.com/drblury/graphsink/internal/runtime/ids"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
	"github.com/drblury/graphsink/internal/runtime/metadata"
	"github.com/drblury/graphsink/transport"
)

// Format selects how a published value is serialised.
type Format string

const (
	FormatJSON  Format = "json"
	FormatProto Format = "proto"
)

// ParseFormat maps a user supplied format name. Unknown names mean JSON.
func ParseFormat(v string) Format {
	if strings.EqualFold(strings.TrimSpace(v), string(FormatProto)) {
		return FormatProto
	}
	return FormatJSON
}

// Record is one decoded broker message. Partition and Offset are -1 when
// the transport has no notion of them.
type Record struct {
	Topic     string
	Key       any
	Value     any
	Partition int32
	Offset    int64
	MessageID string
	Metadata  metadata.Metadata
}

// Entity returns the key/value pair handed to the ingestion strategies.
func (r Record) Entity() events.SinkEntity {
	return events.SinkEntity{Key: r.Key, Value: r.Value}
}

// Map renders the record the way consumers receive it.
func (r Record) Map() map[string]any {
	return map[string]any{
		"topic":     r.Topic,
		"key":       r.Key,
		"data":      r.Value,
		"partition": r.Partition,
		"offset":    r.Offset,
	}
}

// DecodeError reports a message whose key or value could not be decoded.
type DecodeError struct {
	Topic     string
	MessageID string
	Err       error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("broker: cannot decode message %s from topic %s: %v", e.MessageID, e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode turns a watermill message consumed from topic into a Record. An
// empty payload decodes to a nil value, which marks a tombstone. Keys are
// carried as JSON text in the record key header; a key that is not JSON is
// kept as a plain string.
func Decode(topic string, msg *message.Message, position transport.PositionFunc) (Record, error) {
	md := metadata.FromMessage(msg)
	rec := Record{
		Topic:     topic,
		Partition: -1,
		Offset:    -1,
		MessageID: msg.UUID,
		Metadata:  md,
	}
	if position != nil {
		if pos, ok := position(msg); ok {
			rec.Partition, rec.Offset = pos.Partition, pos.Offset
		}
	}

	if raw, ok := md[metadata.KeyRecordKey]; ok && raw != "" {
		key, err := jsoncodec.DecodeValue([]byte(raw))
		if err != nil {
			key = raw
		}
		rec.Key = key
	}

	value, err := decodeValue(md.ContentType(), msg.Payload)
	if err != nil {
		return rec, &DecodeError{Topic: topic, MessageID: msg.UUID, Err: err}
	}
	rec.Value = value
	return rec, nil
}

func decodeValue(contentType string, payload []byte) (any, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if contentType != metadata.ContentTypeProtobuf {
		return jsoncodec.DecodeValue(payload)
	}
	var v structpb.Value
	if err := proto.Unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v.AsInterface(), nil
}

// Encode builds the watermill message published for value. A nil value
// produces an empty payload, i.e. a tombstone.
func Encode(key any, value any, format Format, md metadata.Metadata) (*message.Message, error) {
	rawKey, err := jsoncodec.Marshal(key)
	if err != nil {
		return nil, fmt.Errorf("broker: encode key: %w", err)
	}

	contentType := metadata.ContentTypeJSON
	var payload []byte
	if value != nil {
		switch format {
		case FormatProto:
			contentType = metadata.ContentTypeProtobuf
			pv, err := toProtoValue(value)
			if err != nil {
				return nil, fmt.Errorf("broker: encode value: %w", err)
			}
			if payload, err = proto.Marshal(pv); err != nil {
				return nil, fmt.Errorf("broker: encode value: %w", err)
			}
		default:
			if payload, err = marshalJSON(value); err != nil {
				return nil, fmt.Errorf("broker: encode value: %w", err)
			}
		}
	}

	msg := message.NewMessage(ids.NewMessageID(), payload)
	md.Apply(msg)
	msg.Metadata.Set(metadata.KeyRecordKey, string(rawKey))
	msg.Metadata.Set(metadata.KeyContentType, contentType)
	return msg, nil
}

// marshalJSON renders generated protobuf messages with their canonical JSON
// mapping and everything else with sonic.
func marshalJSON(value any) ([]byte, error) {
	if m, ok := value.(proto.Message); ok {
		return protojson.Marshal(m)
	}
	return jsoncodec.Marshal(value)
}

// toProtoValue normalises value through JSON first so structs, typed maps
// and generated messages are accepted by structpb.
func toProtoValue(value any) (*structpb.Value, error) {
	if pv, ok := value.(*structpb.Value); ok {
		return pv, nil
	}
	if m, ok := value.(proto.Message); ok {
		raw, err := protojson.Marshal(m)
		if err != nil {
			return nil, err
		}
		var pv structpb.Value
		if err := protojson.Unmarshal(raw, &pv); err != nil {
			return nil, err
		}
		return &pv, nil
	}
	if pv, err := structpb.NewValue(value); err == nil {
		return pv, nil
	}
	var generic any
	if err := jsoncodec.Convert(value, &generic); err != nil {
		return nil, err
	}
	return structpb.NewValue(generic)
}
