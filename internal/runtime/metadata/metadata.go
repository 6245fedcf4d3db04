package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Header keys attached to every record published by graphsink.
const (
	KeyRecordKey   = "graphsink_key"
	KeyDatabase    = "graphsink_database"
	KeyContentType = "content_type"
	// KeyPartition pins a record to a partition on transports that have them.
	KeyPartition = "graphsink_partition"
)

// Content types understood by the record decoder.
const (
	ContentTypeJSON     = "application/json"
	ContentTypeProtobuf = "application/x-protobuf"
)

// Metadata represents the headers carried alongside a record.
type Metadata map[string]string

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	cloned := make(Metadata, len(m))
	for k, v := range m {
		cloned[k] = v
	}
	return cloned
}

// With returns a cloned metadata map containing the provided key/value pair.
func (m Metadata) With(key, value string) Metadata {
	cloned := m.Clone()
	cloned[key] = value
	return cloned
}

// WithAll returns a cloned metadata map containing the supplied entries.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := m.Clone()
	for k, v := range entries {
		cloned[k] = v
	}
	return cloned
}

// ContentType returns the declared payload encoding, defaulting to JSON.
func (m Metadata) ContentType() string {
	if ct := m[KeyContentType]; ct != "" {
		return ct
	}
	return ContentTypeJSON
}

// FromMessage copies the headers of a Watermill message.
func FromMessage(msg *message.Message) Metadata {
	if msg == nil {
		return Metadata{}
	}
	return Metadata(msg.Metadata).Clone()
}

// Apply writes the metadata onto a Watermill message.
func (m Metadata) Apply(msg *message.Message) {
	for k, v := range m {
		msg.Metadata.Set(k, v)
	}
}
