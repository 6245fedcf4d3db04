package graphsink

import (
	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	"github.com/drblury/graphsink/internal/runtime/broker"
	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	eventspkg "github.com/drblury/graphsink/internal/runtime/events"
	idspkg "github.com/drblury/graphsink/internal/runtime/ids"
	"github.com/drblury/graphsink/internal/runtime/journal"
	jsoncodec "github.com/drblury/graphsink/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	metadatapkg "github.com/drblury/graphsink/internal/runtime/metadata"
	patternpkg "github.com/drblury/graphsink/internal/runtime/pattern"
	"github.com/drblury/graphsink/internal/runtime/sink"
	sourcepkg "github.com/drblury/graphsink/internal/runtime/source"
	"github.com/drblury/graphsink/internal/runtime/stream"
	topicspkg "github.com/drblury/graphsink/internal/runtime/topics"
	transportpkg "github.com/drblury/graphsink/internal/runtime/transport"
	newtransport "github.com/drblury/graphsink/transport"
)

type (
	Config               = configpkg.Config
	Service              = runtimepkg.Service
	ServiceDependencies  = runtimepkg.ServiceDependencies
	Producer             = runtimepkg.Producer
	Transport            = transportpkg.Transport
	TransportFactory     = transportpkg.Factory
	TransportFactoryFunc = transportpkg.FactoryFunc

	// Publishing and consuming
	PublishOptions  = broker.PublishOptions
	Format          = broker.Format
	Receipt         = broker.Receipt
	Result          = broker.Result
	Record          = broker.Record
	ConsumeOptions  = runtimepkg.ConsumeOptions
	PartitionOffset = runtimepkg.PartitionOffset
	RecordStream    = stream.Bridge[broker.Record]
	EndReason       = stream.EndReason

	// Sinking
	Writer          = sink.Writer
	WriterFunc      = sink.WriterFunc
	SinkStatus      = runtimepkg.Status
	SinkInfo        = runtimepkg.SinkInfo
	SinkEntity      = eventspkg.SinkEntity
	Metrics         = sink.Metrics
	MetricsSnapshot = sink.MetricsSnapshot
	TopicMetrics    = sink.TopicMetrics

	// Topic classification
	Topics              = topicspkg.Topics
	TopicType           = topicspkg.TopicType
	NodePattern         = patternpkg.NodeConfig
	RelationshipPattern = patternpkg.RelationshipConfig

	// Source routing
	SourceRoutes            = sourcepkg.Routes
	SourceNodeRoute         = sourcepkg.NodeRoute
	SourceRelationshipRoute = sourcepkg.RelationshipRoute
	SourceKeyStrategy       = sourcepkg.KeyStrategy
	TransactionEvent        = eventspkg.TransactionEvent

	// Statement journal
	Journal       = journal.Store
	JournalConfig = journal.Config
	JournalEntry  = journal.Entry

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigurationError        = errspkg.ConfigurationError
	TopicNotConfiguredError   = errspkg.TopicNotConfiguredError
	UnsupportedTopicTypeError = errspkg.UnsupportedTopicTypeError
	StoreWriteError           = errspkg.StoreWriteError

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	NewService           = runtimepkg.NewService
	ConfigFromProperties = configpkg.FromProperties
	DefaultConfig        = configpkg.Default
	ValidateConfig       = configpkg.ValidateConfig

	DefaultConsumeOptions = runtimepkg.DefaultConsumeOptions

	// Topic classification
	ClassifyTopics           = topicspkg.Classify
	TopicsForDatabase        = topicspkg.ForDatabase
	ValidateTopics           = topicspkg.Validate
	ParseNodePattern         = patternpkg.ParseNode
	ParseRelationshipPattern = patternpkg.ParseRelationship

	// Source routing
	SourceRoutesFromProperties = sourcepkg.FromProperties
	ParseSourceNodeRoutes      = sourcepkg.ParseNodeRoutes
	ParseSourceRelationships   = sourcepkg.ParseRelationshipRoutes
	ValidateTopicName          = sourcepkg.ValidateTopic

	NewJournal = journal.New

	// Modular transport registry.
	// Import individual transports via: _ "github.com/drblury/graphsink/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode

	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrDatabaseRequired    = errspkg.ErrDatabaseRequired
	ErrWriterRequired      = errspkg.ErrWriterRequired
	ErrRouterNotRegistered = errspkg.ErrRouterNotRegistered
	ErrSinkNotRegistered   = errspkg.ErrSinkNotRegistered
	ErrServiceClosed       = errspkg.ErrServiceClosed
	ErrInvalidPartition    = errspkg.ErrInvalidPartition
	ErrJournalClosed       = journal.ErrClosed

	NewSlogServiceLogger   = loggingpkg.NewSlogServiceLogger
	NewLogrusServiceLogger = loggingpkg.NewLogrusServiceLogger
	NewNopServiceLogger    = loggingpkg.NewNopServiceLogger

	NewMessageID = idspkg.NewMessageID
	NewRecordKey = idspkg.NewRecordKey
)

// Record value encodings.
const (
	FormatJSON  = broker.FormatJSON
	FormatProto = broker.FormatProto
)

// Sink states reported by Service.SinkStatus.
const (
	SinkRunning = runtimepkg.StatusRunning
	SinkStopped = runtimepkg.StatusStopped
	SinkUnknown = runtimepkg.StatusUnknown
)

// Topic types.
const (
	TopicCDCSourceID         = topicspkg.TypeCDCSourceID
	TopicCDCSchema           = topicspkg.TypeCDCSchema
	TopicCypher              = topicspkg.TypeCypher
	TopicCUD                 = topicspkg.TypeCUD
	TopicPatternNode         = topicspkg.TypePatternNode
	TopicPatternRelationship = topicspkg.TypePatternRelationship
)

// Sequence end reasons reported by RecordStream.EndReason.
const (
	EndNone      = stream.EndNone
	EndTombstone = stream.EndTombstone
	EndTimeout   = stream.EndTimeout
	EndCanceled  = stream.EndCanceled
)

// Metadata keys attached to published records.
const (
	MetadataKeyRecordKey   = metadatapkg.KeyRecordKey
	MetadataKeyDatabase    = metadatapkg.KeyDatabase
	MetadataKeyContentType = metadatapkg.KeyContentType
	MetadataKeyPartition   = metadatapkg.KeyPartition
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
