package errors

import (
	sterrors "errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrTopicRequired       = sterrors.New("graphsink: topic is required")
	ErrDatabaseRequired    = sterrors.New("graphsink: database name is required")
	ErrWriterRequired      = sterrors.New("graphsink: store writer is required")
	ErrResolverRequired    = sterrors.New("graphsink: strategy resolver is required")
	ErrPublisherRequired   = sterrors.New("graphsink: publisher is required")
	ErrSubscriberRequired  = sterrors.New("graphsink: subscriber is required")
	ErrRouterNotRegistered = sterrors.New("graphsink: no event router registered for database")
	ErrSinkNotRegistered   = sterrors.New("graphsink: no event sink registered for database")
	ErrClientNotStarted    = sterrors.New("graphsink: broker client has not been started")
	ErrServiceClosed       = sterrors.New("graphsink: service is closed")
	ErrInvalidPartition    = sterrors.New("graphsink: partition must not be negative")
)

// ConfigurationError reports an invalid sink or broker configuration. When
// the error is caused by topics declared under more than one type,
// CrossDefined maps each offending topic to every type it was declared for.
type ConfigurationError struct {
	Reason       string
	CrossDefined map[string][]string
}

func (e *ConfigurationError) Error() string {
	if len(e.CrossDefined) == 0 {
		return "graphsink: invalid configuration: " + e.Reason
	}

	topics := make([]string, 0, len(e.CrossDefined))
	for topic := range e.CrossDefined {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	parts := make([]string, 0, len(topics))
	for _, topic := range topics {
		parts = append(parts, fmt.Sprintf("%s (%s)", topic, strings.Join(e.CrossDefined[topic], ", ")))
	}
	reason := e.Reason
	if reason == "" {
		reason = "the following topics are cross defined"
	}
	return fmt.Sprintf("graphsink: invalid configuration: %s: [%s]", reason, strings.Join(parts, ", "))
}

// NewConfigurationError builds a ConfigurationError from a formatted reason.
func NewConfigurationError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// TopicNotConfiguredError is returned when a batch arrives for a topic that no
// strategy is registered for.
type TopicNotConfiguredError struct {
	Topic string
}

func (e *TopicNotConfiguredError) Error() string {
	return fmt.Sprintf("graphsink: topic %q is not configured for any ingestion strategy", e.Topic)
}

// UnsupportedTopicTypeError is returned when a strategy is requested for a
// topic type the engine does not know how to build.
type UnsupportedTopicTypeError struct {
	Type string
}

func (e *UnsupportedTopicTypeError) Error() string {
	return fmt.Sprintf("graphsink: unsupported topic type %q", e.Type)
}

// StoreWriteError wraps a failed graph store write together with the phase and
// statement that were being applied.
type StoreWriteError struct {
	Topic  string
	Phase  string
	Query  string
	Events int
	Err    error
}

func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("graphsink: write for topic %q failed during %s (%d events): %v", e.Topic, e.Phase, e.Events, e.Err)
}

func (e *StoreWriteError) Unwrap() error {
	return e.Err
}
