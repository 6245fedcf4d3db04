package logging

import (
	"log/slog"
	"reflect"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/sirupsen/logrus"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// Field keys shared by the sink, the service and the CLI.
const (
	FieldDatabase  = "database"
	FieldTopic     = "topic"
	FieldTransport = "transport"
	FieldGroupID   = "group_id"
)

// ServiceLogger is the logging contract shared by the sink, the consume
// bridge and the transports. It maps onto Watermill's logger so brokers and
// graphsink components write through the same sink.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// ForTopic scopes log to one topic of one database. Empty values are left out.
func ForTopic(log ServiceLogger, db, topic string) ServiceLogger {
	fields := LogFields{}
	if db != "" {
		fields[FieldDatabase] = db
	}
	if topic != "" {
		fields[FieldTopic] = topic
	}
	return log.With(fields)
}

// EntryLoggerAdapter captures what NewEntryServiceLogger needs from an
// entry-style logger such as *logrus.Entry.
type EntryLoggerAdapter[T any] interface {
	Error(args ...any)
	Info(args ...any)
	Debug(args ...any)
	Trace(args ...any)
	WithError(err error) T
	WithField(key string, value any) T
}

// NewSlogServiceLogger wraps a slog.Logger. Watermill's trace level maps
// onto slog debug.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("graphsink: slog logger cannot be nil")
	}
	levels := map[slog.Level]slog.Level{
		watermill.LevelTrace: slog.LevelDebug,
		slog.LevelDebug:      slog.LevelDebug,
		slog.LevelInfo:       slog.LevelInfo,
		slog.LevelWarn:       slog.LevelWarn,
		slog.LevelError:      slog.LevelError,
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, levels))
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("graphsink: watermill logger cannot be nil")
	}
	return watermillLogger{inner: logger}
}

// NewEntryServiceLogger wraps an entry-style logger.
func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	if isNil(entry) {
		panic("graphsink: entry logger cannot be nil")
	}
	return &entryLogger[T]{entry: entry}
}

// NewLogrusServiceLogger wraps a logrus logger.
func NewLogrusServiceLogger(log *logrus.Logger) ServiceLogger {
	if log == nil {
		panic("graphsink: logrus logger cannot be nil")
	}
	return NewEntryServiceLogger(logrus.NewEntry(log))
}

// NewNopServiceLogger discards everything.
func NewNopServiceLogger() ServiceLogger {
	return watermillLogger{inner: watermill.NopLogger{}}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Func:
		return rv.IsNil()
	}
	return false
}

type watermillLogger struct {
	inner watermill.LoggerAdapter
}

func (w watermillLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return w
	}
	return watermillLogger{inner: w.inner.With(watermill.LogFields(fields))}
}

func (w watermillLogger) Debug(msg string, fields LogFields) { w.inner.Debug(msg, wmFields(fields)) }
func (w watermillLogger) Info(msg string, fields LogFields)  { w.inner.Info(msg, wmFields(fields)) }
func (w watermillLogger) Trace(msg string, fields LogFields) { w.inner.Trace(msg, wmFields(fields)) }

func (w watermillLogger) Error(msg string, err error, fields LogFields) {
	w.inner.Error(msg, err, wmFields(fields))
}

type entryLogger[T EntryLoggerAdapter[T]] struct {
	entry T
}

func (e *entryLogger[T]) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return e
	}
	return &entryLogger[T]{entry: e.withFields(fields)}
}

func (e *entryLogger[T]) Debug(msg string, fields LogFields) { e.withFields(fields).Debug(msg) }
func (e *entryLogger[T]) Info(msg string, fields LogFields)  { e.withFields(fields).Info(msg) }
func (e *entryLogger[T]) Trace(msg string, fields LogFields) { e.withFields(fields).Trace(msg) }

func (e *entryLogger[T]) Error(msg string, err error, fields LogFields) {
	entry := e.withFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Error(msg)
}

func (e *entryLogger[T]) withFields(fields LogFields) T {
	entry := e.entry
	for k, v := range fields {
		entry = entry.WithField(k, v)
	}
	return entry
}

// NewWatermillAdapter exposes a ServiceLogger to Watermill publishers and
// subscribers.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("graphsink: ServiceLogger cannot be nil")
	}
	if w, ok := log.(watermillLogger); ok {
		return w.inner
	}
	return serviceAdapter{base: log}
}

type serviceAdapter struct {
	base ServiceLogger
}

func (s serviceAdapter) Error(msg string, err error, fields watermill.LogFields) {
	s.base.Error(msg, err, LogFields(fields))
}

func (s serviceAdapter) Info(msg string, fields watermill.LogFields) {
	s.base.Info(msg, LogFields(fields))
}

func (s serviceAdapter) Debug(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, LogFields(fields))
}

func (s serviceAdapter) Trace(msg string, fields watermill.LogFields) {
	s.base.Trace(msg, LogFields(fields))
}

func (s serviceAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return serviceAdapter{base: s.base.With(LogFields(fields))}
}

func wmFields(fields LogFields) watermill.LogFields {
	if len(fields) == 0 {
		return nil
	}
	return watermill.LogFields(fields)
}
