package runtime

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	channeltransport "github.com/drblury/graphsink/transport/channel"
)

func newTestSlogLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(newTestSlogLogger())
}

type write struct {
	query  string
	events []any
}

type recordingWriter struct {
	mu     sync.Mutex
	writes []write
	err    error
}

func (w *recordingWriter) Write(_ context.Context, query string, events []any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, write{query: query, events: events})
	return nil
}

func (w *recordingWriter) Writes() []write {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]write(nil), w.writes...)
}

func channelProperties(extra map[string]string) map[string]string {
	props := map[string]string{
		configpkg.KeyPubSubSystem:     "channel",
		configpkg.KeySinkPollInterval: "20",
	}
	for k, v := range extra {
		props[k] = v
	}
	return props
}

// newTestService builds a service on the in-memory channel transport. The
// shared bus is reset once the service is closed.
func newTestService(t *testing.T, props map[string]string, writer *recordingWriter) *Service {
	t.Helper()
	t.Cleanup(func() { _ = channeltransport.Reset() })

	conf, err := configpkg.FromProperties(channelProperties(props))
	require.NoError(t, err)

	svc, err := NewService(conf, newTestLogger(), context.Background(), ServiceDependencies{
		Writer:            writer,
		MetricsRegisterer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}
