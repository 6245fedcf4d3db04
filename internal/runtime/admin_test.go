package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
)

func serveAdmin(svc *Service, fn func(*http.Request) (any, int), method, target, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	svc.adminHandler(fn).ServeHTTP(rec, req)
	return rec
}

func TestHandleGetSinksReturnsJSON(t *testing.T) {
	svc := newTestService(t, map[string]string{
		configpkg.KeySinkEnabled:            "true",
		configpkg.KeyAdminCORSOrigins:       "*",
		"streams.sink.topic.cypher.people":  peopleTemplate,
		"streams.sink.topic.cud.to.archive": "changes",
	}, &recordingWriter{})
	require.NoError(t, svc.ActivateDatabase(context.Background(), "neo4j", true))
	require.NoError(t, svc.ActivateDatabase(context.Background(), "archive", false))

	rec := serveAdmin(svc, svc.handleGetSinks, http.MethodGet, "/api/sinks", "https://ui.example")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/json" {
		t.Fatalf("expected application/json content type, got %s", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected Access-Control-Allow-Origin header to be '*', got %s", got)
	}

	var payload []SinkInfo
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, []SinkInfo{
		{Database: "archive", Status: StatusRunning, Topics: []string{"changes"}},
		{Database: "neo4j", Status: StatusRunning, Topics: []string{"people"}},
	}, payload)
}

func TestHandleGetTopics(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"streams.sink.topic.cypher.people": peopleTemplate,
		"streams.sink.topic.cud":           "a,b",
	}, &recordingWriter{})
	require.NoError(t, svc.ActivateDatabase(context.Background(), "neo4j", true))

	rec := serveAdmin(svc, svc.handleGetTopics, http.MethodGet, "/api/topics?db=neo4j", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var byType map[string][]string
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &byType))
	assert.Equal(t, map[string][]string{
		"CYPHER": {"people"},
		"CUD":    {"a", "b"},
	}, byType)

	rec = serveAdmin(svc, svc.handleGetTopics, http.MethodGet, "/api/topics", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serveAdmin(svc, svc.handleGetTopics, http.MethodGet, "/api/topics?db=missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleGetMetrics(t *testing.T) {
	svc := newTestService(t, map[string]string{
		"streams.sink.topic.cypher.people": peopleTemplate,
	}, &recordingWriter{})
	ctx := context.Background()
	require.NoError(t, svc.ActivateDatabase(ctx, "neo4j", true))
	require.NoError(t, svc.WriteForTopic(ctx, "neo4j", "people", nil))

	rec := serveAdmin(svc, svc.handleGetMetrics, http.MethodGet, "/api/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot map[string]any
	require.NoError(t, jsoncodec.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Contains(t, snapshot, "total_batches")
}

func TestAdminPreflightAndMethods(t *testing.T) {
	svc := newTestService(t, map[string]string{
		configpkg.KeyAdminCORSOrigins: "https://allowed.example",
	}, &recordingWriter{})

	rec := serveAdmin(svc, svc.handleGetSinks, http.MethodOptions, "/api/sinks", "https://allowed.example")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://allowed.example", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serveAdmin(svc, svc.handleGetSinks, http.MethodGet, "/api/sinks", "https://other.example")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serveAdmin(svc, svc.handleGetSinks, http.MethodPost, "/api/sinks", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetAllowedCORSOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    string
	}{
		{name: "wildcard", allowed: []string{"*"}, origin: "https://a.example", want: "*"},
		{name: "case insensitive match", allowed: []string{"https://A.example"}, origin: "https://a.example", want: "https://a.example"},
		{name: "no match", allowed: []string{"https://a.example"}, origin: "https://b.example", want: ""},
		{name: "none configured", origin: "https://a.example", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getAllowedCORSOrigin(tt.allowed, tt.origin))
		})
	}
}

func TestStartServesUntilCancelled(t *testing.T) {
	svc := newTestService(t, nil, &recordingWriter{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	cancel()
	assert.NoError(t, <-done)
}
