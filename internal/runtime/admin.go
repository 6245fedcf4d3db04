package runtime

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/graphsink/internal/runtime/jsoncodec"
	"github.com/drblury/graphsink/internal/runtime/topics"
)

// SinkInfo describes the sink of one database on the admin API.
type SinkInfo struct {
	Database string   `json:"database"`
	Status   Status   `json:"status"`
	Topics   []string `json:"topics"`
}

func (s *Service) registerMetricsEndpoint() {
	conf := s.Config()
	if !conf.MetricsEnabled || conf.MetricsPort <= 0 {
		return
	}
	handler := promhttp.Handler()
	if gatherer, ok := s.registerer.(prometheus.Gatherer); ok {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	s.RegisterHTTPHandler(conf.MetricsPort, "/metrics", handler)
}

func (s *Service) StartAdminServer() {
	conf := s.Config()
	if !conf.AdminEnabled {
		return
	}

	port := conf.AdminPort
	if port == 0 {
		port = 8081
	}

	s.RegisterHTTPHandler(port, "/api/sinks", s.adminHandler(s.handleGetSinks))
	s.RegisterHTTPHandler(port, "/api/topics", s.adminHandler(s.handleGetTopics))
	s.RegisterHTTPHandler(port, "/api/metrics", s.adminHandler(s.handleGetMetrics))
}

func (s *Service) adminHandler(fn func(r *http.Request) (any, int)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		// Set CORS headers based on configuration
		if origins := s.Config().AdminCORSAllowedOrigins; len(origins) > 0 {
			allowedOrigin := getAllowedCORSOrigin(origins, r.Header.Get("Origin"))
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		body, status := fn(r)
		w.WriteHeader(status)
		if err := jsoncodec.Encode(w, body); err != nil {
			s.Logger.Error("Failed to encode admin response", err, nil)
		}
	})
}

func (s *Service) handleGetSinks(*http.Request) (any, int) {
	names := s.Databases()
	out := make([]SinkInfo, 0, len(names))
	for _, db := range names {
		t, _ := s.Topics(db)
		out = append(out, SinkInfo{
			Database: db,
			Status:   s.SinkStatus(db),
			Topics:   t.Names(),
		})
	}
	return out, http.StatusOK
}

func (s *Service) handleGetTopics(r *http.Request) (any, int) {
	db := r.URL.Query().Get("db")
	if db == "" {
		return map[string]string{"error": "query parameter db is required"}, http.StatusBadRequest
	}
	t, ok := s.Topics(db)
	if !ok {
		return map[string]string{"error": "database " + db + " is not active"}, http.StatusNotFound
	}
	byType := make(map[topics.TopicType][]string)
	for typ, names := range t.ByType() {
		if len(names) > 0 {
			byType[typ] = names
		}
	}
	return byType, http.StatusOK
}

func (s *Service) handleGetMetrics(*http.Request) (any, int) {
	return s.metrics.GetSnapshot(), http.StatusOK
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns the appropriate
// Access-Control-Allow-Origin value.
func getAllowedCORSOrigin(allowed []string, requestOrigin string) string {
	for _, origin := range allowed {
		if origin == "*" {
			return "*"
		}
		if strings.EqualFold(origin, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
