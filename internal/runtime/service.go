package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drblury/graphsink/internal/runtime/broker"
	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/events"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/registry"
	"github.com/drblury/graphsink/internal/runtime/routing"
	"github.com/drblury/graphsink/internal/runtime/sink"
	"github.com/drblury/graphsink/internal/runtime/source"
	"github.com/drblury/graphsink/internal/runtime/strategy"
	"github.com/drblury/graphsink/internal/runtime/topics"
	transportpkg "github.com/drblury/graphsink/internal/runtime/transport"
)

const (
	metricsNamespace    = "graphsink"
	httpShutdownTimeout = 5 * time.Second
)

// ServiceDependencies holds the collaborators that the Service uses.
// Writer is required; leave the other fields nil to use the defaults.
type ServiceDependencies struct {
	// Writer executes the statements produced by the sink.
	Writer sink.Writer
	// TransportFactory builds the broker connection of every database and
	// consumer. Defaults to the modular transport registry.
	TransportFactory transportpkg.Factory
	// MetricsRegisterer receives the sink and transport collectors. Defaults
	// to prometheus.DefaultRegisterer.
	MetricsRegisterer prometheus.Registerer
}

// database is everything the service holds for one active database.
type database struct {
	name      string
	isDefault bool
	conf      *configpkg.Config
	holder    *routing.Holder
	writer    *sink.Service
	transport transportpkg.Transport
	routes    atomic.Pointer[source.Routes]
}

// Service routes events between the broker and the graph store for every
// active database.
type Service struct {
	Logger loggingpkg.ServiceLogger

	conf   *configpkg.Config
	confMu sync.RWMutex

	factory    transportpkg.Factory
	writer     sink.Writer
	registerer prometheus.Registerer
	metrics    *sink.Metrics
	wmLogger   watermill.LoggerAdapter

	databases *registry.Registry[*database]
	routers   *registry.Registry[*broker.Router]
	sinks     *registry.Registry[*EventSink]
	lifecycle sync.Mutex

	ctx       context.Context
	cancel    context.CancelFunc
	consumers sync.WaitGroup
	closed    bool
	closeMu   sync.RWMutex

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	running       []*http.Server
}

// NewService constructs a Service for the supplied configuration. Activate
// databases on the returned Service before publishing or sinking records.
func NewService(conf *configpkg.Config, log loggingpkg.ServiceLogger, ctx context.Context, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.NewConfigurationError("config is required")
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if deps.Writer == nil {
		return nil, errspkg.ErrWriterRequired
	}
	if log == nil {
		log = loggingpkg.NewNopServiceLogger()
	}

	log.Info("Creating graphsink service",
		loggingpkg.LogFields{
			"pubsub_system": conf.PubSubSystem,
			"config":        conf,
		})

	factory := deps.TransportFactory
	if factory == nil {
		factory = transportpkg.DefaultFactory()
	}
	registerer := deps.MetricsRegisterer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	s := &Service{
		Logger:     log,
		conf:       conf.Clone(),
		factory:    factory,
		writer:     deps.Writer,
		registerer: registerer,
		metrics:    sink.NewMetrics(registerer),
		wmLogger:   loggingpkg.NewWatermillAdapter(log),
		databases:  registry.New[*database](),
		routers:    registry.New[*broker.Router](),
		sinks:      registry.New[*EventSink](),
	}
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	if conf.MetricsEnabled {
		if err := s.metrics.Register(); err != nil {
			return nil, fmt.Errorf("register sink metrics: %w", err)
		}
	}
	return s, nil
}

// Config returns a copy of the configuration currently in effect.
func (s *Service) Config() *configpkg.Config {
	s.confMu.RLock()
	defer s.confMu.RUnlock()
	return s.conf.Clone()
}

// Metrics returns the write statistics shared by every database.
func (s *Service) Metrics() *sink.Metrics {
	return s.metrics
}

// Start serves the metrics and admin endpoints until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	if s.isClosed() {
		return errspkg.ErrServiceClosed
	}
	s.registerMetricsEndpoint()
	s.StartAdminServer()
	s.startHTTPServers()

	<-ctx.Done()
	return s.shutdownHTTPServers()
}

// ActivateDatabase builds the strategy storage, the event router and, when
// sinking is enabled and topics are configured, the event sink of db. The
// default database also sees the topics configured without a database
// suffix. Activating an active database is a no-op.
func (s *Service) ActivateDatabase(ctx context.Context, db string, isDefault bool) error {
	if db == "" {
		return errspkg.ErrDatabaseRequired
	}
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.isClosed() {
		return errspkg.ErrServiceClosed
	}
	if _, ok := s.databases.Get(db); ok {
		return nil
	}

	conf := s.Config().ForDatabase(db)
	storage, err := BuildStorage(conf, db, isDefault)
	if err != nil {
		return err
	}
	log := s.Logger.With(loggingpkg.LogFields{loggingpkg.FieldDatabase: db})
	routes, err := buildRoutes(conf, db, isDefault, log)
	if err != nil {
		return err
	}

	t, err := s.buildTransport(ctx, conf)
	if err != nil {
		return err
	}

	router, err := broker.NewRouter(db, t.Publisher, broker.WithRouterLogger(log))
	if err != nil {
		return errors.Join(err, t.Close())
	}

	holder := routing.NewHolder(storage)
	writer, err := sink.NewService(holder, s.writer, sink.WithMetrics(s.metrics), sink.WithLogger(log))
	if err != nil {
		return errors.Join(err, t.Close())
	}

	d := &database{
		name:      db,
		isDefault: isDefault,
		conf:      conf,
		holder:    holder,
		writer:    writer,
		transport: t,
	}
	d.routes.Store(&routes)
	s.databases.Register(db, d)
	s.routers.Register(db, router)

	log.Info("Database activated", loggingpkg.LogFields{
		"default":       isDefault,
		"topics":        storage.Topics().Names(),
		"source_topics": routes.Topics(),
	})

	if err := s.syncSink(d, nil); err != nil {
		return errors.Join(err, s.deactivate(db))
	}
	return nil
}

// DeactivateDatabase stops the sink and closes the router and broker
// connection of db.
func (s *Service) DeactivateDatabase(db string) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.deactivate(db)
}

func (s *Service) deactivate(db string) error {
	var errs []error
	if es, ok := s.sinks.Remove(db); ok {
		errs = append(errs, es.Stop())
	}
	if router, ok := s.routers.Remove(db); ok {
		errs = append(errs, router.Close())
	}
	if d, ok := s.databases.Remove(db); ok {
		if d.transport.Subscriber != nil {
			errs = append(errs, d.transport.Subscriber.Close())
		}
		s.Logger.Info("Database deactivated", loggingpkg.LogFields{loggingpkg.FieldDatabase: db})
	}
	return errors.Join(errs...)
}

// Reload applies new properties to every active database. Topic bindings
// and strategy settings are swapped in place, and each sink is restarted
// when its topic set changed. Broker settings take effect the next time a
// database is activated. A database whose new topic configuration is
// invalid has its sink stopped; its error is reported with the others.
func (s *Service) Reload(properties map[string]string) error {
	conf, err := configpkg.FromProperties(properties)
	if err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if s.isClosed() {
		return errspkg.ErrServiceClosed
	}

	s.confMu.Lock()
	s.conf = conf
	s.confMu.Unlock()

	var errs []error
	for _, name := range s.databases.Names() {
		d, ok := s.databases.Get(name)
		if !ok {
			continue
		}
		dbConf := conf.ForDatabase(d.name)
		log := s.Logger.With(loggingpkg.LogFields{loggingpkg.FieldDatabase: d.name})
		storage, err := BuildStorage(dbConf, d.name, d.isDefault)
		var routes source.Routes
		if err == nil {
			routes, err = buildRoutes(dbConf, d.name, d.isDefault, log)
		}
		if err != nil {
			log.Error("Reload rejected", err, nil)
			if es, ok := s.sinks.Remove(d.name); ok {
				errs = append(errs, es.Stop())
			}
			errs = append(errs, fmt.Errorf("database %s: %w", d.name, err))
			continue
		}

		previous := d.holder.Swap(storage)
		d.routes.Store(&routes)
		d.conf = dbConf
		if err := s.syncSink(d, previous); err != nil {
			errs = append(errs, fmt.Errorf("database %s: %w", d.name, err))
		}
	}
	return errors.Join(errs...)
}

// syncSink starts, restarts or stops the sink of d so it follows the
// current storage. previous is the storage that was replaced, if any.
func (s *Service) syncSink(d *database, previous *routing.Storage) error {
	current := d.holder.Load()
	wanted := d.conf.SinkEnabled && current != nil && !current.Topics().IsEmpty()

	existing, running := s.sinks.Get(d.name)
	if running {
		if wanted && previous != nil && sameTopics(previous.Topics(), current.Topics()) {
			return nil
		}
		s.sinks.Remove(d.name)
		if err := existing.Stop(); err != nil {
			s.Logger.Error("Failed to stop event sink", err, loggingpkg.LogFields{loggingpkg.FieldDatabase: d.name})
		}
	}
	if !wanted {
		return nil
	}

	es, err := s.newEventSink(d)
	if err != nil {
		return err
	}
	if err := es.Start(s.ctx); err != nil {
		return err
	}
	s.sinks.Register(d.name, es)
	return nil
}

// SinkStatus reports whether the sink of db is running.
func (s *Service) SinkStatus(db string) Status {
	es, ok := s.sinks.Get(db)
	if !ok {
		return StatusUnknown
	}
	return es.Status()
}

// Topics returns the topics db currently ingests.
func (s *Service) Topics(db string) (topics.Topics, bool) {
	d, ok := s.databases.Get(db)
	if !ok {
		return topics.Topics{}, false
	}
	storage := d.holder.Load()
	if storage == nil {
		return topics.Empty(), true
	}
	return storage.Topics(), true
}

// Databases returns the names of the active databases.
func (s *Service) Databases() []string {
	return s.databases.Names()
}

// WriteForTopic applies the strategy bound to topic in db to batch and
// writes the result to the graph store.
func (s *Service) WriteForTopic(ctx context.Context, db, topic string, batch []events.SinkEntity) error {
	d, ok := s.databases.Get(db)
	if !ok {
		return fmt.Errorf("%w: %s", errspkg.ErrSinkNotRegistered, db)
	}
	return d.writer.WriteForTopic(ctx, topic, batch)
}

// Close stops every sink and consumer, closes every router and broker
// connection and shuts the HTTP servers down.
func (s *Service) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.cancel()
	var errs []error
	s.sinks.Drain(func(_ string, es *EventSink) {
		errs = append(errs, es.Stop())
	})
	s.routers.Drain(func(_ string, r *broker.Router) {
		errs = append(errs, r.Close())
	})
	s.databases.Drain(func(_ string, d *database) {
		if d.transport.Subscriber != nil {
			errs = append(errs, d.transport.Subscriber.Close())
		}
	})
	s.consumers.Wait()
	errs = append(errs, s.shutdownHTTPServers())
	return errors.Join(errs...)
}

func (s *Service) isClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}

// buildTransport builds a broker connection for conf and decorates it with
// Prometheus metrics when they are enabled.
func (s *Service) buildTransport(ctx context.Context, conf *configpkg.Config) (transportpkg.Transport, error) {
	t, err := s.factory.Build(ctx, conf, s.wmLogger)
	if err != nil {
		return transportpkg.Transport{}, fmt.Errorf("build %s transport: %w", conf.PubSubSystem, err)
	}
	if !conf.MetricsEnabled {
		return t, nil
	}

	builder := metrics.NewPrometheusMetricsBuilder(s.registerer, metricsNamespace, conf.PubSubSystem)
	pub, err := builder.DecoratePublisher(t.Publisher)
	if err != nil {
		return transportpkg.Transport{}, errors.Join(fmt.Errorf("decorate publisher: %w", err), t.Close())
	}
	sub, err := builder.DecorateSubscriber(t.Subscriber)
	if err != nil {
		return transportpkg.Transport{}, errors.Join(fmt.Errorf("decorate subscriber: %w", err), t.Close())
	}
	t.Publisher = pub
	t.Subscriber = sub
	return t, nil
}

// BuildStorage classifies the topics of db from the configuration and
// binds each to its strategy.
func BuildStorage(conf *configpkg.Config, db string, isDefault bool) (*routing.Storage, error) {
	t, err := topics.ForDatabase(conf.Properties, conf.TopicNamespace, db, isDefault, nil)
	if err != nil {
		return nil, err
	}
	return routing.NewStorage(t, routingOptions(conf))
}

// buildRoutes reads the source routes of db from conf.
func buildRoutes(conf *configpkg.Config, db string, isDefault bool, log loggingpkg.ServiceLogger) (source.Routes, error) {
	routes, ignored, err := source.FromProperties(conf.Properties, db, isDefault)
	if err != nil {
		return source.Routes{}, err
	}
	for _, raw := range ignored {
		log.Info("Unknown relationship key strategy, using DEFAULT", loggingpkg.LogFields{"key_strategy": raw})
	}
	return routes, nil
}

func routingOptions(conf *configpkg.Config) routing.Options {
	return routing.Options{
		SourceID: strategy.SourceIDConfig{
			LabelName: conf.SourceIDLabelName,
			IDName:    conf.SourceIDIDName,
		},
		KeyStrategy: strategy.ParseKeyStrategy(conf.SchemaKeyStrategy),
	}
}

func sameTopics(a, b topics.Topics) bool {
	x, y := a.Names(), b.Names()
	if len(x) != len(y) {
		return false
	}
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := s.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		s.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers() {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		addr := fmt.Sprintf(":%d", port)
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		s.running = append(s.running, srv)
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": addr})
		go func(srv *http.Server) {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}(srv)
	}
}

func (s *Service) shutdownHTTPServers() error {
	s.httpServersMu.Lock()
	servers := s.running
	s.running = nil
	s.httpServersMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancel()
	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
		}
	}
	return errors.Join(errs...)
}
