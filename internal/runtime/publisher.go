package runtime

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/drblury/graphsink/internal/runtime/broker"
	errspkg "github.com/drblury/graphsink/internal/runtime/errors"
	"github.com/drblury/graphsink/internal/runtime/events"
	loggingpkg "github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/source"
)

// Producer publishes records on behalf of a database.
type Producer interface {
	Publish(ctx context.Context, db, topic string, payload any, opts broker.PublishOptions) (*broker.Receipt, error)
	PublishAsync(ctx context.Context, db, topic string, payload any, opts broker.PublishOptions) <-chan broker.Result
}

// Publish sends payload to topic through the router of db and waits for the
// broker to accept it. An empty topic is skipped and returns a nil receipt.
func (s *Service) Publish(ctx context.Context, db, topic string, payload any, opts broker.PublishOptions) (*broker.Receipt, error) {
	if s == nil {
		return nil, errors.New("event service is nil")
	}
	if topic == "" {
		s.Logger.Info("Topic is empty, skipping publish", loggingpkg.LogFields{loggingpkg.FieldDatabase: db})
		return nil, nil
	}
	router, err := s.router(db)
	if err != nil {
		return nil, err
	}
	return router.Send(ctx, topic, payload, opts)
}

// PublishAsync is Publish without waiting. The returned channel receives
// exactly one result; for an empty topic it carries neither receipt nor
// error.
func (s *Service) PublishAsync(ctx context.Context, db, topic string, payload any, opts broker.PublishOptions) <-chan broker.Result {
	if topic == "" {
		s.Logger.Info("Topic is empty, skipping publish", loggingpkg.LogFields{loggingpkg.FieldDatabase: db})
		return completed(broker.Result{})
	}
	router, err := s.router(db)
	if err != nil {
		return completed(broker.Result{Err: err})
	}
	return router.SendAsync(ctx, topic, payload, opts)
}

// PublishTransactionEvent sends evt to every topic whose source route of db
// matches it, each copy trimmed to the properties of its route. Topics are
// published in name order and all copies share the key
// "<txId>-<txEventId>". An event matching no route returns no receipts.
func (s *Service) PublishTransactionEvent(ctx context.Context, db string, evt events.TransactionEvent) ([]*broker.Receipt, error) {
	routes, ok := s.SourceRoutes(db)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrRouterNotRegistered, db)
	}
	router, err := s.router(db)
	if err != nil {
		return nil, err
	}

	perTopic := routes.Route(evt)
	names := make([]string, 0, len(perTopic))
	for topic := range perTopic {
		names = append(names, topic)
	}
	sort.Strings(names)

	key := fmt.Sprintf("%d-%d", evt.Meta.TxID, evt.Meta.TxEventID)
	receipts := make([]*broker.Receipt, 0, len(names))
	for _, topic := range names {
		receipt, err := router.Send(ctx, topic, perTopic[topic], broker.PublishOptions{Key: key, Format: broker.FormatJSON})
		if err != nil {
			return receipts, fmt.Errorf("topic %s: %w", topic, err)
		}
		receipts = append(receipts, receipt)
	}
	if len(names) == 0 {
		s.Logger.Trace("No source route matches the event", loggingpkg.LogFields{
			loggingpkg.FieldDatabase: db,
			"entity":                 evt.Payload.Type,
		})
	}
	return receipts, nil
}

// SourceRoutes returns the source routing table of db.
func (s *Service) SourceRoutes(db string) (source.Routes, bool) {
	d, ok := s.databases.Get(db)
	if !ok {
		return source.Routes{}, false
	}
	routes := d.routes.Load()
	if routes == nil {
		return source.Routes{}, false
	}
	return *routes, true
}

func (s *Service) router(db string) (*broker.Router, error) {
	if s.isClosed() {
		return nil, errspkg.ErrServiceClosed
	}
	router, ok := s.routers.Get(db)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errspkg.ErrRouterNotRegistered, db)
	}
	return router, nil
}

func completed(res broker.Result) <-chan broker.Result {
	out := make(chan broker.Result, 1)
	out <- res
	return out
}

var _ Producer = (*Service)(nil)
