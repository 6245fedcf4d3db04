package cli

import (
	"context"
	"errors"
	"io"

	"github.com/sirupsen/logrus"

	runtimepkg "github.com/drblury/graphsink/internal/runtime"
	configpkg "github.com/drblury/graphsink/internal/runtime/config"
	"github.com/drblury/graphsink/internal/runtime/logging"
	"github.com/drblury/graphsink/internal/runtime/sink"
)

// errNoGraphStore is returned by the writer of commands that never sink.
var errNoGraphStore = errors.New("graphsink: no graph store attached")

// newLogger builds the logrus logger used by the long running commands.
// Logs go to w so command output stays clean.
func newLogger(opts *RootOptions, w io.Writer) logging.ServiceLogger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.InfoLevel)
	if opts.Verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if opts.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logging.NewLogrusServiceLogger(log)
}

// newClientService builds a service for publishing or consuming only. The
// sink is forced off.
func newClientService(ctx context.Context, opts *RootOptions, conf *configpkg.Config, logOut io.Writer) (*runtimepkg.Service, error) {
	conf = conf.Clone()
	conf.SinkEnabled = false
	conf.AdminEnabled = false
	conf.MetricsEnabled = false
	return runtimepkg.NewService(conf, newLogger(opts, logOut), ctx, runtimepkg.ServiceDependencies{
		Writer: sink.WriterFunc(func(context.Context, string, []any) error {
			return errNoGraphStore
		}),
	})
}
