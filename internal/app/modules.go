package app

import (
	"context"
	"fmt"
	"os"

	kitlog "github.com/go-kit/log"
	"github.com/grafana/dskit/modules"
	"github.com/grafana/dskit/server"
	"github.com/grafana/dskit/services"
	"github.com/pkg/errors"

	"github.com/satindergrewal/shuffleradio/internal/catalog"
	"github.com/satindergrewal/shuffleradio/internal/radio"
	"github.com/satindergrewal/shuffleradio/internal/stream"
)

const (
	Server  string = "server"
	Catalog string = "catalog"
	Radio   string = "radio"

	All string = "all"
)

func (a *App) setupModuleManager() error {
	mm := modules.NewManager(kitlog.NewLogfmtLogger(os.Stderr))
	mm.RegisterModule(Server, a.initServer, modules.UserInvisibleModule)

	mm.RegisterModule(Catalog, a.initCatalog)
	mm.RegisterModule(Radio, a.initRadio)

	mm.RegisterModule(All, nil)

	deps := map[string][]string{
		Catalog: {Server},
		Radio:   {Server, Catalog},

		All: {Radio},
	}

	for mod, targets := range deps {
		if err := mm.AddDependency(mod, targets...); err != nil {
			return err
		}
	}

	a.ModuleManager = mm

	return nil
}

func (a *App) initCatalog() (services.Service, error) {
	return catalog.NewWatcher(a.cfg.Catalog, a.Catalog, a.logger), nil
}

func (a *App) initRadio() (services.Service, error) {
	s, err := radio.New(a.cfg.Radio, a.Catalog, a.logger)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init "+Radio)
	}
	a.Station = s

	stream.RegisterRoutes(a.Server.HTTP, s, a.cfg.Radio.Encoder.Bitrate, a.logger)

	return s, nil
}

func (a *App) initServer() (services.Service, error) {
	a.cfg.Server.MetricsNamespace = metricsNamespace
	a.cfg.Server.ExcludeRequestInLog = true
	a.cfg.Server.RegisterInstrumentation = true
	a.cfg.Server.Log = kitlog.NewLogfmtLogger(os.Stderr)
	// Streams stay open indefinitely.
	a.cfg.Server.HTTPServerWriteTimeout = 0

	server, err := server.New(a.cfg.Server)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create server")
	}

	servicesToWaitFor := func() []services.Service {
		svs := []services.Service(nil)
		for m, s := range a.serviceMap {
			// Server should not wait for itself.
			if m != Server {
				svs = append(svs, s)
			}
		}

		return svs
	}

	a.Server = server

	serverDone := make(chan error, 1)

	runFn := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			serverDone <- server.Run()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil {
				return err
			}

			return fmt.Errorf("server stopped unexpectedly")
		}
	}

	stoppingFn := func(_ error) error {
		// wait until all modules are done, and then shutdown server.
		for _, s := range servicesToWaitFor() {
			_ = s.AwaitTerminated(context.Background())
		}

		// shutdown HTTP and gRPC servers (this also unblocks Run)
		server.Shutdown()

		// if not closed yet, wait until server stops.
		<-serverDone
		a.logger.Info("server stopped")
		return nil
	}

	return services.NewBasicService(nil, runFn, stoppingFn), nil
}
