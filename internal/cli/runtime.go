package cli

import (
	"context"
	"fmt"

	"github.com/gaurav-cyamsys/beaver-readout/internal/cloud"
	"github.com/gaurav-cyamsys/beaver-readout/internal/config"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/gaurav-cyamsys/beaver-readout/internal/netwatch"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/gaurav-cyamsys/beaver-readout/internal/storage"
	"github.com/gaurav-cyamsys/beaver-readout/internal/transport"
)

// runtime bundles the services one command invocation works with.
type runtime struct {
	controller *transport.Controller
	store      *storage.Store
	history    *storage.History
	uploader   cloud.Uploader
	monitor    netwatch.Monitor
	probe      *netwatch.ProbeMonitor
	session    *session.Session
}

func realBackendFactory(settings *config.Settings) transport.BackendFactory {
	if settings.Transport == config.TRANSPORT_NETWORK {
		return func() transport.Backend {
			return transport.NewNetworkBackend(settings.NetworkAddress, globals.Logger)
		}
	}

	return func() transport.Backend {
		return transport.NewSerialBackend(settings.SerialPort, settings.BaudRate, globals.Logger)
	}
}

func mockBackendFactory() transport.BackendFactory {
	return func() transport.Backend {
		return transport.NewMockBackend(transport.DEFAULT_MOCK_INTERVAL, globals.Logger)
	}
}

// newMonitor picks the connectivity source. It probes once so the session
// starts with a real answer.
func newMonitor(ctx context.Context, settings *config.Settings) (netwatch.Monitor, *netwatch.ProbeMonitor) {
	if offline {
		return netwatch.NewStaticMonitor(false), nil
	}
	if settings.ConnectivityProbe == "" {
		return netwatch.NewStaticMonitor(true), nil
	}

	probe := netwatch.NewProbeMonitor(settings.ConnectivityProbe, netwatch.DEFAULT_PROBE_INTERVAL, globals.Logger)
	probe.Probe(ctx)
	return probe, probe
}

func newRuntime(ctx context.Context) (*runtime, error) {
	globals.MustBeInitialized()
	settings := globals.Settings

	uploader, err := cloud.New(settings.Cloud, globals.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure cloud upload: %w", err)
	}

	monitor, probe := newMonitor(ctx, settings)

	rt := &runtime{
		controller: transport.NewController(realBackendFactory(settings), mockBackendFactory(), settings.MockMode, globals.Logger),
		store:      storage.NewStore(storage.NewGormKV(globals.DB)),
		history:    storage.NewHistory(globals.DB),
		uploader:   uploader,
		monitor:    monitor,
		probe:      probe,
	}

	rt.session = session.New(session.Options{
		Transport: rt.controller,
		Store:     rt.store,
		History:   rt.history,
		Uploader:  rt.uploader,
		Monitor:   rt.monitor,
		Logger:    globals.Logger,
	})
	rt.session.LoadSensors(ctx)

	return rt, nil
}

func (rt *runtime) close() {
	if rt.probe != nil {
		rt.probe.Stop()
	}
	if closer, ok := rt.uploader.(interface{ Close() error }); ok {
		closer.Close()
	}
}
