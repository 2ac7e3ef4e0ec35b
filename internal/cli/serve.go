package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/gaurav-cyamsys/beaver-readout/internal/api"
	"github.com/gaurav-cyamsys/beaver-readout/internal/dbus"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	serveListen string
	serveDBus   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the readout as a background service",
	Long: `Keep the readout connected and expose it over HTTP, a websocket stream
and optionally the D-Bus session bus. Connectivity is probed continuously and
pending readings are uploaded as soon as the network comes back.

Examples:
  beaver-readout serve
  beaver-readout serve --listen 0.0.0.0:8787 --dbus`,
	Run: runServe,
}

func runServe(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}

	listen := serveListen
	if listen == "" {
		listen = globals.Settings.APIListen
	}

	err = serveReadout(cmd.Context(), rt, listen, serveDBus)
	rt.close()
	if err != nil {
		fail("Service stopped", err)
	}
}

// serveReadout runs the API, the connectivity probe and optionally the D-Bus
// service until ctx is done or one of them fails. The session is unmounted
// before it returns.
func serveReadout(ctx context.Context, rt *runtime, listen string, withDBus bool) error {
	group, ctx := errgroup.WithContext(ctx)

	rt.session.Mount(ctx)
	defer rt.session.Unmount()

	if rt.probe != nil {
		rt.probe.Start(ctx)
		defer rt.probe.Stop()
	}

	if withDBus {
		service, err := dbus.Connect(rt.session, globals.Logger)
		if err != nil {
			return fmt.Errorf("failed to connect to D-Bus: %w", err)
		}
		group.Go(func() error {
			<-ctx.Done()
			return service.Close()
		})
	}

	server := api.NewServer(rt.session, globals.Logger)
	group.Go(func() error {
		return server.ListenAndServe(ctx, listen)
	})

	fmt.Printf("Serving on http://%s\n", listen)

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (default from settings)")
	serveCmd.Flags().BoolVar(&serveDBus, "dbus", false, "Export the readout on the D-Bus session bus")
}
