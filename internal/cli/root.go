package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	dbPath     string
	mockMode   bool
	serialPort string
	offline    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "beaver-readout",
	Short: "Vibrating-wire sensor readout",
	Long: `A readout front-end for vibrating-wire strain and load sensors.

It calibrates sensors, streams live frequency, temperature and battery samples
from a serial device, a Wi-Fi bridge or a built-in generator, keeps every
reading locally and syncs pending readings to the cloud readings table.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := globals.Initialize(verbose, dbPath); err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		applyFlagOverrides(cmd)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		globals.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// The context is cancelled on SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return rootCmd.ExecuteContext(ctx)
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose (debug) logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the local database (default from BEAVER_READOUT_DB_PATH or the data dir)")
	rootCmd.PersistentFlags().BoolVar(&mockMode, "mock", true, "Use the synthetic data generator instead of hardware")
	rootCmd.PersistentFlags().StringVar(&serialPort, "port", "", "Serial port of the readout (default: first detected)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Treat the cloud as unreachable")
}

// applyFlagOverrides lets explicitly passed flags win over settings.json for
// this invocation only.
func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("mock") {
		globals.Settings.MockMode = mockMode
	}
	if flags.Changed("port") {
		globals.Settings.SerialPort = serialPort
	}
}

func fail(message string, err error) {
	globals.Logger.Error(message, "error", err)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", message, err)
	globals.Close()
	os.Exit(1)
}
