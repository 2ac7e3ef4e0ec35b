package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/gaurav-cyamsys/beaver-readout/internal/transport"
	"github.com/spf13/cobra"
)

var discoverTimeout time.Duration

// deviceCmd represents the device command
var deviceCmd = &cobra.Command{
	Use:     "device",
	Aliases: []string{"d", "devices"},
	Short:   "Find readout hardware",
	Long:    `Commands for finding readouts attached over USB serial or reachable through a Wi-Fi bridge.`,
}

// devicePortsCmd represents the device ports command
var devicePortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	Long:  `List the serial ports a readout may be attached to. The configured port is marked with *.`,
	Run:   runDevicePorts,
}

// deviceDiscoverCmd represents the device discover command
var deviceDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover Wi-Fi bridges on the local network",
	Long: `Browse the local network over mDNS for readout bridges.

Examples:
  beaver-readout device discover --timeout 10s`,
	Run: runDeviceDiscover,
}

func runDevicePorts(cmd *cobra.Command, args []string) {
	ports, err := transport.ListSerialPorts()
	if err != nil {
		fail("Failed to list serial ports", err)
	}

	if len(ports) == 0 {
		fmt.Println("No serial ports found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, " \tPORT")
	fmt.Fprintln(w, " \t----")

	for _, port := range ports {
		marker := " "
		if port == globals.Settings.SerialPort {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\n", marker, port)
	}
}

func runDeviceDiscover(cmd *cobra.Command, args []string) {
	globals.Logger.Debug("Browsing for bridges", "timeout", discoverTimeout)

	bridges, err := transport.DiscoverBridges(cmd.Context(), discoverTimeout, globals.Logger)
	if err != nil {
		fail("Failed to discover bridges", err)
	}

	if len(bridges) == 0 {
		fmt.Println("No bridges found.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "INSTANCE\tHOSTNAME\tADDRESS")
	fmt.Fprintln(w, "--------\t--------\t-------")

	for _, bridge := range bridges {
		fmt.Fprintf(w, "%s\t%s\t%s\n", bridge.Instance, bridge.Hostname, bridge.Address)
	}
}

func init() {
	rootCmd.AddCommand(deviceCmd)

	deviceCmd.AddCommand(devicePortsCmd)
	deviceCmd.AddCommand(deviceDiscoverCmd)

	deviceDiscoverCmd.Flags().DurationVar(&discoverTimeout, "timeout", transport.BRIDGE_BROWSE_TIMEOUT, "How long to browse for bridges")
}
