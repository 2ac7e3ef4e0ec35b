package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/gaurav-cyamsys/beaver-readout/internal/storage"
	"github.com/spf13/cobra"
)

var (
	historySensorID string
	historyLimit    int
)

// readingCmd represents the reading command
var readingCmd = &cobra.Command{
	Use:     "reading",
	Aliases: []string{"r", "readings"},
	Short:   "Inspect and upload readings",
	Long:    `Commands for inspecting readings waiting for upload, the local history, and uploading to the cloud.`,
}

var readingPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List readings waiting for upload",
	Run:   runReadingPending,
}

var readingHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded readings, newest first",
	Run:   runReadingHistory,
}

var readingUploadCmd = &cobra.Command{
	Use:   "upload",
	Short: "Upload every pending reading in one batch",
	Run:   runReadingUpload,
}

func printReadings(readings []models.Reading, unit string) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "TIMESTAMP\tSENSOR ID\tFREQUENCY\tTEMPERATURE\tDIGITS\tFINAL LOAD\tBATTERY")
	fmt.Fprintln(w, "---------\t---------\t---------\t-----------\t------\t----------\t-------")

	for _, reading := range readings {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s%%\n",
			reading.Timestamp,
			reading.SensorID,
			calc.FormatNumber(reading.Frequency, calc.FrequencyDecimals),
			calc.FormatTemperature(reading.Temperature, unit),
			calc.FormatNumber(reading.Digits, calc.DigitsDecimals),
			calc.FormatNumber(reading.FinalLoad, calc.LoadDecimals),
			calc.FormatNumber(reading.Battery, 0),
		)
	}
}

func runReadingPending(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	readings := rt.session.PendingReadings(cmd.Context())
	if len(readings) == 0 {
		fmt.Println("No readings pending upload.")
		return
	}

	printReadings(readings, rt.session.Preferences(cmd.Context()).TemperatureUnit)
	fmt.Printf("\n%d reading(s) pending upload.\n", len(readings))
}

func runReadingHistory(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	readings, err := rt.session.History(cmd.Context(), historySensorID, historyLimit)
	if err != nil {
		fail("Failed to load history", err)
	}
	if len(readings) == 0 {
		fmt.Println("No readings recorded.")
		return
	}

	printReadings(readings, rt.session.Preferences(cmd.Context()).TemperatureUnit)

	total, err := rt.history.Count(cmd.Context(), historySensorID)
	if err != nil {
		globals.Logger.Warn("Failed to count history", "error", err)
		total = int64(len(readings))
	}
	fmt.Printf("\nShowing %d of %d recorded reading(s).\n", len(readings), total)
	globals.Logger.Debug("Reading history completed", "count", len(readings), "total", total)
}

func runReadingUpload(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	uploaded, err := rt.session.UploadReadings(cmd.Context())
	switch {
	case errors.Is(err, session.ErrOffline):
		fail("Please connect to the network to upload data", err)
	case err != nil:
		fail("Failed to upload data", err)
	case uploaded == 0:
		fmt.Println("Nothing to upload.")
	default:
		fmt.Printf("Uploaded %d reading(s).\n", uploaded)
	}
}

func init() {
	rootCmd.AddCommand(readingCmd)

	readingCmd.AddCommand(readingPendingCmd)
	readingCmd.AddCommand(readingHistoryCmd)
	readingCmd.AddCommand(readingUploadCmd)

	readingHistoryCmd.Flags().StringVar(&historySensorID, "sensor", "", "Only show readings of this sensor")
	readingHistoryCmd.Flags().IntVar(&historyLimit, "limit", storage.DEFAULT_HISTORY_LIMIT, "Maximum number of readings")
}
