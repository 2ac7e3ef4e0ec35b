package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/spf13/cobra"
)

var streamDuration time.Duration

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream live readings for the selected sensor",
	Long: `Connect to the readout, start fetching and print every reading until
interrupted or until --duration has passed.

Examples:
  beaver-readout stream --duration 30s
  beaver-readout --mock=false --port /dev/ttyUSB0 stream`,
	Run: runStream,
}

func runStream(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}

	err = streamReadings(cmd.Context(), rt, streamDuration, os.Stdout)
	rt.close()
	if err != nil {
		fail("Streaming failed", err)
	}
}

// streamReadings mounts the session, prints every reading to out until ctx is
// done or duration has passed, then stops the device and unmounts. The
// session is unmounted before any error is returned.
func streamReadings(ctx context.Context, rt *runtime, duration time.Duration, out io.Writer) error {
	rt.session.Mount(ctx)
	defer rt.session.Unmount()

	if !rt.session.IsOnline() {
		fmt.Fprintln(out, "Offline: readings are kept locally until the next upload.")
	}

	unit := rt.session.Preferences(ctx).TemperatureUnit
	unsubscribe := rt.session.Subscribe(func(event session.Event) {
		if event.Reading == nil {
			return
		}
		reading := event.Reading
		fmt.Fprintf(out, "%s  %s  freq %s Hz  temp %s  digits %s  load %s  battery %s%%\n",
			calc.FormatTimestamp(event.ReceivedAt),
			reading.SensorID,
			calc.FormatNumber(reading.Frequency, calc.FrequencyDecimals),
			calc.FormatTemperature(reading.Temperature, unit),
			calc.FormatNumber(reading.Digits, calc.DigitsDecimals),
			calc.FormatNumber(reading.FinalLoad, calc.LoadDecimals),
			calc.FormatNumber(reading.Battery, 0),
		)
	})
	defer unsubscribe()

	if err := rt.session.StartFetching(); err != nil {
		return err
	}

	var timeout <-chan time.Time
	if duration > 0 {
		timeout = time.After(duration)
	}

	select {
	case <-ctx.Done():
	case <-timeout:
	}

	return rt.session.StopFetching()
}

func init() {
	rootCmd.AddCommand(streamCmd)

	streamCmd.Flags().DurationVar(&streamDuration, "duration", 0, "Stop after this long (default: until interrupted)")
}
