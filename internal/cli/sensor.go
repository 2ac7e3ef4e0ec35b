package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gaurav-cyamsys/beaver-readout/internal/calc"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/gaurav-cyamsys/beaver-readout/internal/models"
	"github.com/gaurav-cyamsys/beaver-readout/internal/session"
	"github.com/spf13/cobra"
)

var calibrationForm session.CalibrationForm

// sensorCmd represents the sensor command
var sensorCmd = &cobra.Command{
	Use:     "sensor",
	Aliases: []string{"s", "sensors"},
	Short:   "Manage calibrated sensors",
	Long:    `Commands for adding, listing and selecting calibrated vibrating-wire sensors.`,
}

var sensorListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List calibrated sensors",
	Run:     runSensorList,
}

var sensorAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Calibrate a sensor and select it",
	Long: `Save a sensor calibration. A sensor with the same ID is replaced.

Examples:
  beaver-readout sensor add --id VW-101 --gauge-factor 0.0312 --initial-reading 1180.4 --temperature 21.5`,
	Run: runSensorAdd,
}

var sensorSelectCmd = &cobra.Command{
	Use:   "select <sensor_id>",
	Short: "Select the sensor new readings are attributed to",
	Args:  cobra.ExactArgs(1),
	Run:   runSensorSelect,
}

var sensorShowCmd = &cobra.Command{
	Use:   "show [sensor_id]",
	Short: "Show a sensor (default: the selected one)",
	Args:  cobra.MaximumNArgs(1),
	Run:   runSensorShow,
}

func runSensorList(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	sensors := rt.session.Sensors()
	if len(sensors) == 0 {
		fmt.Println("No sensors calibrated.")
		return
	}

	current, _ := rt.session.CurrentSensor()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, " \tSENSOR ID\tGAUGE FACTOR\tINITIAL READING\tCALIBRATED\tREMARK")
	fmt.Fprintln(w, " \t---------\t------------\t---------------\t----------\t------")

	for _, sensor := range sensors {
		marker := " "
		if sensor.SensorID == current.SensorID {
			marker = "*"
		}

		calibrated := sensor.CalibrationTimestamp
		if at, err := sensor.CalibratedAt(); err == nil {
			calibrated = calc.FormatTimestamp(at)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			marker,
			sensor.SensorID,
			calc.FormatNumber(sensor.GaugeFactor, calc.GaugeFactorDecimals),
			calc.FormatNumber(sensor.InitialReading, calc.FrequencyDecimals),
			calibrated,
			sensor.Remark,
		)
	}

	globals.Logger.Debug("Sensor list completed", "count", len(sensors))
}

func runSensorAdd(cmd *cobra.Command, args []string) {
	sensor, err := calibrationForm.Sensor(time.Now())
	if err != nil {
		fail("Invalid calibration", err)
	}

	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	if err := rt.session.SaveSensor(cmd.Context(), sensor); err != nil {
		fail("Failed to save sensor", err)
	}

	fmt.Printf("Sensor %s saved and selected (initial digits %s).\n",
		sensor.SensorID, calc.FormatNumber(calibrationForm.DigitsPreview(), calc.DigitsDecimals))
}

func runSensorSelect(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	if err := rt.session.SetCurrentSensor(cmd.Context(), args[0]); err != nil {
		fail("Failed to select sensor", err)
	}

	fmt.Printf("Selected sensor %s.\n", args[0])
}

func runSensorShow(cmd *cobra.Command, args []string) {
	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	var sensor models.Sensor
	found := false
	if len(args) == 0 {
		sensor, found = rt.session.CurrentSensor()
	} else {
		for _, candidate := range rt.session.Sensors() {
			if candidate.SensorID == args[0] {
				sensor, found = candidate, true
				break
			}
		}
	}

	if !found && len(args) == 0 {
		fail("No sensor to show", session.ErrNoSensorSelected)
	}
	if !found {
		fail("No sensor to show", fmt.Errorf("%w: %s", session.ErrUnknownSensor, args[0]))
	}

	output, err := json.MarshalIndent(sensor, "", "  ")
	if err != nil {
		fail("Failed to format sensor", err)
	}

	fmt.Println(string(output))
}

func init() {
	rootCmd.AddCommand(sensorCmd)

	sensorCmd.AddCommand(sensorListCmd)
	sensorCmd.AddCommand(sensorAddCmd)
	sensorCmd.AddCommand(sensorSelectCmd)
	sensorCmd.AddCommand(sensorShowCmd)

	sensorAddCmd.Flags().StringVar(&calibrationForm.SensorID, "id", "", "Sensor ID (required)")
	sensorAddCmd.Flags().StringVar(&calibrationForm.GaugeFactor, "gauge-factor", "", "Gauge factor (required)")
	sensorAddCmd.Flags().StringVar(&calibrationForm.InitialReading, "initial-reading", "", "Initial frequency reading in Hz (required)")
	sensorAddCmd.Flags().StringVar(&calibrationForm.Temperature, "temperature", "", "Temperature at calibration (required)")
	sensorAddCmd.Flags().StringVar(&calibrationForm.Remark, "remark", "", "Free-form remark")
}
