package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gaurav-cyamsys/beaver-readout/internal/config"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/spf13/cobra"
)

// settingsCmd represents the settings command
var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Show and change settings",
	Long:  `Commands for reading and writing settings.json in the config directory.`,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show every setting",
	Run:   runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Change one setting",
	Long: `Change one setting and save it.

Examples:
  beaver-readout settings set mock_mode false
  beaver-readout settings set cloud.driver rest
  beaver-readout settings set cloud.url https://project.supabase.co`,
	Args: cobra.ExactArgs(2),
	Run:  runSettingsSet,
}

// storedSettings reads settings.json again so flag overrides of this
// invocation are never written back.
func storedSettings() *config.Settings {
	settings, err := config.LoadSettings(globals.SettingsPath)
	if err != nil {
		globals.Logger.Warn("Failed to reload settings, using defaults", "error", err)
		return config.DefaultSettings()
	}
	return settings
}

func runSettingsShow(cmd *cobra.Command, args []string) {
	settings := storedSettings()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "KEY\tVALUE")
	fmt.Fprintln(w, "---\t-----")

	for _, key := range config.SettingKeys() {
		value, err := settings.Get(key)
		if err != nil {
			fail("Failed to read setting", err)
		}
		if key == "cloud.api_key" && value != "" {
			value = "********"
		}
		fmt.Fprintf(w, "%s\t%s\n", key, value)
	}

	fmt.Fprintf(w, "\n%s\t%s\n", "file", globals.SettingsPath)
}

func runSettingsSet(cmd *cobra.Command, args []string) {
	key, value := args[0], args[1]

	settings := storedSettings()
	if err := settings.Set(key, value); err != nil {
		fail("Invalid setting", err)
	}

	if err := settings.SaveTo(globals.SettingsPath); err != nil {
		fail("Failed to save settings", err)
	}

	globals.Logger.Debug("Setting saved", "key", key, "path", globals.SettingsPath)
	fmt.Printf("Set %s.\n", key)
}

func init() {
	rootCmd.AddCommand(settingsCmd)

	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}
