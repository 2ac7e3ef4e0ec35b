package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var resetConfirmed bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Erase sensors, readings and preferences",
	Long: `Factory reset. Every sensor, pending reading, history entry and preference
is erased and a new device ID is issued. Settings are kept.`,
	Run: runReset,
}

func runReset(cmd *cobra.Command, args []string) {
	if !resetConfirmed {
		fail("Refusing to reset", errors.New("pass --yes to confirm"))
	}

	rt, err := newRuntime(cmd.Context())
	if err != nil {
		fail("Failed to start", err)
	}
	defer rt.close()

	if err := rt.session.FactoryReset(cmd.Context()); err != nil {
		fail("Failed to reset", err)
	}

	fmt.Println("All data erased.")
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().BoolVar(&resetConfirmed, "yes", false, "Confirm the reset")
}
