package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/gaurav-cyamsys/beaver-readout/internal/database"
	"github.com/gaurav-cyamsys/beaver-readout/internal/globals"
	"github.com/gaurav-cyamsys/beaver-readout/internal/storage"
	"github.com/spf13/cobra"
)

var rollbackConfirmed bool

// databaseCmd represents the database command
var databaseCmd = &cobra.Command{
	Use:     "database",
	Aliases: []string{"db"},
	Short:   "Inspect the local database",
	Long:    `Commands for inspecting the local SQLite database and its schema.`,
}

var databaseInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the database location, size and schema version",
	Run:   runDatabaseInfo,
}

var databaseRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Revert the most recent schema migration",
	Long: `Revert the most recent schema migration. Data stored by the reverted
migration is lost. The next command re-applies it.`,
	Run: runDatabaseRollback,
}

func runDatabaseInfo(cmd *cobra.Command, args []string) {
	size := "-"
	if globals.DBPath != database.MemoryPath {
		bytes, err := database.GetSize(globals.DBPath)
		if err != nil {
			fail("Failed to read database size", err)
		}
		size = fmt.Sprintf("%d bytes", bytes)
	}

	recorded, err := storage.NewHistory(globals.DB).Count(cmd.Context(), "")
	if err != nil {
		fail("Failed to count readings", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "path\t%s\n", globals.DBPath)
	fmt.Fprintf(w, "size\t%s\n", size)
	fmt.Fprintf(w, "schema version\t%d\n", database.CurrentSchemaVersion(globals.DB))
	fmt.Fprintf(w, "recorded readings\t%d\n", recorded)
}

func runDatabaseRollback(cmd *cobra.Command, args []string) {
	if !rollbackConfirmed {
		fail("Refusing to roll back", errors.New("pass --yes to confirm"))
	}

	reverted, err := database.Rollback(globals.DB)
	if err != nil {
		fail("Failed to roll back", err)
	}

	if reverted == 0 {
		fmt.Println("No migrations applied.")
		return
	}

	globals.Logger.Info("Migration reverted", "version", reverted)
	fmt.Printf("Reverted migration %d.\n", reverted)
}

func init() {
	rootCmd.AddCommand(databaseCmd)

	databaseCmd.AddCommand(databaseInfoCmd)
	databaseCmd.AddCommand(databaseRollbackCmd)

	databaseRollbackCmd.Flags().BoolVar(&rollbackConfirmed, "yes", false, "Confirm the rollback")
}
