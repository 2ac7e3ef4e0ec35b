package globals

import (
	"log/slog"
	"os"
	"sync"

	"github.com/gaurav-cyamsys/beaver-readout/internal/config"
	"github.com/gaurav-cyamsys/beaver-readout/internal/database"
	"gorm.io/gorm"
)

var (
	// Global instances
	Settings     *config.Settings
	SettingsPath string
	DBPath       string
	Logger       *slog.Logger
	DB           *gorm.DB

	// Ensure initialization happens only once
	initOnce sync.Once
	initErr  error
)

// Initialize sets up global instances exactly once. An empty dbPath uses
// config.DBPath().
func Initialize(verbose bool, dbPath string) error {
	initOnce.Do(func() {
		// Setup logger first
		setupLogger(verbose)

		Logger.Debug("Initializing global instances")

		// Load or create settings
		SettingsPath = config.DefaultSettingsPath()
		newSettings, settingsLoaded := config.LoadOrInitializeSettings(SettingsPath)
		Settings = settingsLoaded
		if newSettings {
			Logger.Debug("Created new settings file", "path", SettingsPath)
			if err := Settings.SaveTo(SettingsPath); err != nil {
				Logger.Error("Failed to save new settings", "error", err)
			}
		} else {
			Logger.Debug("Loaded existing settings", "path", SettingsPath)
		}

		// Initialize database
		if dbPath == "" {
			dbPath = config.DBPath()
		}
		DBPath = dbPath
		DB, initErr = database.Open(dbPath)
		if initErr != nil {
			Logger.Error("Failed to open database", "path", dbPath, "error", initErr)
			return
		}
		Logger.Debug("Database initialized", "path", dbPath)

		Logger.Debug("Global initialization completed", "verbose", verbose)
	})

	return initErr
}

// Close releases the database.
func Close() {
	if DB != nil {
		if err := database.Close(DB); err != nil && Logger != nil {
			Logger.Warn("Failed to close database", "error", err)
		}
	}
}

// setupLogger configures the global logger
func setupLogger(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	Logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	// Set as default logger
	slog.SetDefault(Logger)
}

// MustBeInitialized panics if globals haven't been initialized
func MustBeInitialized() {
	if Settings == nil || Logger == nil || DB == nil {
		panic("globals not initialized - call globals.Initialize() first")
	}
}
