package config

import (
	"os"
	"path/filepath"
)

const (
	APP_DIR_NAME = "beaver-readout"

	CONFIG_DIR_ENV = "BEAVER_READOUT_CONFIG_DIR"
)

// DataDir holds the database. XDG_DATA_HOME wins, then ~/.local/share, then
// ~/.beaver-readout.
func DataDir() string {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

// ConfigDir holds settings.json. BEAVER_READOUT_CONFIG_DIR overrides the XDG
// lookup so a bench machine can keep several setups side by side.
func ConfigDir() string {
	if dir := os.Getenv(CONFIG_DIR_ENV); dir != "" {
		return dir
	}
	return appDir("XDG_CONFIG_HOME", ".config")
}

func appDir(xdgEnv string, homeBase ...string) string {
	if xdgHome := os.Getenv(xdgEnv); xdgHome != "" {
		return filepath.Join(xdgHome, APP_DIR_NAME)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// No home directory, fall back to the working directory
		if currentDir, err := os.Getwd(); err == nil {
			return filepath.Join(currentDir, "."+APP_DIR_NAME)
		}
		return "."
	}

	base := filepath.Join(append([]string{homeDir}, homeBase...)...)
	if _, err := os.Stat(base); err == nil {
		return filepath.Join(base, APP_DIR_NAME)
	}

	return filepath.Join(homeDir, "."+APP_DIR_NAME)
}
