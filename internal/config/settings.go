package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

const (
	TRANSPORT_SERIAL  = "serial"
	TRANSPORT_NETWORK = "network"

	CLOUD_DRIVER_REST     = "rest"
	CLOUD_DRIVER_POSTGRES = "postgres"
	CLOUD_DRIVER_NONE     = "none"

	DEFAULT_BAUD_RATE          = 115200
	DEFAULT_CLOUD_TABLE        = "readings"
	DEFAULT_CONNECTIVITY_PROBE = "1.1.1.1:443"
	DEFAULT_API_LISTEN         = "127.0.0.1:8787"
)

type CloudSettings struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
	DSN    string `json:"dsn"`
	Table  string `json:"table"`
}

type Settings struct {
	MockMode          bool          `json:"mock_mode"`
	Transport         string        `json:"transport"`
	SerialPort        string        `json:"serial_port"`
	BaudRate          int           `json:"baud_rate"`
	NetworkAddress    string        `json:"network_address"`
	Cloud             CloudSettings `json:"cloud"`
	ConnectivityProbe string        `json:"connectivity_probe"`
	APIListen         string        `json:"api_listen"`
}

func DefaultSettings() *Settings {
	return &Settings{
		MockMode:  true, // No hardware needed out of the box
		Transport: TRANSPORT_SERIAL,
		BaudRate:  DEFAULT_BAUD_RATE,
		Cloud: CloudSettings{
			Driver: CLOUD_DRIVER_NONE,
			Table:  DEFAULT_CLOUD_TABLE,
		},
		ConnectivityProbe: DEFAULT_CONNECTIVITY_PROBE,
		APIListen:         DEFAULT_API_LISTEN,
	}
}

func DefaultSettingsPath() string {
	return filepath.Join(ConfigDir(), "settings.json")
}

func LoadOrInitializeSettingsFromDefaultLocation() (bool, *Settings) {
	return LoadOrInitializeSettings(DefaultSettingsPath())
}

func LoadOrInitializeSettings(path string) (bool, *Settings) {
	if settings, err := LoadSettings(path); err == nil {
		return false, settings
	}

	return true, DefaultSettings()
}

// LoadSettings reads the settings file. Fields missing from the file keep
// their defaults.
func LoadSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	settings := DefaultSettings()
	if err := json.Unmarshal(data, settings); err != nil {
		return nil, err
	}

	return settings, nil
}

func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

func (s *Settings) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

type settingField struct {
	get func(s *Settings) string
	set func(s *Settings, value string) error
}

func stringField(field func(s *Settings) *string) settingField {
	return settingField{
		get: func(s *Settings) string { return *field(s) },
		set: func(s *Settings, value string) error {
			*field(s) = value
			return nil
		},
	}
}

func oneOfField(field func(s *Settings) *string, allowed ...string) settingField {
	return settingField{
		get: func(s *Settings) string { return *field(s) },
		set: func(s *Settings, value string) error {
			for _, candidate := range allowed {
				if value == candidate {
					*field(s) = value
					return nil
				}
			}
			return fmt.Errorf("must be one of %v", allowed)
		},
	}
}

var settingFields = map[string]settingField{
	"mock_mode": {
		get: func(s *Settings) string { return strconv.FormatBool(s.MockMode) },
		set: func(s *Settings, value string) error {
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return err
			}
			s.MockMode = enabled
			return nil
		},
	},
	"baud_rate": {
		get: func(s *Settings) string { return strconv.Itoa(s.BaudRate) },
		set: func(s *Settings, value string) error {
			rate, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			if rate <= 0 {
				return fmt.Errorf("must be positive")
			}
			s.BaudRate = rate
			return nil
		},
	},
	"transport":          oneOfField(func(s *Settings) *string { return &s.Transport }, TRANSPORT_SERIAL, TRANSPORT_NETWORK),
	"serial_port":        stringField(func(s *Settings) *string { return &s.SerialPort }),
	"network_address":    stringField(func(s *Settings) *string { return &s.NetworkAddress }),
	"cloud.driver":       oneOfField(func(s *Settings) *string { return &s.Cloud.Driver }, CLOUD_DRIVER_REST, CLOUD_DRIVER_POSTGRES, CLOUD_DRIVER_NONE),
	"cloud.url":          stringField(func(s *Settings) *string { return &s.Cloud.URL }),
	"cloud.api_key":      stringField(func(s *Settings) *string { return &s.Cloud.APIKey }),
	"cloud.dsn":          stringField(func(s *Settings) *string { return &s.Cloud.DSN }),
	"cloud.table":        stringField(func(s *Settings) *string { return &s.Cloud.Table }),
	"connectivity_probe": stringField(func(s *Settings) *string { return &s.ConnectivityProbe }),
	"api_listen":         stringField(func(s *Settings) *string { return &s.APIListen }),
}

// SettingKeys lists the dotted keys accepted by Get and Set.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingFields))
	for key := range settingFields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Settings) Get(key string) (string, error) {
	field, ok := settingFields[key]
	if !ok {
		return "", fmt.Errorf("unknown setting %q", key)
	}
	return field.get(s), nil
}

func (s *Settings) Set(key, value string) error {
	field, ok := settingFields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := field.set(s, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}
