// Package conf handles the configuration of the WildWatch client, including
// reading the YAML config file and registering default values.
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/wildwatch/wildwatch-go/internal/errors"
)

// MainSettings contains top level application settings
type MainSettings struct {
	Name    string `yaml:"name" mapstructure:"name"`       // name of this client instance
	Debug   bool   `yaml:"debug" mapstructure:"debug"`     // enable debug logging
	LogFile string `yaml:"logfile" mapstructure:"logfile"` // rotating log file; stdout when empty
}

// BackendSettings describe the remote detection backend
type BackendSettings struct {
	BaseURL        string        `yaml:"baseurl" mapstructure:"baseurl"`               // REST API base URL
	RequestTimeout time.Duration `yaml:"requesttimeout" mapstructure:"requesttimeout"` // per-request ceiling
	UserAgent      string        `yaml:"useragent" mapstructure:"useragent"`
}

// PollSettings control the background data refresh
type PollSettings struct {
	Interval time.Duration `yaml:"interval" mapstructure:"interval"` // device/detection refresh interval
}

// LocationSettings control geolocation acquisition
type LocationSettings struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // "ip" or "static"
	Latitude  float64       `yaml:"latitude" mapstructure:"latitude"`
	Longitude float64       `yaml:"longitude" mapstructure:"longitude"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// StorageSettings control durable client-side state
type StorageSettings struct {
	Path string `yaml:"path" mapstructure:"path"` // sqlite file for local state
}

// Settings is the root configuration struct
type Settings struct {
	Main     MainSettings     `yaml:"main" mapstructure:"main"`
	Backend  BackendSettings  `yaml:"backend" mapstructure:"backend"`
	Poll     PollSettings     `yaml:"poll" mapstructure:"poll"`
	Location LocationSettings `yaml:"location" mapstructure:"location"`
	Storage  StorageSettings  `yaml:"storage" mapstructure:"storage"`
}

var settingsMutex sync.Mutex

// Load reads the configuration file and environment variables into a Settings struct.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	return settings, nil
}

// initViper initializes viper with default values and reads the configuration file.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// Config file not found, defaults apply
			return nil
		}
		return fmt.Errorf("fatal error reading config file: %w", err)
	}

	return nil
}

// setDefaultConfig registers default values for every configuration parameter.
func setDefaultConfig() {
	viper.SetDefault("main.name", "WildWatch")
	viper.SetDefault("main.debug", false)
	viper.SetDefault("main.logfile", "")

	viper.SetDefault("backend.baseurl", "http://localhost:8000/api")
	viper.SetDefault("backend.requesttimeout", 15*time.Second)
	viper.SetDefault("backend.useragent", "WildWatch-Go")

	viper.SetDefault("poll.interval", 30*time.Second)

	viper.SetDefault("location.provider", "ip")
	viper.SetDefault("location.latitude", 0.0)
	viper.SetDefault("location.longitude", 0.0)
	viper.SetDefault("location.timeout", 10*time.Second)

	viper.SetDefault("storage.path", defaultStoragePath())
}

// ValidateSettings checks that loaded settings are usable.
func ValidateSettings(settings *Settings) error {
	if settings.Backend.BaseURL == "" {
		return errors.Newf("backend.baseurl must not be empty").
			Component("conf").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if settings.Poll.Interval <= 0 {
		return errors.Newf("poll.interval must be positive: %v", settings.Poll.Interval).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("interval", settings.Poll.Interval.String()).
			Build()
	}
	if settings.Location.Provider != "ip" && settings.Location.Provider != "static" {
		return errors.Newf("invalid location provider: %s", settings.Location.Provider).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("provider", settings.Location.Provider).
			Build()
	}
	return nil
}

// GetDefaultConfigPaths returns the search paths for the config file,
// preferring the user config directory and falling back to the working directory.
func GetDefaultConfigPaths() ([]string, error) {
	paths := []string{}
	if configDir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(configDir, "wildwatch"))
	}
	paths = append(paths, ".")
	return paths, nil
}

// defaultStoragePath places the local state database next to the config file
// when a user config directory exists, otherwise in the working directory.
func defaultStoragePath() string {
	if configDir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(configDir, "wildwatch", "state.db")
	}
	return "state.db"
}
