package utils

import (
	"time"

	"github.com/homegrid/gateway-client/pkg/file"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID prefix
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate (optional)
	} `yaml:"mqtt"`

	Backend struct {
		BaseURL string        `yaml:"base_url"` // REST API base URL
		Timeout time.Duration `yaml:"timeout"`  // Per-request HTTP timeout
		Retries uint64        `yaml:"retries"`  // Max retries for transient read failures
	} `yaml:"backend"`

	Premises struct {
		InfoFile string `yaml:"info_file"` // Path to the persisted premises identity file
	} `yaml:"premises"`

	Identity struct {
		AllowSubstringMatch bool `yaml:"allow_substring_match"` // Enable the substring tier of delta resolution
	} `yaml:"identity"`

	Liveness struct {
		PushGraceWindow    time.Duration `yaml:"push_grace_window"`   // Push recency window treated as live evidence
		StalenessThreshold time.Duration `yaml:"staleness_threshold"` // Snapshot age beyond which data is flagged stale
		MinFirmware        string        `yaml:"min_firmware"`        // Minimum supported gateway firmware version (optional)
	} `yaml:"liveness"`

	Cache struct {
		File   string        `yaml:"file"`    // Path to the persisted telemetry cache
		MaxAge time.Duration `yaml:"max_age"` // Maximum snapshot age eligible for restore
	} `yaml:"cache"`

	Services struct {
		Telemetry struct {
			Enabled bool `yaml:"enabled"` // Enable/disable the push telemetry service
			QOS     int  `yaml:"qos"`     // MQTT QoS level for push subscriptions
		} `yaml:"telemetry"`

		Polling struct {
			Enabled          bool          `yaml:"enabled"`           // Enable/disable the polling fallback
			Interval         time.Duration `yaml:"interval"`          // Tick interval between poll checks
			SilenceThreshold time.Duration `yaml:"silence_threshold"` // Push silence that triggers a poll
		} `yaml:"polling"`

		Enrollment struct {
			Enabled bool          `yaml:"enabled"` // Enable/disable the enrollment service
			QOS     int           `yaml:"qos"`     // MQTT QoS level for enrollment status messages
			Timeout time.Duration `yaml:"timeout"` // Local timeout for a learning session
		} `yaml:"enrollment"`
	} `yaml:"services"`
}

// LoadConfig loads the YAML configuration from the specified file.
// It returns a pointer to the Config struct and an error if loading fails.
func LoadConfig(filename string, fileClient file.FileOperations) (*Config, error) {
	var config Config
	err := fileClient.ReadYamlFile(filename, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}
