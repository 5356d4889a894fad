package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the charger tools configuration
type Config struct {
	FirmwareDir            string        `mapstructure:"firmware_dir"`             // Directory containing signed firmware pairs
	DevicePort             int           `mapstructure:"device_port"`              // Default device HTTP port
	ProductMarker          string        `mapstructure:"product_marker"`           // Substring a device name must contain to verify
	ServiceType            string        `mapstructure:"service_type"`             // mDNS service type the chargers advertise
	VerifyTimeout          time.Duration `mapstructure:"verify_timeout"`           // Timeout for device-info requests
	UploadTimeout          time.Duration `mapstructure:"upload_timeout"`           // Timeout for firmware upload requests
	DiscoveryWindow        time.Duration `mapstructure:"discovery_window"`         // How long to listen for mDNS advertisements
	FirmwareProcessingWait time.Duration `mapstructure:"firmware_processing_wait"` // Pause after an upload while the device writes flash
	RebootPropagationWait  time.Duration `mapstructure:"reboot_propagation_wait"`  // Pause after the main-board reboot command
	RearRebootWait         time.Duration `mapstructure:"rear_reboot_wait"`         // Pause after the rear-board reboot command
	DeviceCooldown         time.Duration `mapstructure:"device_cooldown"`          // Pause between devices in a batch
	SweepConcurrency       int           `mapstructure:"sweep_concurrency"`        // Concurrent probe cap for subnet sweeps
	TunnelCachePath        string        `mapstructure:"tunnel_cache_path"`        // Where persisted tunnel URLs live
	TunnelCacheTTL         time.Duration `mapstructure:"tunnel_cache_ttl"`         // How long a cached tunnel URL stays valid
	Verbose                bool          `mapstructure:"verbose"`                  // Enable verbose output
}

// DefaultConfig returns a configuration with default values.
//
// The four wait durations are empirically tuned against real hardware;
// the device exposes no readiness endpoint to poll instead. Relative
// magnitudes matter: processing is several times the propagation wait,
// and the rear reboot takes roughly three processing intervals.
func DefaultConfig() Config {
	return Config{
		FirmwareDir:            "firmware",
		DevicePort:             8000,
		ProductMarker:          "KLVR Charger",
		ServiceType:            "_klvr-charger._tcp",
		VerifyTimeout:          4 * time.Second,
		UploadTimeout:          90 * time.Second,
		DiscoveryWindow:        8 * time.Second,
		FirmwareProcessingWait: 20 * time.Second,
		RebootPropagationWait:  5 * time.Second,
		RearRebootWait:         60 * time.Second,
		DeviceCooldown:         5 * time.Second,
		SweepConcurrency:       32,
		TunnelCachePath:        "tunnels.json",
		TunnelCacheTTL:         12 * time.Hour,
	}
}

// Load reads configuration from an optional YAML file and CHARGERCTL_*
// environment variables, layered over the defaults. An empty filePath
// means defaults plus environment only; a missing explicit file is an
// error.
func Load(filePath string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CHARGERCTL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("firmware_dir", cfg.FirmwareDir)
	v.SetDefault("device_port", cfg.DevicePort)
	v.SetDefault("product_marker", cfg.ProductMarker)
	v.SetDefault("service_type", cfg.ServiceType)
	v.SetDefault("verify_timeout", cfg.VerifyTimeout)
	v.SetDefault("upload_timeout", cfg.UploadTimeout)
	v.SetDefault("discovery_window", cfg.DiscoveryWindow)
	v.SetDefault("firmware_processing_wait", cfg.FirmwareProcessingWait)
	v.SetDefault("reboot_propagation_wait", cfg.RebootPropagationWait)
	v.SetDefault("rear_reboot_wait", cfg.RearRebootWait)
	v.SetDefault("device_cooldown", cfg.DeviceCooldown)
	v.SetDefault("sweep_concurrency", cfg.SweepConcurrency)
	v.SetDefault("tunnel_cache_path", cfg.TunnelCachePath)
	v.SetDefault("tunnel_cache_ttl", cfg.TunnelCacheTTL)
	v.SetDefault("verbose", cfg.Verbose)

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	err := v.Unmarshal(&cfg)
	return cfg, err
}
