// Package config holds the configuration of the attestation proxy.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "TDX_PROXY"

	Debug         = "debug"
	Host          = "host"
	Port          = "port"
	LogFile       = "log-file"
	LibraryPath   = "library-path"
	TSMReportPath = "tsm-report-path"
	GuestDevice   = "guest-device"
)

const (
	DefaultHost    = "0.0.0.0"
	DefaultPort    = 8081
	DefaultLogFile = "/var/log/tdx-proxy.log"
)

// ProxyConfig configures the attestation proxy.
type ProxyConfig struct {
	Debug         bool   `json:"debug" yaml:"debug" mapstructure:"debug"`
	Host          string `json:"host" yaml:"host" mapstructure:"host"`
	Port          int    `json:"port" yaml:"port" mapstructure:"port"`
	LogFile       string `json:"logFile" yaml:"logFile" mapstructure:"log_file"`
	LibraryPath   string `json:"libraryPath" yaml:"libraryPath" mapstructure:"library_path"`
	TSMReportPath string `json:"tsmReportPath" yaml:"tsmReportPath" mapstructure:"tsm_report_path"`
	GuestDevice   string `json:"guestDevice" yaml:"guestDevice" mapstructure:"guest_device"`
}

// NewProxyConfig returns a config with the defaults of a Linux TDX guest.
func NewProxyConfig() *ProxyConfig {
	paths := tdx.DefaultPaths()
	return &ProxyConfig{
		Host:          DefaultHost,
		Port:          DefaultPort,
		LogFile:       DefaultLogFile,
		LibraryPath:   paths.Library,
		TSMReportPath: paths.TSMReport,
		GuestDevice:   paths.GuestDevice,
	}
}

// NewProxyConfigFromViper reads the config from flags, environment and config file bound to v.
func NewProxyConfigFromViper(v *viper.Viper) *ProxyConfig {
	return &ProxyConfig{
		Debug:         v.GetBool(KebabToSnakeCase(Debug)),
		Host:          v.GetString(KebabToSnakeCase(Host)),
		Port:          v.GetInt(KebabToSnakeCase(Port)),
		LogFile:       v.GetString(KebabToSnakeCase(LogFile)),
		LibraryPath:   v.GetString(KebabToSnakeCase(LibraryPath)),
		TSMReportPath: v.GetString(KebabToSnakeCase(TSMReportPath)),
		GuestDevice:   v.GetString(KebabToSnakeCase(GuestDevice)),
	}
}

// Validate checks the config for values the proxy cannot start with.
func (c *ProxyConfig) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d is out of range", c.Port))
	}
	if c.LibraryPath == "" {
		errs = append(errs, errors.New("library path is required"))
	}
	if c.TSMReportPath == "" {
		errs = append(errs, errors.New("tsm report path is required"))
	}
	if c.GuestDevice == "" {
		errs = append(errs, errors.New("guest device path is required"))
	}
	return errors.Join(errs...)
}

// Addr returns the listen address.
func (c *ProxyConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Paths returns the quote source locations.
func (c *ProxyConfig) Paths() tdx.Paths {
	return tdx.Paths{
		Library:     c.LibraryPath,
		TSMReport:   c.TSMReportPath,
		GuestDevice: c.GuestDevice,
	}
}

// KebabToSnakeCase converts a flag name to its config key.
func KebabToSnakeCase(s string) string {
	return strings.ReplaceAll(s, "-", "_")
}
