package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/edgelesssys/go-tdx-attest/internal/config"
	"github.com/edgelesssys/go-tdx-attest/tdx"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:          "tdx-attestation-proxy",
	Short:        "Serve TDX quotes over HTTP",
	SilenceUsage: true,
	RunE:         runProxy,
}

var configFile string

func init() {
	cobra.OnInitialize(initConfigIfPresent)

	defaults := config.NewProxyConfig()
	paths := tdx.DefaultPaths()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path")
	flags.Bool(config.Debug, false, `"true" or "false"`)
	flags.String(config.Host, defaults.Host, "address to listen on")
	flags.Int(config.Port, defaults.Port, "port to listen on")
	flags.String(config.LogFile, defaults.LogFile, "file to append logs to, served at /logs")
	flags.String(config.LibraryPath, paths.Library, "path of libtdx_attest")
	flags.String(config.TSMReportPath, paths.TSMReport, "configfs-tsm report directory")
	flags.String(config.GuestDevice, paths.GuestDevice, "TDX guest device")

	rootCmd.AddCommand(statusCmd)

	initConfig()

	flags.VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig() {
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func initConfigIfPresent() {
	if configFile == "" {
		return
	}
	viper.SetConfigFile(configFile)
	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config file %s: %v\n", configFile, err)
		os.Exit(1)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
