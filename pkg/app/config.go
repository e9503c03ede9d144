package app

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fleetlink-io/fleetlink/pkg/log"
)

const configFlagName = "config"

var configFile string

// addConfigFlag registers --config and enables FLEETLINK_* environment
// overrides for every bound option.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&configFile, configFlagName, "c", "",
		fmt.Sprintf("Path to the %s configuration file.", basename))

	viper.AutomaticEnv()
	viper.SetEnvPrefix("FLEETLINK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

// loadConfig reads the config file (if any) into the option struct and
// arms the fsnotify watcher. A missing default config file is not an
// error; an explicit --config that cannot be read is.
func loadConfig(basename string, opts CliOptions) error {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/fleetlink")
		viper.SetConfigName(basename)
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && configFile == "" {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	log.Info("Loaded configuration file", "file", filepath.Clean(viper.ConfigFileUsed()))

	viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, restart to apply", "file", e.Name)
	})
	viper.WatchConfig()

	if opts != nil {
		if err := viper.Unmarshal(opts); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	return nil
}
