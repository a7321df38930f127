package app

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fleetsink-io/fleetsink/pkg/log"
)

const (
	configFlagName = "config"

	// envPrefix turns fleet.timeout into the FSINK_FLEET_TIMEOUT
	// environment variable.
	envPrefix = "FSINK"
)

// addConfigFlag registers --config and prepares the viper instance to
// merge, in order of precedence: command line flags, FSINK_ environment
// variables and the configuration file.
func (a *App) addConfigFlag(fs *pflag.FlagSet) {
	fs.StringVarP(&a.cfgFile, configFlagName, "c", "",
		"Read configuration from the specified file, supporting JSON, TOML, YAML and properties formats.")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	a.v.AutomaticEnv()
}

// loadConfig reads the configuration file and starts watching it, so a
// changed log level takes effect without a restart. A missing implicit
// file is fine; a missing explicit one is an error.
func (a *App) loadConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.AddConfigPath(filepath.Join("/etc", a.basename))
		a.v.SetConfigName(a.basename)
	}

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if a.cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read configuration file: %w", err)
	}

	a.v.OnConfigChange(func(in fsnotify.Event) {
		log.Info("Configuration file changed", "file", in.Name, "op", in.Op.String())
		if level := a.v.GetString("log.level"); level != "" {
			log.SetLevel(level)
		}
	})
	a.v.WatchConfig()
	return nil
}
