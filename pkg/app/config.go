package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/autopeer-io/broute/pkg/log"
)

const configFlagName = "config"

// EnvPrefix is prepended to every environment variable the options read,
// e.g. BROUTE_SERIAL_PORT for --serial.port.
const EnvPrefix = "BROUTE"

var cfgFile string

// addConfigFlag adds --config and arranges for the file, if any, to be read
// before the command runs.
func addConfigFlag(basename string, fs *pflag.FlagSet) {
	fs.StringVarP(&cfgFile, configFlagName, "c", cfgFile, "Read configuration from specified `FILE`, "+
		"support JSON, TOML, YAML, HCL, or Java properties formats.")

	cobra.OnInitialize(func() {
		if err := loadConfig(viper.GetViper(), cfgFile, basename); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to read configuration file(%s): %v\n", cfgFile, err)
			os.Exit(1)
		}
	})
}

// loadConfig wires environment lookups into v and reads the configuration
// file. Without an explicit file it searches the working directory and
// $HOME/.broute for <basename>.yaml; a missing file is not an error then.
func loadConfig(v *viper.Viper, file, basename string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".broute"))
		}
		v.SetConfigName(basename)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file == "" && errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Warn("Configuration file changed, restart to apply", "path", e.Name, "op", e.Op.String())
	})
	v.WatchConfig()

	return nil
}
