package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emberchat/emberchat/globals"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the global configuration object which is filled via the
// configuration file, environment (EMBERCHAT_ prefix) and command-line flags.
type Config struct {
	LogLevel          string            `mapstructure:"log_level"`
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	RoomConfig        RoomConfig        `mapstructure:"room"`
	HubConfig         HubConfig         `mapstructure:"hub"`
}

// PersistenceConfig selects the storage backend. Type is one of "buntdb",
// "sqlite" or "postgres"; an empty type means no persistence (memory only).
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// RoomConfig tunes room lifetime handling. The defaults implement the fixed
// 24h TTL; overriding them is an operational knob, not a per-room setting.
type RoomConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	ReapGrace     time.Duration `mapstructure:"reap_grace"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// HubConfig tunes the fan-out hub.
type HubConfig struct {
	// SubscriberBuffer is the per-subscriber event buffer size. A subscriber
	// that falls this far behind is dropped.
	SubscriberBuffer int `mapstructure:"subscriber_buffer"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.StringP("log-level", "l", "", "log level (TRACE, DEBUG, INFO, WARN, ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	name = strings.Replace(name, "-", "_", -1)
	return pflag.NormalizedName(name)
}

// ReadConfiguration reads and parses the configuration located at configPath,
// which can either point to a single TOML file or to a directory, in which
// case all *.toml files in this directory are concatenated. It returns a
// Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	viper.SetDefault("room.ttl", globals.DefaultRoomTTL)
	viper.SetDefault("room.reap_grace", globals.DefaultReapGrace)
	viper.SetDefault("room.sweep_interval", globals.DefaultSweepInterval)
	viper.SetDefault("hub.subscriber_buffer", globals.DefaultSubscriberBuffer)
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("EMBERCHAT")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := os.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	globals.AppLogger.Debug("config", "cfg", cfg, "all", viper.AllSettings())
	return &cfg, nil
}
