package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix         = "ACCFIX"
	DefaultConfigFile = "accfix.yaml"
)

// Config holds every setting the accfix commands read. Values come, in
// rising precedence, from defaults, the YAML config file, ACCFIX_*
// environment variables (including .env.local) and command-line flags.
type Config struct {
	BackendURL string `mapstructure:"backend_url" validate:"required,url"`
	Username   string `mapstructure:"username" validate:"required"`
	Password   string `mapstructure:"password" validate:"required"`
	Commit     bool   `mapstructure:"commit"`

	MSSA     bool   `mapstructure:"mssa"`
	BRBL     bool   `mapstructure:"brbl"`
	MSSACode string `mapstructure:"mssa_code" validate:"required_if=MSSA true"`
	BRBLCode string `mapstructure:"brbl_code" validate:"required_if=BRBL true"`

	LogLevel          string        `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" validate:"gte=0"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
	PageMode          string        `mapstructure:"page_mode" validate:"oneof=paged bulk"`
	BatchSize         int           `mapstructure:"batch_size" validate:"min=1,max=250"`
	SweepDelay        time.Duration `mapstructure:"sweep_delay" validate:"gte=0"`

	DatabaseDSN string `mapstructure:"database_dsn"`
	MetricsFile string `mapstructure:"metrics_file"`
}

var keys = []string{
	"backend_url", "username", "password", "commit",
	"mssa", "brbl", "mssa_code", "brbl_code",
	"log_level", "requests_per_second", "timeout", "page_mode", "batch_size", "sweep_delay",
	"database_dsn", "metrics_file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("commit", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("requests_per_second", 0)
	v.SetDefault("timeout", 60*time.Second)
	v.SetDefault("page_mode", "paged")
	v.SetDefault("batch_size", 50)
	v.SetDefault("sweep_delay", time.Duration(0))
}

// LoadEnvFiles loads .env.local without overriding variables already set
// in the environment.
func LoadEnvFiles() {
	_ = godotenv.Load(".env.local")
}

// Load builds a Config from the config file, the environment and any flags
// in fs. An explicit configFile must exist; the default accfix.yaml is
// optional. Flags are matched to keys by replacing '-' with '_'.
func Load(configFile string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows about.
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	switch {
	case configFile != "":
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configFile, err)
		}
	default:
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			v.SetConfigFile(DefaultConfigFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config %s: %w", DefaultConfigFile, err)
			}
		}
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := flagKey(f.Name)
			if key == "" {
				return
			}
			if err := v.BindPFlag(key, f); err != nil {
				bindErr = errors.Join(bindErr, err)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// flagKey maps a command-line flag to its config key. Flags that do not
// carry a setting map to "".
func flagKey(name string) string {
	switch name {
	case "config", "help", "quiet", "debug":
		return ""
	case "rps":
		return "requests_per_second"
	}
	return strings.ReplaceAll(name, "-", "_")
}
