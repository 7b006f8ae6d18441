package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	configFileENV     = "CONFIG_FILE"
	defaultConfigFile = "/config/config.yaml"
	dotenvFile        = ".env"
)

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries"`
	Environment               string        `koanf:"environment"`
	Hostname                  string        `koanf:"-"`
	ImageDir                  string        `koanf:"image_dir"`
	ImageMaxBytes             int64         `koanf:"image_max_bytes"`
	ImageMaxDimension         int           `koanf:"image_max_dimension"`
	JWTSecret                 string        `koanf:"jwt_secret"`
	ServerHost                string        `koanf:"server_host"`
	ServerPort                int           `koanf:"server_port"`
}

// requiredKeys must be non-empty after every layer has been applied.
var requiredKeys = []string{"database_file_path", "jwt_secret"}

func defaults() *Config {
	return &Config{
		DatabaseBusyTimeout:       5 * time.Second,
		DatabaseConnectRetryCount: 5,
		DatabaseConnectRetryDelay: 2 * time.Second,
		DatabaseMaxRetries:        5,
		Environment:               "development",
		ImageDir:                  "./tmp/images",
		ImageMaxBytes:             5 << 20,
		ImageMaxDimension:         1200,
		ServerHost:                "0.0.0.0",
		ServerPort:                8000,
	}
}

// New loads the config in increasing priority: struct defaults, the YAML file
// at $CONFIG_FILE (optional), then environment variables named after the
// upper-cased keys (DATABASE_FILE_PATH, SERVER_PORT, ...). A .env file in the
// working directory is loaded into the environment first if present.
func New() (*Config, error) {
	if err := godotenv.Load(dotenvFile); err != nil && !os.IsNotExist(errors.Cause(err)) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	path := os.Getenv(configFileENV)
	if path == "" {
		path = defaultConfigFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", path)
		}
	}

	known := map[string]bool{}
	for _, key := range k.Keys() {
		known[key] = true
	}
	for _, key := range requiredKeys {
		known[key] = true
	}
	err := k.Load(env.Provider("", ".", func(s string) string {
		key := strings.ToLower(s)
		if !known[key] {
			return ""
		}
		return key
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load environment")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	var missing []string
	for _, key := range requiredKeys {
		if strings.TrimSpace(k.String(key)) == "" {
			missing = append(missing, strings.ToUpper(key)+" ("+key+")")
		}
	}
	if len(missing) > 0 {
		return nil, errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.Hostname = hostname

	return cfg, nil
}

// NewForTest returns a config suitable for tests without touching the
// environment or the filesystem.
func NewForTest() *Config {
	cfg := defaults()
	cfg.Environment = "test"
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	cfg.ImageDir = ""
	cfg.JWTSecret = "test-secret"
	cfg.Hostname = "test"
	return cfg
}
