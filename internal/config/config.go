package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Store drivers
const (
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

var drivers = []string{DriverMongo, DriverPostgres, DriverBolt}

// Config holds all application configuration
type Config struct {
	App      AppConfig
	HTTP     HTTPConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	Bolt     BoltConfig
	Log      LogConfig
	Prune    PruneConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string // development, production
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the document store backend
type StoreConfig struct {
	Driver  string        // mongo, postgres, bolt
	Timeout time.Duration // deadline for a single record operation, 0 disables
}

type MongoConfig struct {
	URI      string
	Database string
}

type PostgresConfig struct {
	URL          string
	CreateSchema bool
}

type BoltConfig struct {
	Path string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console; defaults to json in production
	Output string // stdout, stderr, or file path
}

type PruneConfig struct {
	Interval time.Duration // 0 disables the background sweep
}

// Load reads the configuration.
// Priority (highest to lowest):
// 1. Flags in flags that were explicitly set (may be nil)
// 2. Environment variables with HORTUS_ prefix (e.g., HORTUS_MONGO_URI),
// including those loaded from a .env file
// 3. The config file: file if not empty, else hortus.toml in . or /etc/hortus
// 4. Built-in defaults
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	// A missing .env is fine, the environment may already be populated
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("hortus")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hortus")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("HORTUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// HORTUS_DB_URL is the name used by earlier deployments
	if err := v.BindEnv("postgres.url", "HORTUS_POSTGRES_URL", "HORTUS_DB_URL"); err != nil {
		return nil, err
	}

	if flags != nil {
		for key, name := range map[string]string{
			"http.port":    "port",
			"store.driver": "store",
		} {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, err
				}
			}
		}
	}

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		HTTP: HTTPConfig{
			Port:            v.GetString("http.port"),
			ReadTimeout:     v.GetDuration("http.read_timeout"),
			WriteTimeout:    v.GetDuration("http.write_timeout"),
			IdleTimeout:     v.GetDuration("http.idle_timeout"),
			ShutdownTimeout: v.GetDuration("http.shutdown_timeout"),
		},
		Store: StoreConfig{
			Driver:  strings.ToLower(v.GetString("store.driver")),
			Timeout: v.GetDuration("store.timeout"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("mongo.uri"),
			Database: v.GetString("mongo.database"),
		},
		Postgres: PostgresConfig{
			URL:          v.GetString("postgres.url"),
			CreateSchema: v.GetBool("postgres.create_schema"),
		},
		Bolt: BoltConfig{
			Path: v.GetString("bolt.path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Prune: PruneConfig{
			Interval: v.GetDuration("prune.interval"),
		},
	}

	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
		if cfg.IsProduction() {
			cfg.Log.Format = "json"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hortus")
	v.SetDefault("app.env", "development")
	v.SetDefault("http.port", "3000")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("store.driver", DriverMongo)
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "plants_db")
	v.SetDefault("postgres.create_schema", true)
	v.SetDefault("bolt.path", "hortus.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("prune.interval", time.Duration(0))
}

func (c *Config) validate() error {
	if !slices.Contains(drivers, c.Store.Driver) {
		return fmt.Errorf("config: store.driver must be one of %s, got %q",
			strings.Join(drivers, ", "), c.Store.Driver)
	}
	if c.Store.Driver == DriverPostgres && c.Postgres.URL == "" {
		return errors.New("config: postgres.url is required for the postgres driver")
	}
	if c.Store.Driver == DriverBolt && c.Bolt.Path == "" {
		return errors.New("config: bolt.path is required for the bolt driver")
	}
	if c.HTTP.Port == "" {
		return errors.New("config: http.port is empty")
	}
	if c.Prune.Interval < 0 {
		return errors.New("config: prune.interval must not be negative")
	}
	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
