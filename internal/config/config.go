// README: Config loader with viper for HTTP, storage, Redis, Kafka, maps and dispatch settings.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

const envPrefix = "DISPATCH"

type DispatchConfig struct {
	Recommendations int
	NearbyRadiusKm  float64
}

type Config struct {
	HTTP struct {
		Addr string
	}
	Store struct {
		Backend string
		DataDir string
	}
	DB struct {
		DSN string
	}
	Redis struct {
		Addr string
	}
	Kafka struct {
		Brokers []string
		Topic   string
	}
	Maps struct {
		APIKey string
	}
	Dispatch DispatchConfig
	Log      struct {
		Env string
	}
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Load reads DISPATCH_* environment variables and, when DISPATCH_CONFIG
// names one, a config file. Environment values win over the file.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(envPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	cfg.HTTP.Addr = v.GetString("http.addr")
	cfg.Store.Backend = strings.ToLower(v.GetString("store.backend"))
	cfg.Store.DataDir = v.GetString("store.data_dir")
	cfg.DB.DSN = v.GetString("db.dsn")
	cfg.Redis.Addr = v.GetString("redis.addr")
	cfg.Kafka.Brokers = splitList(v.GetString("kafka.brokers"))
	cfg.Kafka.Topic = v.GetString("kafka.topic")
	cfg.Maps.APIKey = v.GetString("maps.api_key")
	cfg.Dispatch.Recommendations = v.GetInt("dispatch.recommendations")
	cfg.Dispatch.NearbyRadiusKm = v.GetFloat64("dispatch.nearby_radius_km")
	cfg.Log.Env = v.GetString("log.env")
	return cfg, cfg.validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("store.backend", BackendFile)
	v.SetDefault("store.data_dir", "data")
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "booking-events")
	v.SetDefault("maps.api_key", "")
	v.SetDefault("dispatch.recommendations", 5)
	v.SetDefault("dispatch.nearby_radius_km", 5.0)
	v.SetDefault("log.env", "production")
}

func (c Config) validate() error {
	switch c.Store.Backend {
	case BackendFile:
		if c.Store.DataDir == "" {
			return errors.New("store.data_dir is required for the file backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return errors.New("db.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	if c.Dispatch.Recommendations <= 0 {
		return errors.New("dispatch.recommendations must be positive")
	}
	if c.Dispatch.NearbyRadiusKm <= 0 {
		return errors.New("dispatch.nearby_radius_km must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
