package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	Addr        string
	ServerURL   string `mapstructure:"server_url"`
	TableSource string `mapstructure:"table_source"`
	Room        string
	Log         LogConfig
	Viewport    ViewportConfig
	Store       StoreConfig
}

type LogConfig struct {
	Level       string
	Development bool
}

// ViewportConfig is the local screen size the side-by-side layout fits into.
type ViewportConfig struct {
	Width  float64
	Height float64
}

type StoreConfig struct {
	Driver string
	Path   string
	DSN    string
}

// LoadDotEnv loads .env style files into the environment. Missing files are
// skipped and variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and AIRDECK_ environment
// overrides. Callers may bind flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	// default values
	v.SetDefault("addr", ":8080")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("table_source", "")
	v.SetDefault("room", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("viewport.width", 1920)
	v.SetDefault("viewport.height", 1080)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "airdeck.db")
	v.SetDefault("store.dsn", "")

	v.SetEnvPrefix("AIRDECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func Load(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return Config{}, fmt.Errorf("store.driver must be sqlite or postgres, got %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.DSN == "" {
		return Config{}, errors.New("store.dsn is required for postgres")
	}
	return c, nil
}
