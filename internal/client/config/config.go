package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config holds runtime settings for the device client.
type Config struct {
	ServerEndpointAddr string
	EventsURL          string
	AccessToken        string
	SyncDir            string
	StatePath          string
	ReconnectInterval  time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.EventsURL = "ws://127.0.0.1:8081"
	c.AccessToken = ""
	c.SyncDir = "."
	c.StatePath = filepath.Join(os.TempDir(), "gophsync-state.db")
	c.ReconnectInterval = 5 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	return LoadConfigFromArgs(os.Args[1:])
}

// LoadConfigFromArgs is LoadConfig with explicit arguments.
func LoadConfigFromArgs(args []string) *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg, args)
	parseFlags(cfg, args)
	return cfg
}
