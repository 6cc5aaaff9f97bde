package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/gophsync/internal/flagx"
	"github.com/dmitrijs2005/gophsync/internal/timex"
)

// JSONConfig is a DTO used exclusively for JSON unmarshalling. Missing keys
// keep the current values.
type JSONConfig struct {
	ServerEndpointAddr *string         `json:"server_endpoint_addr"`
	EventsURL          *string         `json:"events_url"`
	AccessToken        *string         `json:"access_token"`
	SyncDir            *string         `json:"sync_dir"`
	StatePath          *string         `json:"state_path"`
	ReconnectInterval  *timex.Duration `json:"reconnect_interval"`
}

// parseJSON overlays cfg with the file named by -c/-config. Read and
// unmarshal errors panic.
func parseJSON(cfg *Config, args []string) {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JSONConfig
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&cfg.ServerEndpointAddr, jc.ServerEndpointAddr)
	set(&cfg.EventsURL, jc.EventsURL)
	set(&cfg.AccessToken, jc.AccessToken)
	set(&cfg.SyncDir, jc.SyncDir)
	set(&cfg.StatePath, jc.StatePath)
	if jc.ReconnectInterval != nil {
		cfg.ReconnectInterval = jc.ReconnectInterval.Duration
	}
}
