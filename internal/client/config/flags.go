package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/flagx"
)

var clientFlags = []string{"-a", "-w", "-t", "-d", "-s", "-i"}

// parseFlags populates Config fields from the flags listed in doc.go. The
// arguments are filtered with flagx.FilterArgs first, so subcommand names
// and their own flags are ignored here.
func parseFlags(cfg *Config, args []string) {
	fs := flag.NewFlagSet("client", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.EventsURL, "w", cfg.EventsURL, "change feed base URL")
	fs.StringVar(&cfg.AccessToken, "t", cfg.AccessToken, "device access token")
	fs.StringVar(&cfg.SyncDir, "d", cfg.SyncDir, "directory to sync")
	fs.StringVar(&cfg.StatePath, "s", cfg.StatePath, "local state database")
	reconnect := fs.Int("i", int(cfg.ReconnectInterval.Seconds()), "change feed reconnect interval (in seconds)")

	if err := fs.Parse(flagx.FilterArgs(args, clientFlags)); err != nil {
		panic(err)
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "i" {
			cfg.ReconnectInterval = time.Duration(*reconnect) * time.Second
		}
	})
}
