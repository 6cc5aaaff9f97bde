package config

import (
	"flag"
	"time"

	"github.com/dmitrijs2005/gophsync/internal/flagx"
)

// serverFlags lists the short flags parseFlags owns.
var serverFlags = []string{
	"-a", "-w", "-d", "-s", "-t", "-k", "-n", "-q", "-m", "-l", "-f",
	"-u", "-p", "-b", "-g", "-e",
}

// parseFlags populates Config fields from command-line flags.
//
//	-a string   gRPC bind address (e.g. ":50051")
//	-w string   WebSocket bind address (e.g. ":8081")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      access token validity, minutes
//	-k string   content encryption passphrase
//	-n string   content encryption salt
//	-q int      default storage limit for new users, bytes
//	-m int      maximum files per sync batch
//	-l string   log level (debug|info|warn|error)
//	-f string   log file path (rotated); stdout when empty
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, base endpoint
//
// Arguments are filtered with flagx.FilterArgs first, so flags belonging
// to other components do not break parsing.
func parseFlags(config *Config, args []string) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC address and port")
	fs.StringVar(&config.EndpointAddrWS, "w", config.EndpointAddrWS, "websocket address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidity := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")

	fs.StringVar(&config.EncryptionPassphrase, "k", config.EncryptionPassphrase, "content encryption passphrase")
	fs.StringVar(&config.EncryptionSalt, "n", config.EncryptionSalt, "content encryption salt")
	fs.Int64Var(&config.DefaultStorageLimit, "q", config.DefaultStorageLimit, "default storage limit (bytes)")
	fs.IntVar(&config.MaxBatchSize, "m", config.MaxBatchSize, "max files per sync batch")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFile, "f", config.LogFile, "log file")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 archive bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(flagx.FilterArgs(args, serverFlags)); err != nil {
		panic(err)
	}

	// only an explicit -t overrides, so sub-minute file values survive
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "t" {
			config.AccessTokenValidityDuration = time.Duration(*accessTokenValidity) * time.Minute
		}
	})
}
