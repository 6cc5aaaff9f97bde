// Package config loads runtime configuration for the gophsync device client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJSON) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the gRPC endpoint
//	-w string   base URL of the WebSocket change feed (ws://host:port)
//	-t string   device access token
//	-d string   directory kept in sync
//	-s string   path of the local state database
//	-i int      reconnect interval of the change feed (seconds)
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "events_url": "ws://127.0.0.1:8081",
//	  "access_token": "...",
//	  "sync_dir": "/home/me/Notes",
//	  "state_path": "/home/me/.gophsync/state.db",
//	  "reconnect_interval": "5s"
//	}
package config
