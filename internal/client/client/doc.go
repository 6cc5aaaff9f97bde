// Package client holds the device client's connections: the local state
// database, the FileSync gRPC client and the change feed.
package client
