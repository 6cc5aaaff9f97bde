// Package cli implements the gophsync device client commands. Connection
// settings come from the config package; the commands only pick the action.
package cli
