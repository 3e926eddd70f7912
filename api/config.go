// Package api provides an HTTP API server for inspecting and posting to the
// blackboard.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8090")
	ListenAddr string

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}
