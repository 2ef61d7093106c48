// Package server exposes the pipeline over HTTP: async analysis jobs, run history, a
// WebSocket progress stream, metrics and health.
package server

import "time"

// Server limits
const (
	MaxJobs        = 256     // retained jobs; finished ones are evicted first
	MaxUploadBytes = 2 << 30 // multipart video uploads
	MaxJSONBytes   = 1 << 20

	// Per-connection WebSocket message budget
	WSRateLimit = 10 // messages per second
	WSRateBurst = 20

	WSWriteTimeout  = 5 * time.Second
	ShutdownTimeout = 30 * time.Second
)

// WebSocket message types
const (
	msgSubscribe = "subscribe"
	msgEvent     = "event"
	msgError     = "error"
)
