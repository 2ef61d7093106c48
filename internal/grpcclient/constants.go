// Package grpcclient provides a client for a remote inference gRPC server
package grpcclient

import "time"

// Client configuration defaults
const (
	// Keepalive configuration
	DefaultKeepaliveTime    = 10 * time.Second
	DefaultKeepaliveTimeout = 3 * time.Second

	// Health check configuration
	DefaultHealthCheckInterval = 5 * time.Second
	HealthCheckTimeout         = 2 * time.Second

	// Frame payloads are large; 64 MiB covers a minute of 4 FPS JPEG frames.
	DefaultMaxMessageSize = 64 << 20
)

// Fully-qualified method names of the inference service.
const (
	ServiceName          = "vos.inference.v1.Inference"
	MethodInferVisual    = "/" + ServiceName + "/InferVisual"
	MethodInferOlfactory = "/" + ServiceName + "/InferOlfactory"
	methodNameVisual     = "InferVisual"
	methodNameOlfactory  = "InferOlfactory"
)
