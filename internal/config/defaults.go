package config

// DefaultAddr is the default listen address for the WebSocket server.
const DefaultAddr = "127.0.0.1:7180"

// DefaultHistoryCap is the default per-tab command history limit.
const DefaultHistoryCap = 500

// DefaultMetricsIntervalMs is the default metrics sampling period.
const DefaultMetricsIntervalMs = 2000

// DefaultSessionTTLSec is how long tab state survives a disconnect.
const DefaultSessionTTLSec = 300

// DefaultExecTimeoutSec is the default hard timeout for host processes.
const DefaultExecTimeoutSec = 10
