package config

import "github.com/spf13/viper"

// SetDefaults configures default values for every configuration option.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("connection.host", "localhost")
	v.SetDefault("connection.port", 1710)
	v.SetDefault("connection.timeout_ms", 5000)
	v.SetDefault("connection.reconnect_interval_ms", 5000)
	v.SetDefault("connection.heartbeat_ms", 15000)
	v.SetDefault("connection.auto_reconnect", true)

	v.SetDefault("recorder.enabled", true)
	v.SetDefault("recorder.path", "./broker-events")
	v.SetDefault("recorder.retention_days", 14)
	v.SetDefault("recorder.buffer_size", 256)
	v.SetDefault("recorder.flush_interval_ms", 1000)

	v.SetDefault("dispatcher.rate_limit.rpm", 600)
	v.SetDefault("dispatcher.rate_limit.burst", 20)
	v.SetDefault("dispatcher.audit_capacity", 1000)
}
