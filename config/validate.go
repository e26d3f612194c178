package config

import "github.com/qsysmcp/broker/errors"

// Validate checks that the configuration satisfies spec §9's constraints.
// The broker fails loudly on startup rather than clamping silently.
func (c *Config) Validate() error {
	if c.Connection.Host == "" {
		return errors.NewKind(errors.KindValidation, "connection.host is required")
	}
	if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
		return errors.Newfk(errors.KindValidation, "connection.port must be 1-65535, got %d", c.Connection.Port)
	}
	if c.Connection.TimeoutMS <= 0 {
		return errors.Newfk(errors.KindValidation, "connection.timeout_ms must be > 0, got %d", c.Connection.TimeoutMS)
	}
	if c.Connection.ReconnectIntervalMS <= 0 {
		return errors.Newfk(errors.KindValidation, "connection.reconnect_interval_ms must be > 0, got %d", c.Connection.ReconnectIntervalMS)
	}
	if c.Connection.HeartbeatMS <= 0 {
		return errors.Newfk(errors.KindValidation, "connection.heartbeat_ms must be > 0, got %d", c.Connection.HeartbeatMS)
	}

	if c.Recorder.Enabled {
		if c.Recorder.Path == "" {
			return errors.NewKind(errors.KindValidation, "recorder.path is required when recorder.enabled is true")
		}
		if c.Recorder.RetentionDays < 1 || c.Recorder.RetentionDays > 30 {
			return errors.Newfk(errors.KindValidation, "recorder.retention_days must be 1-30, got %d", c.Recorder.RetentionDays)
		}
		if c.Recorder.BufferSize < 1 {
			return errors.Newfk(errors.KindValidation, "recorder.buffer_size must be >= 1, got %d", c.Recorder.BufferSize)
		}
		if c.Recorder.FlushIntervalMS < 10 {
			return errors.Newfk(errors.KindValidation, "recorder.flush_interval_ms must be >= 10, got %d", c.Recorder.FlushIntervalMS)
		}
	}

	if c.Dispatcher.RateLimit.RPM < 0 {
		return errors.Newfk(errors.KindValidation, "dispatcher.rate_limit.rpm must be >= 0, got %d", c.Dispatcher.RateLimit.RPM)
	}
	if c.Dispatcher.RateLimit.Burst < 0 {
		return errors.Newfk(errors.KindValidation, "dispatcher.rate_limit.burst must be >= 0, got %d", c.Dispatcher.RateLimit.Burst)
	}
	if c.Dispatcher.AuditCapacity < 0 {
		return errors.Newfk(errors.KindValidation, "dispatcher.audit_capacity must be >= 0, got %d", c.Dispatcher.AuditCapacity)
	}

	return nil
}
