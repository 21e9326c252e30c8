package config

import "fmt"

// ValidateAndSetDefaults checks the loaded configuration for structurally
// invalid values and fills in any zero-valued fields with their defaults.
// Mirrors the teacher's validate-then-smart-default shape.
func ValidateAndSetDefaults(cfg *Config) error {
	def := Default()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be in 1..65535, got %d", cfg.Server.Port)
	}

	if cfg.Validator.MaxFileSize == 0 {
		cfg.Validator.MaxFileSize = def.Validator.MaxFileSize
	}
	if cfg.Validator.MaxSyncFileSize == 0 {
		cfg.Validator.MaxSyncFileSize = def.Validator.MaxSyncFileSize
	}
	if cfg.Validator.MaxSyncFileSize > cfg.Validator.MaxFileSize {
		return fmt.Errorf("validator.max_sync_file_size (%d) must not exceed max_file_size (%d)",
			cfg.Validator.MaxSyncFileSize, cfg.Validator.MaxFileSize)
	}

	if len(cfg.Parser.Languages) == 0 {
		cfg.Parser.Languages = def.Parser.Languages
	}

	if cfg.Queue.LeaseDuration <= 0 {
		cfg.Queue.LeaseDuration = def.Queue.LeaseDuration
	}
	if cfg.Queue.SweepInterval <= 0 {
		cfg.Queue.SweepInterval = def.Queue.SweepInterval
	}
	if cfg.Queue.MaxAttempts <= 0 {
		cfg.Queue.MaxAttempts = def.Queue.MaxAttempts
	}
	if cfg.Queue.RetryBackoffBase <= 0 {
		cfg.Queue.RetryBackoffBase = def.Queue.RetryBackoffBase
	}
	if cfg.Queue.RetryBackoffMax <= 0 {
		cfg.Queue.RetryBackoffMax = def.Queue.RetryBackoffMax
	}

	if cfg.Dispatcher.Concurrency <= 0 {
		cfg.Dispatcher.Concurrency = def.Dispatcher.Concurrency
	}

	if cfg.API.SyncDeadline <= 0 {
		cfg.API.SyncDeadline = def.API.SyncDeadline
	}

	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = def.RateLimit.PerMinute
	}
	if cfg.RateLimit.PerHour <= 0 {
		cfg.RateLimit.PerHour = def.RateLimit.PerHour
	}

	if cfg.Cleanup.RetentionDays <= 0 {
		cfg.Cleanup.RetentionDays = def.Cleanup.RetentionDays
	}

	if cfg.Callback.MaxAttempts <= 0 {
		cfg.Callback.MaxAttempts = def.Callback.MaxAttempts
	}
	if cfg.Callback.BackoffBase <= 0 {
		cfg.Callback.BackoffBase = def.Callback.BackoffBase
	}

	if cfg.Blob.RootDir == "" {
		cfg.Blob.RootDir = def.Blob.RootDir
	}

	return nil
}

// Load reads the KDL config at path, falling back to Default() when the
// file does not exist, then validates and fills in defaults.
func Load(path string) (*Config, error) {
	cfg, err := LoadKDL(path)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}
	if err := ValidateAndSetDefaults(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
