package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays FEEDSTORE_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("FEEDSTORE_DEFAULT_VALUE_ENCODING"); v != "" {
		cfg.DefaultValueEncoding = v
	}
	if v := os.Getenv("FEEDSTORE_DESCRIPTOR_OPEN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DescriptorOpenTimeout = d
		}
	}
	if v := os.Getenv("FEEDSTORE_DESCRIPTOR_CLOSE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.DescriptorCloseTimeout = d
		}
	}
	if v := os.Getenv("FEEDSTORE_DEFAULT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultBatchSize = n
		}
	}
	if v := os.Getenv("FEEDSTORE_INDEX_NAMESPACE"); v != "" {
		cfg.IndexNamespace = v
	}
	if v := os.Getenv("FEEDSTORE_READER_DEFAULT_LIVE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ReaderDefaultLive = b
		}
	}
	if v := os.Getenv("FEEDSTORE_READER_MERGE_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReaderMergeBuffer = n
		}
	}
}
