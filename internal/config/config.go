package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for a feed-store instance.
type Config struct {
	// DefaultValueEncoding is the codec name used for a feed opened without
	// an explicit ValueEncoding.
	DefaultValueEncoding string `json:"defaultValueEncoding" yaml:"defaultValueEncoding"`
	// DescriptorOpenTimeout bounds FeedDescriptor.Open's wait for the
	// injected log engine's ready signal (spec §4.2).
	DescriptorOpenTimeout time.Duration `json:"descriptorOpenTimeout" yaml:"descriptorOpenTimeout"`
	// DescriptorCloseTimeout bounds FeedDescriptor.Close's wait for the
	// injected log engine to close (spec §4.2).
	DescriptorCloseTimeout time.Duration `json:"descriptorCloseTimeout" yaml:"descriptorCloseTimeout"`
	// DefaultBatchSize is the batch stream's default contiguous-range size
	// (spec §4.8; the reference implementation defaults to 100).
	DefaultBatchSize int `json:"defaultBatchSize" yaml:"defaultBatchSize"`
	// IndexNamespace is the trie key prefix IndexDB stores records under
	// (spec §3; the reference implementation uses "@feedstore/").
	IndexNamespace string `json:"indexNamespace" yaml:"indexNamespace"`
	// ReaderDefaultLive is the `live` option of the default bulk-reader
	// filter, used when no filter is given (spec §4.5).
	ReaderDefaultLive bool `json:"readerDefaultLive" yaml:"readerDefaultLive"`
	// ReaderMergeBuffer bounds the shared merge buffer readers use for
	// backpressure (spec §4.5/§5).
	ReaderMergeBuffer int `json:"readerMergeBuffer" yaml:"readerMergeBuffer"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultValueEncoding:   "binary",
		DescriptorOpenTimeout:  10 * time.Second,
		DescriptorCloseTimeout: 10 * time.Second,
		DefaultBatchSize:       100,
		IndexNamespace:         "@feedstore/",
		ReaderDefaultLive:      false,
		ReaderMergeBuffer:      256,
	}
}

// Load reads configuration from a JSON or YAML file (chosen by extension).
// If path is empty, returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}
