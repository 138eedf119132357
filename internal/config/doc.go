// Package config provides loading and environment overlay for feed-store
// configuration. It exposes a Default() baseline and helpers used by the
// runtime wiring and the CLI.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/feedstore.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: "/var/lib/feedstore", Config: cfg})
//	defer rt.Close()
package config
