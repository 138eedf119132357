// Package runtime wires storage, the log engine, and configuration into a
// single-node feed-store instance. It exposes Open/Close, a health check,
// and the ready feedstore.Store higher-level callers (the CLI, embedders)
// drive.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblefs.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	feed, _, _ := rt.Store().OpenFeed(context.Background(), "/orders", feedstore.OpenOptions{})
//	_, _ = feed.Append(context.Background(), []byte("hello"))
package runtime
