// Package log provides the feed-store module's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the package's
// formatter/output pipeline. This allows adoption of the slog ecosystem while
// keeping consistent output and behavior across the module.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.WithComponent("store")
//	l.Info("feed opened", log.Str("path", "/books"))
//
// # Interop
//
// To integrate with libraries expecting *log.Logger (e.g. Pebble), use
// RedirectStdLog to route stdlib log output through a Logger.
package log
