// Package log provides Quarry's structured logging facade.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the
// formatter/outputs pipeline, so output stays consistent across the codebase
// while slog handles level gating and attribute plumbing.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("server"), log.Str("queue", "prints"))
//	l.Info("server started", log.Int("port", 8080))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config (level, format,
// output destination), typically populated from QUARRY_LOG_* environment
// variables or the server config file.
//
// # Interop
//
// RedirectStdLog routes standard-library log output (Pebble uses it) through
// a Logger so everything lands in one structured stream.
package log
