// Package config provides loading and environment overlay for Quarry runtime
// configuration. It exposes a Default() baseline, file loading in JSON or
// YAML, and a QUARRY_* environment overlay.
//
// Example:
//
//	cfg := config.Default()
//	if fileCfg, err := config.Load("/etc/quarry.yaml"); err == nil {
//	    cfg = fileCfg
//	}
//	config.FromEnv(&cfg)
//	rt, _ := runtime.Open(runtime.Options{DataDir: cfg.DataDir, Config: cfg})
//	defer rt.Close()
package config
