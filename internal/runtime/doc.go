// Package runtime wires storage, config, the queue engine, and the event hub
// into a single-node Quarry instance. It exposes Open/Close, basic health
// checks, and accessors used by higher-level services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	jobs, _ := rt.Engine().Pop(context.Background(), "jobs", "worker-1", 1, 0, 0)
package runtime
