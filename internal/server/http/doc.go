// Package httpserver provides the REST gateway for Quarry: JSON endpoints
// mirroring the queues service, a WebSocket feed of job lifecycle events,
// and the Prometheus /metrics endpoint.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: config.Default()})
//	s := httpserver.New(rt, nil)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":8080")
package httpserver
