// Package serverrun exposes a shared Run entrypoint used by the CLI to start
// the quarry server, handling config resolution, lifecycle and shutdown.
//
// Example:
//
//	opts := serverrun.Options{DataDir: "./data", HTTPAddr: ":8080", Fsync: "always"}
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, opts)
package serverrun
