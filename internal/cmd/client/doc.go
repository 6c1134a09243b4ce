// Package client provides the `quarry` command-line client.
//
// The CLI talks to the quarry HTTP API to perform common queue
// operations from a terminal. It is primarily intended for developers
// and operators.
//
// Installation
//
//	go install github.com/rzbill/quarry/cmd/quarry@latest
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it is
// read from the QUARRY_API environment variable and defaults to
// http://127.0.0.1:8080.
//
// Usage
//
//	quarry queue put --queue orders --data '{"order":42}' --priority 5 --tag billing
//
//	quarry queue pop --queue orders --worker w1 --count 2 --lease-ms 30000
//	quarry queue heartbeat --id JOB_ID --worker w1 --lease-ms 30000
//	quarry queue complete --id JOB_ID --worker w1 --queue orders
//	quarry queue complete --id JOB_ID --worker w1 --queue orders --next-queue shipping
//
//	quarry queue fail --id JOB_ID --category timeout --message "upstream gave up"
//	quarry queue failed                         # category counts
//	quarry queue failed --category timeout      # jobs in one category
//	quarry queue failed --category timeout --filter 'json.order.amount > 100'
//
//	quarry queue stats --queue orders
//	quarry queue len --queue orders
//	quarry queue list
//	quarry queue tagged --tag billing
//	quarry queue workers
//	quarry queue workers --worker w1
//
// Notes
//
//   - pop and heartbeat accept --lease-ms as a relative duration; the
//     client converts it to an absolute wall-clock expiry for the API.
//   - failed and tagged accept a --filter CEL expression evaluated
//     server-side against each job (id, queue, state, priority, tags,
//     retries, remaining, worker, json, text, size).
//   - job payloads print as data_json, data_text, or data_b64 depending
//     on what the payload decodes as.
package client
