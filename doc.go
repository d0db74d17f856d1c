// Package beacon is an embedded telemetry library: host applications
// record typed metric values, beacon batches them into named pings and
// delivers the pings durably, at-least-once, to a remote collector.
//
// There is no process-global instance. The host constructs a Client,
// owns its lifetime, and passes it to everything that records. All
// recording calls are fire-and-forget: they enqueue work on an internal
// single-writer execution context and return immediately. Telemetry
// failures are recorded as error metrics and logged; they never panic
// and never block the host.
//
// Uploads run on the host's cadence: a background scheduler, a timer,
// or an app-foreground hook calls DrainQueue, and beacon delivers
// whatever the durable queue holds, with retry and exponential backoff
// on transient failures.
package beacon
