// Package progress provides the event primitives, non-blocking hub, and
// emitter interfaces that crawl cycles use to report their milestones. It
// batches events on a background goroutine and fans them out to pluggable
// sinks such as the in-memory ring queried by the operator API.
package progress
