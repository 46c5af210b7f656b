// Package audit relays flow events from the engine to a Sink without
// blocking request paths.
//
// A [Dispatcher] owns one buffered queue and one worker goroutine. In
// drop-if-full mode Emit never waits and counts what it discards; otherwise
// it waits for buffer space or for the caller's context. Close flushes the
// queue before returning.
//
// Sinks: [ChannelSink] for tests and in-process consumers, [JSONWriterSink]
// for JSON lines, [ZapSink] for the server log, [MultiSink] to combine them.
//
// The engine decides which events exist; this package never filters them.
package audit
