// Package builder abstracts the external process that builds one platform.
//
// The compiler never talks to a bundler directly. It asks a [Spawner] for a
// [Process] per platform and consumes the [Message] stream that process
// produces: [Started] when a rebuild begins, [Progress] while it runs, and
// exactly one [Failed] or [Done] to end the cycle.
//
// Two implementations are provided:
//
//   - [WorkerProcess] runs a long-lived worker that watches sources itself.
//     Frames arrive on file descriptor 3, encoded as newline-delimited JSON
//     or a CBOR stream (see [Frame]). Asset payloads may be zstd-compressed.
//     Anything the worker prints on stdout or stderr is parsed with
//     [ParseLogLine].
//   - [CommandProcess] runs a one-shot bundler command per build and reads
//     its output directory. With watch enabled it observes the project root
//     through a [Watcher] and rebuilds on change.
//
// A process that exits while a cycle is open reports a [Failed] carrying
// errors.ErrProcessTerminated before its channel closes, so callers waiting
// on that cycle are always released.
package builder
