// Package event provides a pub-sub event bus that lets the compiler report
// build activity without knowing who is listening.
//
// The compiler publishes one event per builder message it processes; the
// CLI subscribes to render progress and build results, and to mirror builder
// output into the log.
//
// # Main Types
//
//   - [Event]: Interface that all events implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub dispatcher, safe for concurrent use
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Build cycle:
//   - [BuildInvalidatedEvent]: a platform started rebuilding
//   - [BuildProgressEvent]: progress of the in-flight build
//   - [BuildDoneEvent]: a build succeeded and the cache was replaced
//   - [BuildErrorEvent]: a build failed or its builder exited
//
// Builder output:
//   - [BuilderLogEvent]: one structured log line from a builder process
//
// # Basic Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeBuildProgress, func(e event.Event) {
//	    p := e.(event.BuildProgressEvent)
//	    fmt.Printf("%s %d/%d\n", p.Platform, p.Completed, p.Total)
//	})
//
//	// Everything under "build."
//	id := bus.SubscribeCategory("build", handler)
//	defer bus.Unsubscribe(id)
//
// Handlers run synchronously on the publishing goroutine. A panicking
// handler is recovered and logged; remaining handlers still run.
package event
