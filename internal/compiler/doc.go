// Package compiler serves per-platform build output on demand.
//
// A [Compiler] owns one builder per platform, created lazily by the first
// [Compiler.GetAsset] call naming that platform. Builder messages are
// handled by one event loop per platform:
//
//   - Progress is forwarded to the [ProgressFunc] of every waiting caller
//     and published as event.BuildProgressEvent.
//   - Done replaces the platform's artifact cache wholesale and resolves
//     every waiting caller against the new cache.
//   - Failed resolves every waiting caller with the same error and leaves
//     the cache untouched, so the last good build stays servable.
//   - A builder that exits while callers wait resolves them with
//     errors.ErrProcessTerminated.
//
// Callers that ask for a file the last build did not produce get
// errors.ErrNotFoundInCache at once when no build is running. Use
// errors.Classify to tell a broken build from a missing file.
//
// Basic usage:
//
//	c, err := compiler.New(compiler.Options{Root: root, Spawner: spawner, Bus: bus})
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	a, err := c.GetAsset(ctx, "index.bundle", "ios", func(p compiler.Progress) {
//	    fmt.Printf("%d/%d\n", p.Completed, p.Total)
//	})
package compiler
