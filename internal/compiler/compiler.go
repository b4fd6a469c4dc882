package compiler

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/spf13/afero"

	"github.com/Iron-Ham/bundlr/internal/builder"
	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/event"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

// Options configures a Compiler.
type Options struct {
	// Root is the project directory non-bundle sources are read from.
	Root string
	// Fs is the filesystem sources are read through. Defaults to the OS
	// filesystem.
	Fs afero.Fs
	// Spawner creates one builder per platform. Required.
	Spawner builder.Spawner
	// Bus receives the general event stream. A private bus is created when
	// nil.
	Bus    *event.Bus
	Logger *logging.Logger
}

// Compiler serves build output for any number of platforms. Each platform
// gets one builder, started on the first request for it, whose messages are
// processed by a dedicated event loop.
type Compiler struct {
	root    string
	fs      afero.Fs
	spawner builder.Spawner
	bus     *event.Bus
	logger  *logging.Logger

	// ctx is handed to builders; cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc
	loops  conc.WaitGroup

	mu        sync.Mutex
	platforms map[string]*platformState
	closed    bool
}

// New creates a Compiler. No builder is started until an asset is
// requested.
func New(opts Options) (*Compiler, error) {
	if opts.Spawner == nil {
		return nil, errors.NewValidationError("compiler requires a builder spawner").WithField("spawner")
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if opts.Bus == nil {
		opts.Bus = event.NewBus(event.WithLogger(opts.Logger))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Compiler{
		root:      opts.Root,
		fs:        opts.Fs,
		spawner:   opts.Spawner,
		bus:       opts.Bus,
		logger:    opts.Logger.WithComponent("compiler"),
		ctx:       ctx,
		cancel:    cancel,
		platforms: make(map[string]*platformState),
	}, nil
}

// Bus returns the bus the general event stream is published on.
func (c *Compiler) Bus() *event.Bus {
	return c.bus
}

// platform returns the state for name, registering it on first use.
func (c *Compiler) platform(name string) (*platformState, error) {
	if name == "" {
		return nil, errors.NewValidationError("platform cannot be empty").WithField("platform").WithValue(name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, errors.ErrCompilerClosed
	}
	ps, ok := c.platforms[name]
	if !ok {
		ps = newPlatformState(name)
		c.platforms[name] = ps
	}
	return ps, nil
}

// lookup returns the state for name without registering it.
func (c *Compiler) lookup(name string) *platformState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.platforms[name]
}

// GetAsset returns filename from platform's build output.
//
// A cached artifact is returned at once. Otherwise the platform's builder
// is started if it has none, and the call waits for the running build to
// end. If the builder exists but is not building, the file is reported as
// not found without waiting. onProgress, when non-nil, receives progress of
// the awaited build until GetAsset returns.
//
// Cancelling ctx abandons the wait; the build itself continues.
func (c *Compiler) GetAsset(ctx context.Context, filename, platform string, onProgress ProgressFunc) (Artifact, error) {
	ps, err := c.platform(platform)
	if err != nil {
		return Artifact{}, err
	}
	filename = NormalizeFilename(filename)

	ps.mu.Lock()
	if a, ok := ps.assets[filename]; ok {
		ps.mu.Unlock()
		return a, nil
	}
	if ps.closing {
		ps.mu.Unlock()
		return Artifact{}, errors.ErrCompilerClosed
	}

	sub := ps.progress.add(onProgress)

	if ps.proc == nil {
		if err := c.startLocked(ps); err != nil {
			ps.progress.remove(sub)
			ps.mu.Unlock()
			return Artifact{}, err
		}
	} else if !ps.inProgress {
		ps.progress.remove(sub)
		ps.mu.Unlock()
		return Artifact{}, errors.NewAssetNotFoundError(filename, platform)
	}

	w := newWaiter(filename, sub)
	ps.enqueue(w)
	ps.mu.Unlock()

	select {
	case r := <-w.done:
		return r.artifact, r.err
	case <-ctx.Done():
		ps.mu.Lock()
		removed := ps.dequeue(w)
		ps.mu.Unlock()
		if !removed {
			// Resolved concurrently; the result is already buffered.
			r := <-w.done
			return r.artifact, r.err
		}
		if sub != nil {
			sub.close()
		}
		return Artifact{}, ctx.Err()
	}
}

// startLocked spawns and starts the platform's builder. Caller holds ps.mu.
// On failure no handle is kept, so the next request tries again.
func (c *Compiler) startLocked(ps *platformState) error {
	proc, err := c.spawner.Spawn(ps.name)
	if err != nil {
		return asBuildError(err, "failed to create builder", ps.name)
	}
	ch, err := proc.Start(c.ctx)
	if err != nil {
		return asBuildError(err, "failed to start builder", ps.name)
	}

	ps.proc = proc
	ps.inProgress = true
	ps.state = StateBuilding

	c.logger.Info("builder started", logging.KeyPlatform, ps.name)
	c.loops.Go(func() { c.run(ps, ch) })
	return nil
}

func asBuildError(err error, msg, platform string) error {
	var be *errors.BuildError
	if errors.As(err, &be) {
		return err
	}
	return errors.NewBuildError(msg, err).WithPlatform(platform)
}

// run is the platform's event loop. It is the only goroutine that handles
// the platform's builder messages, so terminal events never race.
func (c *Compiler) run(ps *platformState, ch <-chan builder.Message) {
	c.publish(ps, event.NewBuildInvalidatedEvent(ps.name, builder.ReasonInitial))

	for msg := range ch {
		switch m := msg.(type) {
		case builder.Started:
			c.handleStarted(ps, m)
		case builder.Progress:
			c.handleProgress(ps, m)
		case builder.Failed:
			c.handleFailed(ps, m)
		case builder.Done:
			c.handleDone(ps, m)
		}
	}

	c.handleExit(ps)
}

func (c *Compiler) handleStarted(ps *platformState, m builder.Started) {
	ps.mu.Lock()
	ps.inProgress = true
	ps.state = StateBuilding
	ps.mu.Unlock()

	c.logger.Debug("rebuild started", logging.KeyPlatform, ps.name, "reason", m.Reason)
	c.publish(ps, event.NewBuildInvalidatedEvent(ps.name, m.Reason))
}

func (c *Compiler) handleProgress(ps *platformState, m builder.Progress) {
	ps.mu.Lock()
	ps.inProgress = true
	ps.state = StateBuilding
	subs := ps.progress.snapshot()
	ps.mu.Unlock()

	p := Progress{Platform: ps.name, Total: m.Total, Completed: m.Completed, Message: m.Message}
	for _, s := range subs {
		s.deliver(p)
	}
	c.publish(ps, event.NewBuildProgressEvent(ps.name, m.Total, m.Completed, m.Message))
}

func (c *Compiler) handleFailed(ps *platformState, m builder.Failed) {
	err := m.Err
	if err == nil {
		err = errors.NewBuildError("build failed", nil).WithPlatform(ps.name)
	}

	ps.mu.Lock()
	ps.inProgress = false
	ps.state = StateIdle
	ps.lastErr = err
	waiters := ps.drain()
	ps.mu.Unlock()

	c.logger.Warn("build failed", logging.KeyPlatform, ps.name, "error", err.Error(), "waiters", len(waiters))
	for _, w := range waiters {
		w.resolve(result{err: err})
	}
	c.publish(ps, event.NewBuildErrorEvent(ps.name, err))
}

func (c *Compiler) handleDone(ps *platformState, m builder.Done) {
	cache := buildCache(m.Assets)

	ps.mu.Lock()
	ps.inProgress = false
	ps.state = StateIdle
	ps.assets = cache
	ps.stats = m.Stats
	ps.lastErr = nil
	waiters := ps.drain()
	ps.mu.Unlock()

	c.logger.Info("build done", logging.KeyPlatform, ps.name, "assets", len(cache), "waiters", len(waiters))
	for _, w := range waiters {
		if a, ok := cache[w.filename]; ok {
			w.resolve(result{artifact: a})
		} else {
			w.resolve(result{err: errors.NewAssetNotFoundError(w.filename, ps.name)})
		}
	}
	c.publish(ps, event.NewBuildDoneEvent(ps.name, len(cache), maps.Clone(m.Stats)))
}

// handleExit runs once the builder's channel closes. Waiters still queued
// are released; a well-behaved builder has already sent Failed for them.
func (c *Compiler) handleExit(ps *platformState) {
	ps.mu.Lock()
	ps.inProgress = false
	ps.state = StateStopped
	closing := ps.closing
	waiters := ps.drain()
	ps.mu.Unlock()

	switch {
	case closing:
		c.logger.Debug("builder exited on shutdown", logging.KeyPlatform, ps.name)
	case len(waiters) == 0:
		c.logger.Info("builder exited", logging.KeyPlatform, ps.name)
	default:
		c.logger.Warn("builder exited with requests pending", logging.KeyPlatform, ps.name, "waiters", len(waiters))
	}
	if len(waiters) == 0 {
		return
	}

	var err error = errors.ErrCompilerClosed
	if !closing {
		err = errors.NewProcessTerminatedError(-1, nil).WithPlatform(ps.name)
		ps.mu.Lock()
		ps.lastErr = err
		ps.mu.Unlock()
	}
	for _, w := range waiters {
		w.resolve(result{err: err})
	}
	c.publish(ps, event.NewBuildErrorEvent(ps.name, err))
}

// publish sends e unless the platform is shutting down.
func (c *Compiler) publish(ps *platformState, e event.Event) {
	ps.mu.Lock()
	closing := ps.closing
	ps.mu.Unlock()
	if closing {
		return
	}
	c.bus.Publish(e)
}

// State returns the lifecycle state of platform.
func (c *Compiler) State(platform string) State {
	ps := c.lookup(platform)
	if ps == nil {
		return StateAbsent
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.state
}

// Stats returns the stats of platform's last successful build.
func (c *Compiler) Stats(platform string) (builder.Stats, bool) {
	ps := c.lookup(platform)
	if ps == nil {
		return nil, false
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.stats == nil {
		return nil, false
	}
	return maps.Clone(ps.stats), true
}

// LastError returns the error that ended platform's most recent cycle, or
// nil if that cycle succeeded or none has ended.
func (c *Compiler) LastError(platform string) error {
	ps := c.lookup(platform)
	if ps == nil {
		return nil
	}
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.lastErr
}

// Assets returns the cached filenames for platform, sorted.
func (c *Compiler) Assets(platform string) []string {
	ps := c.lookup(platform)
	if ps == nil {
		return nil
	}
	ps.mu.Lock()
	cache := ps.assets
	ps.mu.Unlock()
	return slices.Sorted(maps.Keys(cache))
}

// Platforms returns every platform that has been requested, sorted.
func (c *Compiler) Platforms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Sorted(maps.Keys(c.platforms))
}

// Close stops every builder and releases all waiting requests with
// errors.ErrCompilerClosed. Later requests fail the same way. Close is
// safe to call more than once.
func (c *Compiler) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	states := slices.Collect(maps.Values(c.platforms))
	c.mu.Unlock()

	var procs []builder.Process
	for _, ps := range states {
		ps.mu.Lock()
		ps.closing = true
		waiters := ps.drain()
		if ps.proc != nil {
			procs = append(procs, ps.proc)
		}
		ps.mu.Unlock()

		for _, w := range waiters {
			w.resolve(result{err: errors.ErrCompilerClosed})
		}
	}

	var (
		stops   conc.WaitGroup
		errMu   sync.Mutex
		stopErr []error
	)
	for _, p := range procs {
		stops.Go(func() {
			if err := p.Stop(); err != nil {
				errMu.Lock()
				stopErr = append(stopErr, err)
				errMu.Unlock()
			}
		})
	}
	stops.Wait()

	c.cancel()
	c.loops.Wait()
	c.logger.Info("compiler closed", "builders", len(procs))
	return errors.Join(stopErr...)
}
