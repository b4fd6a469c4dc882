package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

// Environment passed to worker processes.
const (
	EnvWorker   = "BUNDLR_WORKER"
	EnvPlatform = "BUNDLR_PLATFORM"
	EnvVerbose  = "BUNDLR_VERBOSE"
	EnvCodec    = "BUNDLR_CODEC"
	// EnvEventFD names the file descriptor frames must be written to.
	EnvEventFD = "BUNDLR_EVENT_FD"
)

// eventFD is where the first entry of ExtraFiles lands in the child.
const eventFD = 3

const (
	// exitGrace is how long a worker may keep running after closing its
	// event pipe before it is killed.
	exitGrace = 2 * time.Second
	// drainGrace is how long output readers may keep reading after the
	// worker exited, in case a grandchild still holds the pipes.
	drainGrace = time.Second
	// stopGrace is how long Stop waits after an interrupt before killing.
	stopGrace = 5 * time.Second
)

// maxLogLine bounds a single line of worker output.
const maxLogLine = 1024 * 1024

// WorkerOptions configures worker processes.
type WorkerOptions struct {
	Command string
	Args    []string
	// Dir is the working directory, normally the project root.
	Dir     string
	Codec   string
	Verbose bool
	// Env is appended to the inherited environment.
	Env    []string
	Logger *logging.Logger
	OnLog  LogFunc
}

// WorkerSpawner creates WorkerProcesses.
type WorkerSpawner struct {
	opts WorkerOptions
}

// NewWorkerSpawner returns a Spawner for long-lived worker processes.
func NewWorkerSpawner(opts WorkerOptions) *WorkerSpawner {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	return &WorkerSpawner{opts: opts}
}

// Spawn implements Spawner.
func (s *WorkerSpawner) Spawn(platform string) (Process, error) {
	if s.opts.Command == "" {
		return nil, errors.NewValidationError("worker command is not configured").WithField("build.worker.command")
	}
	if _, err := NewFrameDecoder(s.opts.Codec, nil); err != nil {
		return nil, err
	}
	return &WorkerProcess{
		platform: platform,
		opts:     s.opts,
		logger:   s.opts.Logger.WithPlatform(platform).WithBuilder("worker"),
		stopping: make(chan struct{}),
		finished: make(chan struct{}),
	}, nil
}

// WorkerProcess runs an external worker that builds one platform and keeps
// watching for changes. Frames arrive on an extra pipe mapped to fd 3 in
// the child; stdout and stderr carry log lines.
type WorkerProcess struct {
	platform string
	opts     WorkerOptions
	logger   *logging.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool

	out      chan Message
	stopOnce sync.Once
	stopping chan struct{}
	finished chan struct{}

	// Written by the wait goroutine before waitDone closes.
	exitCode int
	exitErr  error

	// Written by the frame reader before framesDone closes.
	cycleOpen    bool
	transportErr error
}

// Start implements Process.
func (p *WorkerProcess) Start(ctx context.Context) (<-chan Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil, fmt.Errorf("worker for %s already started", p.platform)
	}

	evR, evW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create event pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		closeAll(evR, evW)
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeAll(evR, evW, outR, outW)
		return nil, fmt.Errorf("create stderr pipe: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.opts.Command, p.opts.Args...)
	cmd.Dir = p.opts.Dir
	cmd.Stdout = outW
	cmd.Stderr = errW
	cmd.ExtraFiles = []*os.File{evW}
	cmd.Env = append(os.Environ(), p.env()...)
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = stopGrace

	if err := cmd.Start(); err != nil {
		closeAll(evR, evW, outR, outW, errR, errW)
		return nil, errors.NewBuildError("failed to start worker", err).WithPlatform(p.platform)
	}
	// The child holds its own copies; ours must close so EOF is seen.
	closeAll(evW, outW, errW)

	p.cmd = cmd
	p.started = true
	p.out = make(chan Message, 16)
	p.logger.Info("worker started", "pid", cmd.Process.Pid, "command", p.opts.Command)

	waitDone := make(chan struct{})
	go func() {
		defer close(waitDone)
		p.exitErr = cmd.Wait()
		p.exitCode = exitCodeOf(cmd, p.exitErr)
	}()

	var logs conc.WaitGroup
	logs.Go(func() { p.readLogs(outR) })
	logs.Go(func() { p.readLogs(errR) })

	framesDone := make(chan struct{})
	go func() {
		defer close(framesDone)
		p.cycleOpen, p.transportErr = p.readFrames(evR)
	}()

	go p.supervise(waitDone, framesDone, &logs, evR, outR, errR)

	return p.out, nil
}

func (p *WorkerProcess) env() []string {
	verbose := "0"
	if p.opts.Verbose {
		verbose = "1"
	}
	codec := p.opts.Codec
	if codec == "" {
		codec = "json"
	}
	env := []string{
		EnvWorker + "=1",
		EnvPlatform + "=" + p.platform,
		EnvVerbose + "=" + verbose,
		EnvCodec + "=" + codec,
		fmt.Sprintf("%s=%d", EnvEventFD, eventFD),
	}
	return append(env, p.opts.Env...)
}

// readFrames forwards frames until the pipe closes or a frame cannot be
// decoded. It reports whether a cycle was left open.
func (p *WorkerProcess) readFrames(r io.Reader) (cycleOpen bool, transportErr error) {
	dec, err := NewFrameDecoder(p.opts.Codec, r)
	if err != nil {
		return true, err
	}

	cycleOpen = true
	for {
		var f Frame
		if err := dec.Decode(&f); err != nil {
			if err == io.EOF || errors.Is(err, os.ErrClosed) {
				return cycleOpen, nil
			}
			p.logger.Error("undecodable frame from worker", "error", err.Error())
			p.kill()
			return cycleOpen, fmt.Errorf("decode frame: %w", err)
		}

		msg, err := f.ToMessage(p.platform)
		if err != nil {
			p.logger.Warn("dropping worker frame", "event", f.Event, "error", err.Error())
			continue
		}

		switch msg.(type) {
		case Started:
			cycleOpen = true
		case Failed, Done:
			cycleOpen = false
		}
		p.out <- msg
	}
}

func (p *WorkerProcess) readLogs(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		entry, ok := ParseLogLine(scanner.Text(), time.Now())
		if !ok {
			continue
		}
		if p.opts.OnLog != nil {
			p.opts.OnLog(p.platform, entry)
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

func (p *WorkerProcess) supervise(
	waitDone, framesDone <-chan struct{},
	logs *conc.WaitGroup,
	evR, outR, errR *os.File,
) {
	defer close(p.finished)
	defer close(p.out)

	select {
	case <-framesDone:
		select {
		case <-waitDone:
		case <-time.After(exitGrace):
			p.logger.Warn("worker closed its event pipe but kept running; killing it")
			p.kill()
			<-waitDone
		}
	case <-waitDone:
		select {
		case <-framesDone:
		case <-time.After(drainGrace):
			_ = evR.Close()
			<-framesDone
		}
	}

	logsDone := make(chan struct{})
	go func() {
		logs.Wait()
		close(logsDone)
	}()
	select {
	case <-logsDone:
	case <-time.After(drainGrace):
		closeAll(outR, errR)
		<-logsDone
	}
	closeAll(evR, outR, errR)

	select {
	case <-p.stopping:
		p.logger.Info("worker stopped", "exit_code", p.exitCode)
	default:
		p.logger.Warn("worker exited", "exit_code", p.exitCode, "cycle_open", p.cycleOpen)
	}

	if p.cycleOpen {
		cause := p.transportErr
		if cause == nil {
			cause = p.exitErr
		}
		err := errors.NewProcessTerminatedError(p.exitCode, cause).WithPlatform(p.platform)
		p.out <- Failed{Err: err}
	}
}

// Stop implements Process.
func (p *WorkerProcess) Stop() error {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		return nil
	}

	p.stopOnce.Do(func() {
		close(p.stopping)
		if err := interrupt(p.cmd.Process); err != nil {
			p.kill()
		}
	})

	select {
	case <-p.finished:
	case <-time.After(stopGrace):
		p.kill()
		<-p.finished
	}
	return nil
}

func (p *WorkerProcess) kill() {
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// interrupt asks proc to exit, falling back to Kill where interrupts are
// unsupported.
func interrupt(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return proc.Kill()
	}
	return nil
}

func exitCodeOf(cmd *exec.Cmd, waitErr error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if waitErr != nil {
		return -1
	}
	return 0
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		if f != nil {
			_ = f.Close()
		}
	}
}
