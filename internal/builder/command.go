package builder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/bundlr/internal/config"
	"github.com/Iron-Ham/bundlr/internal/errors"
	"github.com/Iron-Ham/bundlr/internal/logging"
)

// Environment passed to bundler commands.
const (
	EnvOutputDir = "BUNDLR_OUTPUT_DIR"
)

// SourceMapSuffix marks companion source maps in a command's output.
const SourceMapSuffix = ".map"

// tailLines is how much command output a failed build carries.
const tailLines = 20

// CommandOptions configures command-mode builders.
type CommandOptions struct {
	// Root is the project directory the command runs in and, in watch mode,
	// the tree being watched.
	Root    string
	Command config.CommandConfig
	// Shell runs the expanded command line. Defaults to sh -c.
	Shell  []string
	Env    []string
	Logger *logging.Logger
	OnLog  LogFunc
}

// CommandSpawner creates CommandProcesses.
type CommandSpawner struct {
	opts CommandOptions
}

// NewCommandSpawner returns a Spawner that runs a bundler command per build.
func NewCommandSpawner(opts CommandOptions) *CommandSpawner {
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger()
	}
	if len(opts.Shell) == 0 {
		opts.Shell = []string{"sh", "-c"}
	}
	return &CommandSpawner{opts: opts}
}

// Spawn implements Spawner.
func (s *CommandSpawner) Spawn(platform string) (Process, error) {
	if s.opts.Command.Run == "" {
		return nil, errors.NewValidationError("build command is not configured").WithField("build.command.run")
	}

	root, err := filepath.Abs(s.opts.Root)
	if err != nil {
		return nil, errors.NewSourceError(s.opts.Root, err)
	}
	outputDir := s.opts.Command.ExpandOutputDir(root, platform)
	if filepath.Clean(outputDir) == root {
		return nil, errors.NewValidationError("output directory must not be the project root").
			WithField("build.command.output_dir").WithValue(s.opts.Command.OutputDir)
	}

	patterns := append([]string(nil), s.opts.Command.Ignore...)
	patterns = append(patterns, outputIgnorePatterns(root, outputDir)...)
	// Every platform writes somewhere under the same template, and one
	// platform's output must not trigger another platform's rebuild.
	const slot = "\x00"
	if shared := s.opts.Command.ExpandOutputDir(root, slot); shared != outputDir {
		for _, p := range outputIgnorePatterns(root, shared) {
			// "{platform}" directly under the root would read as "*".
			if strings.HasPrefix(p, slot) {
				break
			}
			patterns = append(patterns, strings.ReplaceAll(p, slot, "*"))
		}
	}
	ignore, err := CompileIgnore(patterns)
	if err != nil {
		return nil, errors.NewValidationError(fmt.Sprintf("invalid ignore pattern: %v", err)).WithField("build.command.ignore")
	}

	return &CommandProcess{
		platform:  platform,
		root:      root,
		outputDir: outputDir,
		run:       s.opts.Command.ExpandRun(platform, outputDir),
		opts:      s.opts,
		ignore:    ignore,
		logger:    s.opts.Logger.WithPlatform(platform).WithBuilder("command"),
		rebuild:   make(chan struct{}, 1),
		finished:  make(chan struct{}),
	}, nil
}

// outputIgnorePatterns returns the globs covering dir and its contents,
// relative to root. A dir outside root yields none.
func outputIgnorePatterns(root, dir string) []string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil
	}
	rel = glob.QuoteMeta(filepath.ToSlash(rel))
	return []string{rel, rel + "/**"}
}

// CommandProcess builds one platform by running a bundler command and
// collecting its output directory. In watch mode it rebuilds whenever files
// under the project root change.
type CommandProcess struct {
	platform  string
	root      string
	outputDir string
	run       string
	opts      CommandOptions
	ignore    *IgnoreList
	logger    *logging.Logger

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	out      chan Message
	rebuild  chan struct{}
	finished chan struct{}
}

// Start implements Process.
func (p *CommandProcess) Start(ctx context.Context) (<-chan Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil, fmt.Errorf("builder for %s already started", p.platform)
	}

	var watcher *Watcher
	if p.opts.Command.Watch {
		// Parents shared with other platforms must exist before any watcher
		// sees them appear.
		if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
			return nil, errors.NewBuildError("failed to prepare output directory", err).WithPlatform(p.platform)
		}
		w, err := NewWatcher(p.root, p.ignore, p.opts.Command.Debounce(), p.logger)
		if err != nil {
			return nil, errors.NewBuildError("failed to watch project", err).WithPlatform(p.platform)
		}
		watcher = w
	}

	ctx, p.cancel = context.WithCancel(ctx)
	p.started = true
	p.out = make(chan Message, 16)

	go p.loop(ctx, watcher)

	return p.out, nil
}

func (p *CommandProcess) loop(ctx context.Context, watcher *Watcher) {
	defer close(p.finished)
	defer close(p.out)

	if watcher != nil {
		go watcher.Run(func(changed []string) {
			p.logger.Debug("files changed", "count", len(changed), "first", changed[0])
			select {
			case p.rebuild <- struct{}{}:
			default:
			}
		})
		defer func() {
			watcher.Stop()
			<-watcher.Done()
		}()
	}

	p.cycle(ctx)
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.rebuild:
			if ctx.Err() != nil {
				return
			}
			p.out <- Started{Reason: ReasonInvalid}
			p.cycle(ctx)
		}
	}
}

// cycle runs one build and always ends it with Failed or Done.
func (p *CommandProcess) cycle(ctx context.Context) {
	start := time.Now()
	p.out <- Progress{Total: 1, Completed: 0, Message: "running " + p.run}

	if err := p.prepareOutputDir(); err != nil {
		p.out <- Failed{Err: errors.NewBuildError("failed to prepare output directory", err).WithPlatform(p.platform)}
		return
	}

	code, tail, err := p.runCommand(ctx)
	if ctx.Err() != nil {
		p.out <- Failed{Err: errors.NewProcessTerminatedError(code, ctx.Err()).WithPlatform(p.platform)}
		return
	}
	if err != nil {
		msg := "failed to run build command"
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			msg = fmt.Sprintf("build command exited with code %d", code)
		}
		p.logger.Warn("build failed", "exit_code", code)
		p.out <- Failed{Err: errors.NewBuildError(msg, err).WithPlatform(p.platform).WithStack(strings.Join(tail, "\n"))}
		return
	}

	assets, err := ReadOutputDir(p.outputDir)
	if err != nil {
		p.out <- Failed{Err: errors.NewBuildError("failed to read build output", err).WithPlatform(p.platform)}
		return
	}

	elapsed := time.Since(start)
	p.logger.Info("build finished", "assets", len(assets), "duration_ms", elapsed.Milliseconds())
	p.out <- Progress{Total: 1, Completed: 1, Message: "done"}
	p.out <- Done{
		Assets: assets,
		Stats: Stats{
			"platform":   p.platform,
			"durationMs": elapsed.Milliseconds(),
			"assets":     len(assets),
		},
	}
}

// prepareOutputDir empties the output directory so a build's asset set is
// exactly what the command wrote.
func (p *CommandProcess) prepareOutputDir() error {
	if err := os.RemoveAll(p.outputDir); err != nil {
		return err
	}
	return os.MkdirAll(p.outputDir, 0o755)
}

func (p *CommandProcess) runCommand(ctx context.Context) (int, []string, error) {
	args := append(append([]string(nil), p.opts.Shell[1:]...), p.run)
	cmd := exec.CommandContext(ctx, p.opts.Shell[0], args...)
	cmd.Dir = p.root
	cmd.Env = append(os.Environ(),
		EnvPlatform+"="+p.platform,
		EnvOutputDir+"="+p.outputDir,
	)
	cmd.Env = append(cmd.Env, p.opts.Env...)
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = stopGrace

	// exec copies into these, so WaitDelay also bounds output held open by
	// grandchildren.
	outR, outW := io.Pipe()
	errR, errW := io.Pipe()
	cmd.Stdout = outW
	cmd.Stderr = errW

	p.logger.Debug("running build command", "command", p.run)
	if err := cmd.Start(); err != nil {
		_ = outW.Close()
		_ = errW.Close()
		return -1, nil, err
	}

	tail := &outputTail{max: tailLines}
	var readers conc.WaitGroup
	readers.Go(func() { p.readOutput(outR, tail) })
	readers.Go(func() { p.readOutput(errR, tail) })

	err := cmd.Wait()
	_ = outW.Close()
	_ = errW.Close()
	readers.Wait()

	return exitCodeOf(cmd, err), tail.lines(), err
}

func (p *CommandProcess) readOutput(r io.Reader, tail *outputTail) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLogLine)
	for scanner.Scan() {
		entry, ok := ParseLogLine(scanner.Text(), time.Now())
		if !ok {
			continue
		}
		tail.add(entry.Text())
		if p.opts.OnLog != nil {
			p.opts.OnLog(p.platform, entry)
		}
	}
	// An overlong line stops the scanner; keep the writer unblocked.
	_, _ = io.Copy(io.Discard, r)
}

// Stop implements Process.
func (p *CommandProcess) Stop() error {
	p.mu.Lock()
	started, cancel := p.started, p.cancel
	p.mu.Unlock()

	if !started {
		return nil
	}
	cancel()
	<-p.finished
	p.logger.Info("builder stopped")
	return nil
}

// outputTail keeps the last max lines of command output.
type outputTail struct {
	mu  sync.Mutex
	max int
	buf []string
}

func (t *outputTail) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, line)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
}

func (t *outputTail) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.buf...)
}

// ReadOutputDir loads every file under dir as an Asset named by its
// slash-separated path relative to dir. A file X with a sibling X.map gets
// info.related.sourceMap = "X.map".
func ReadOutputDir(dir string) ([]Asset, error) {
	files := make(map[string]bool)
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files[rel] = true
		names = append(names, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}

	assets := make([]Asset, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			return nil, err
		}
		info := map[string]any{}
		if !strings.HasSuffix(name, SourceMapSuffix) && files[name+SourceMapSuffix] {
			info["related"] = map[string]any{"sourceMap": name + SourceMapSuffix}
		}
		assets = append(assets, Asset{Filename: name, Data: data, Info: info})
	}
	return assets, nil
}
