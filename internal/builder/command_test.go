package builder

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/bundlr/internal/config"
	"github.com/Iron-Ham/bundlr/internal/errors"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func startCommand(t *testing.T, root string, cc config.CommandConfig) (Process, <-chan Message) {
	t.Helper()
	requireShell(t)

	proc, err := NewCommandSpawner(CommandOptions{Root: root, Command: cc}).Spawn("ios")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	ch, err := proc.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = proc.Stop() })
	return proc, ch
}

// next returns the next message or fails after a timeout.
func next(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return m
	case <-time.After(20 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return nil
}

func TestCommandProcess_OneShotSuccess(t *testing.T) {
	root := t.TempDir()
	logs := &logRecorder{}

	requireShell(t)
	proc, err := NewCommandSpawner(CommandOptions{
		Root: root,
		Command: config.CommandConfig{
			Run: `mkdir -p "{output}/assets" && printf 'bundle-{platform}' > "{output}/index.bundle" && ` +
				`printf '{}' > "{output}/index.bundle.map" && printf 'png' > "{output}/assets/logo.png" && echo built`,
			OutputDir: filepath.Join("out", config.PlaceholderPlatform),
		},
		OnLog: logs.record,
	}).Spawn("ios")
	if err != nil {
		t.Fatalf("Spawn() error = %v", err)
	}
	ch, err := proc.Start(context.Background())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	msgs := collect(t, ch)
	if len(msgs) != 3 {
		t.Fatalf("got %d messages (%#v), want 3", len(msgs), msgs)
	}
	if p, ok := msgs[0].(Progress); !ok || p.Completed != 0 || !strings.Contains(p.Message, "bundle-ios") {
		t.Errorf("first message = %#v", msgs[0])
	}
	done, ok := msgs[2].(Done)
	if !ok {
		t.Fatalf("last message = %#v, want Done", msgs[2])
	}

	byName := make(map[string]Asset)
	for _, a := range done.Assets {
		byName[a.Filename] = a
	}
	if len(byName) != 3 {
		t.Fatalf("assets = %v", byName)
	}
	if string(byName["index.bundle"].Data) != "bundle-ios" {
		t.Errorf("index.bundle = %q", byName["index.bundle"].Data)
	}
	related, _ := byName["index.bundle"].Info["related"].(map[string]any)
	if related["sourceMap"] != "index.bundle.map" {
		t.Errorf("index.bundle info = %v", byName["index.bundle"].Info)
	}
	if _, ok := byName["assets/logo.png"]; !ok {
		t.Error("nested asset missing")
	}
	if done.Stats.GetInt("assets") != 3 || done.Stats.GetString("platform") != "ios" {
		t.Errorf("stats = %v", done.Stats)
	}

	var sawBuilt bool
	for _, e := range logs.snapshot() {
		if e.Text() == "built" {
			sawBuilt = true
		}
	}
	if !sawBuilt {
		t.Error("command output was not forwarded to OnLog")
	}
}

func TestCommandProcess_ClearsStaleOutput(t *testing.T) {
	root := t.TempDir()
	stale := filepath.Join(root, "out", "ios", "old.bundle")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, ch := startCommand(t, root, config.CommandConfig{
		Run:       `printf new > "{output}/index.bundle"`,
		OutputDir: "out/{platform}",
	})
	msgs := collect(t, ch)
	done := msgs[len(msgs)-1].(Done)
	if len(done.Assets) != 1 || done.Assets[0].Filename != "index.bundle" {
		t.Errorf("assets = %+v", done.Assets)
	}
}

func TestCommandProcess_Failure(t *testing.T) {
	_, ch := startCommand(t, t.TempDir(), config.CommandConfig{
		Run:       `echo "SyntaxError: Unexpected token" >&2; exit 4`,
		OutputDir: "out/{platform}",
	})

	msgs := collect(t, ch)
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	f, ok := msgs[1].(Failed)
	if !ok {
		t.Fatalf("last message = %#v, want Failed", msgs[1])
	}
	var be *errors.BuildError
	if !errors.As(f.Err, &be) {
		t.Fatalf("Err %T is not *BuildError", f.Err)
	}
	if !strings.Contains(be.Error(), "exited with code 4") {
		t.Errorf("Error() = %q", be.Error())
	}
	if !strings.Contains(be.Stack, "SyntaxError") {
		t.Errorf("Stack = %q", be.Stack)
	}
	if be.Terminated() {
		t.Error("failure reported as termination")
	}
}

func TestCommandProcess_StopMidBuild(t *testing.T) {
	proc, ch := startCommand(t, t.TempDir(), config.CommandConfig{
		Run:       "sleep 30",
		OutputDir: "out/{platform}",
	})

	if _, ok := next(t, ch).(Progress); !ok {
		t.Fatal("first message is not Progress")
	}

	stopped := make(chan struct{})
	go func() {
		_ = proc.Stop()
		close(stopped)
	}()

	msgs := collect(t, ch)
	<-stopped
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if f, ok := msgs[0].(Failed); !ok || !errors.Is(f.Err, errors.ErrProcessTerminated) {
		t.Errorf("message = %#v, want termination failure", msgs[0])
	}
}

func TestCommandProcess_WatchRebuilds(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}

	proc, ch := startCommand(t, root, config.CommandConfig{
		Run:        `cat src/*.js > "{output}/index.bundle" 2>/dev/null || true`,
		OutputDir:  ".out/{platform}",
		Watch:      true,
		DebounceMs: 20,
		Ignore:     []string{"**/.out/**"},
	})

	for {
		if _, ok := next(t, ch).(Done); ok {
			break
		}
	}

	if err := os.WriteFile(filepath.Join(src, "App.js"), []byte("app();"), 0o644); err != nil {
		t.Fatal(err)
	}

	if s, ok := next(t, ch).(Started); !ok || s.Reason != ReasonInvalid {
		t.Fatalf("expected Started{invalid} after change, got %#v", s)
	}
	var done Done
	for {
		m := next(t, ch)
		if d, ok := m.(Done); ok {
			done = d
			break
		}
		if f, ok := m.(Failed); ok {
			t.Fatalf("rebuild failed: %v", f.Err)
		}
	}
	if len(done.Assets) != 1 || string(done.Assets[0].Data) != "app();" {
		t.Errorf("rebuilt assets = %+v", done.Assets)
	}

	if err := proc.Stop(); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	collect(t, ch)
}

func TestCommandProcess_WatchIgnoresEveryPlatformOutput(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "src"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "App.js"), []byte("app();"), 0o644); err != nil {
		t.Fatal(err)
	}

	spawner := NewCommandSpawner(CommandOptions{Root: root, Command: config.CommandConfig{
		Run:        `cat src/*.js > "{output}/index.{platform}.bundle"`,
		OutputDir:  "dist/{platform}",
		Watch:      true,
		DebounceMs: 20,
	}})

	chans := make(map[string]<-chan Message)
	for _, platform := range []string{"ios", "android"} {
		proc, err := spawner.Spawn(platform)
		if err != nil {
			t.Fatalf("Spawn(%s) error = %v", platform, err)
		}
		ch, err := proc.Start(context.Background())
		if err != nil {
			t.Fatalf("Start(%s) error = %v", platform, err)
		}
		t.Cleanup(func() { _ = proc.Stop() })
		chans[platform] = ch
	}

	for platform, ch := range chans {
		for {
			m := next(t, ch)
			if _, ok := m.(Done); ok {
				break
			}
			if f, ok := m.(Failed); ok {
				t.Fatalf("%s: initial build failed: %v", platform, f.Err)
			}
		}
	}

	deadline := time.After(500 * time.Millisecond)
	for {
		select {
		case m := <-chans["ios"]:
			t.Fatalf("ios: unexpected %#v without source changes", m)
		case m := <-chans["android"]:
			t.Fatalf("android: unexpected %#v without source changes", m)
		case <-deadline:
			return
		}
	}
}

func TestCommandSpawner_OutputIgnore(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name      string
		outputDir string
		rel       string
		isDir     bool
		want      bool
	}{
		{"own output", "dist/{platform}", "dist/ios/index.bundle", false, true},
		{"other platform output", "dist/{platform}", "dist/android/index.bundle", false, true},
		{"other platform dir", "dist/{platform}", "dist/android", true, true},
		{"sibling source", "dist/{platform}", "src/App.js", false, false},
		{"platform in file name", "build/out-{platform}", "build/out-web/main.js", false, true},
		{"meta characters", "out[1]/{platform}", "out[1]/android/a.js", false, true},
		{"no placeholder", "dist", "dist/a.js", false, true},
		{"outside root", "../elsewhere/{platform}", "src/App.js", false, false},
		{"platform at root keeps sources", "{platform}", "src/App.js", false, false},
		{"platform at root own output", "{platform}", "ios/main.js", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, err := NewCommandSpawner(CommandOptions{Root: root, Command: config.CommandConfig{
				Run:       "true",
				OutputDir: tt.outputDir,
			}}).Spawn("ios")
			if err != nil {
				t.Fatalf("Spawn() error = %v", err)
			}
			if got := proc.(*CommandProcess).ignore.Match(tt.rel, tt.isDir); got != tt.want {
				t.Errorf("ignore.Match(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}
}

func TestCommandSpawner_Validation(t *testing.T) {
	root := t.TempDir()
	tests := []struct {
		name string
		cc   config.CommandConfig
	}{
		{"missing run", config.CommandConfig{OutputDir: "out"}},
		{"output is root", config.CommandConfig{Run: "true", OutputDir: "."}},
		{"bad ignore", config.CommandConfig{Run: "true", OutputDir: "out", Ignore: []string{"[unclosed"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCommandSpawner(CommandOptions{Root: root, Command: tt.cc}).Spawn("ios")
			if !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Spawn() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestReadOutputDir(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"index.bundle":     "js",
		"index.bundle.map": "{}",
		"orphan.map":       "{}",
		"img/a.png":        "png",
	}
	for name, data := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	assets, err := ReadOutputDir(dir)
	if err != nil {
		t.Fatalf("ReadOutputDir() error = %v", err)
	}
	if len(assets) != len(files) {
		t.Fatalf("got %d assets, want %d", len(assets), len(files))
	}
	for _, a := range assets {
		if string(a.Data) != files[a.Filename] {
			t.Errorf("%s data = %q", a.Filename, a.Data)
		}
		_, hasRelated := a.Info["related"]
		if want := a.Filename == "index.bundle"; hasRelated != want {
			t.Errorf("%s has related = %v, want %v", a.Filename, hasRelated, want)
		}
	}

	if _, err := ReadOutputDir(filepath.Join(dir, "missing")); err == nil {
		t.Error("ReadOutputDir() on missing dir succeeded")
	}
}

func TestOutputTail(t *testing.T) {
	tail := &outputTail{max: 3}
	for _, l := range []string{"a", "b", "c", "d", "e"} {
		tail.add(l)
	}
	if got := strings.Join(tail.lines(), ","); got != "c,d,e" {
		t.Errorf("lines() = %q, want c,d,e", got)
	}
}
