package compiler

import (
	"context"
	"mime"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/bundlr/internal/errors"
)

const (
	// BundleMarker identifies build outputs by name.
	BundleMarker = ".bundle"
	// BundleMimeType is served for every bundle.
	BundleMimeType = "text/javascript"
	// DefaultMimeType is served when an extension is unknown.
	DefaultMimeType = "text/plain"
)

// Types that some platforms' mime tables lack or disagree on.
var extraMimeTypes = map[string]string{
	".map":  "application/json",
	".js":   "text/javascript",
	".json": "application/json",
	".ttf":  "font/ttf",
	".otf":  "font/otf",
}

// IsBundle reports whether filename names build output rather than a
// project source file.
func IsBundle(filename string) bool {
	return strings.Contains(filename, BundleMarker)
}

// GetSource returns the contents of filename. Bundle filenames are served
// from platform's build output when a platform is given; anything else is
// read from the project root.
func (c *Compiler) GetSource(ctx context.Context, filename, platform string) ([]byte, error) {
	if platform != "" && IsBundle(filename) {
		a, err := c.GetAsset(ctx, filename, platform, nil)
		if err != nil {
			return nil, err
		}
		return a.Data, nil
	}

	p := filepath.Join(c.root, filepath.FromSlash(NormalizeFilename(filename)))
	data, err := afero.ReadFile(c.fs, p)
	if err != nil {
		return nil, errors.NewSourceError(filename, err)
	}
	return data, nil
}

// GetSourceMap returns the source map of filename on platform. The asset
// must name its map in info.related.sourceMap.
func (c *Compiler) GetSourceMap(ctx context.Context, filename, platform string) ([]byte, error) {
	a, err := c.GetAsset(ctx, filename, platform, nil)
	if err != nil {
		return nil, err
	}

	mapName, ok := SourceMapFilename(a.Info)
	if !ok {
		return nil, errors.NewSourceMapMissingError(a.Filename, platform)
	}

	m, err := c.GetAsset(ctx, mapName, platform, nil)
	if err != nil {
		return nil, err
	}
	return m.Data, nil
}

// GetMimeType returns the content type of filename, without parameters.
func (c *Compiler) GetMimeType(filename string) string {
	return MimeType(filename)
}

// MimeType is GetMimeType without a Compiler.
func MimeType(filename string) string {
	if strings.HasSuffix(filename, BundleMarker) {
		return BundleMimeType
	}

	ext := strings.ToLower(path.Ext(filepath.ToSlash(filename)))
	if ext == "" {
		return DefaultMimeType
	}
	if t, ok := extraMimeTypes[ext]; ok {
		return t
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return DefaultMimeType
	}
	if mediaType, _, err := mime.ParseMediaType(t); err == nil {
		return mediaType
	}
	return t
}
