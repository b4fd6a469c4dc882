package compiler

import (
	"encoding/hex"
	"path"
	"strings"

	"github.com/spf13/cast"
	"github.com/zeebo/blake3"

	"github.com/Iron-Ham/bundlr/internal/builder"
)

// Info keys read from asset metadata.
const (
	InfoRelated   = "related"
	InfoSourceMap = "sourceMap"
)

// Artifact is one output file of a successful build. It is never modified
// after ingestion.
type Artifact struct {
	Filename string
	Data     []byte
	Info     map[string]any
	// Digest is the hex BLAKE3-256 of Data.
	Digest string
}

// Size returns the payload length in bytes.
func (a Artifact) Size() int {
	return len(a.Data)
}

func newArtifact(asset builder.Asset) Artifact {
	sum := blake3.Sum256(asset.Data)
	info := asset.Info
	if info == nil {
		info = map[string]any{}
	}
	return Artifact{
		Filename: NormalizeFilename(asset.Filename),
		Data:     asset.Data,
		Info:     info,
		Digest:   hex.EncodeToString(sum[:]),
	}
}

// NormalizeFilename maps a builder or request filename onto the cache key
// form: slash separated, cleaned, without a leading "./" or "/".
func NormalizeFilename(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if name == "" {
		return ""
	}
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}

// SourceMapFilename returns the companion source map named in info under
// related.sourceMap. A list value yields its first entry.
func SourceMapFilename(info map[string]any) (string, bool) {
	related, err := cast.ToStringMapE(info[InfoRelated])
	if err != nil {
		return "", false
	}

	var name string
	switch v := related[InfoSourceMap].(type) {
	case nil:
		return "", false
	case string:
		name = v
	default:
		list, err := cast.ToStringSliceE(v)
		if err != nil || len(list) == 0 {
			return "", false
		}
		name = list[0]
	}

	name = NormalizeFilename(name)
	return name, name != ""
}

// buildCache ingests a Done message into a fresh cache.
func buildCache(assets []builder.Asset) map[string]Artifact {
	cache := make(map[string]Artifact, len(assets))
	for _, a := range assets {
		art := newArtifact(a)
		if art.Filename == "" {
			continue
		}
		cache[art.Filename] = art
	}
	return cache
}
