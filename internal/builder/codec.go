package builder

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/Iron-Ham/bundlr/internal/errors"
)

// Frame events on the worker event pipe.
const (
	FrameWatchRun = "watchRun"
	FrameInvalid  = "invalid"
	FrameProgress = "progress"
	FrameFailed   = "error"
	FrameDone     = "done"
)

// Asset payload encodings.
const (
	EncodingNone = ""
	EncodingZstd = "zstd"
)

// Frame is the wire form of one worker message. The same struct tags serve
// both codecs; fxamacker/cbor falls back to json tags.
type Frame struct {
	Event     string         `json:"event"`
	Total     int            `json:"total,omitempty"`
	Completed int            `json:"completed,omitempty"`
	Message   string         `json:"message,omitempty"`
	Error     *FrameError    `json:"error,omitempty"`
	Assets    []FrameAsset   `json:"assets,omitempty"`
	Stats     map[string]any `json:"stats,omitempty"`
}

// FrameError is the error payload of an "error" frame.
type FrameError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// FrameAsset is one asset of a "done" frame. Data is base64 in JSON and a
// byte string in CBOR.
type FrameAsset struct {
	Filename string         `json:"filename"`
	Data     []byte         `json:"data"`
	Encoding string         `json:"encoding,omitempty"`
	Info     map[string]any `json:"info,omitempty"`
}

// FrameDecoder reads frames from a stream.
type FrameDecoder interface {
	Decode(f *Frame) error
}

// FrameEncoder writes frames to a stream. Go workers use it to speak the
// event pipe protocol.
type FrameEncoder interface {
	Encode(f *Frame) error
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode

	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("builder: CBOR encoder initialization failed: " + err.Error())
	}

	// any-typed targets (info, stats) decode to map[string]any rather than
	// CBOR's default map[any]any.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("builder: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("builder: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("builder: zstd decoder initialization failed: " + err.Error())
	}
}

type jsonDecoder struct{ dec *json.Decoder }

func (d jsonDecoder) Decode(f *Frame) error { return d.dec.Decode(f) }

type jsonEncoder struct{ enc *json.Encoder }

func (e jsonEncoder) Encode(f *Frame) error { return e.enc.Encode(f) }

type cborDecoder struct{ dec *cbor.Decoder }

func (d cborDecoder) Decode(f *Frame) error { return d.dec.Decode(f) }

type cborEncoder struct{ enc *cbor.Encoder }

func (e cborEncoder) Encode(f *Frame) error { return e.enc.Encode(f) }

// NewFrameDecoder returns a decoder for codec ("json" or "cbor"; empty
// means json).
func NewFrameDecoder(codec string, r io.Reader) (FrameDecoder, error) {
	switch codec {
	case "", "json":
		return jsonDecoder{json.NewDecoder(r)}, nil
	case "cbor":
		return cborDecoder{cborDec.NewDecoder(r)}, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown frame codec %q", codec)).WithField("codec").WithValue(codec)
	}
}

// NewFrameEncoder returns an encoder for codec ("json" or "cbor"; empty
// means json). JSON frames are newline-terminated.
func NewFrameEncoder(codec string, w io.Writer) (FrameEncoder, error) {
	switch codec {
	case "", "json":
		return jsonEncoder{json.NewEncoder(w)}, nil
	case "cbor":
		return cborEncoder{cborEnc.NewEncoder(w)}, nil
	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown frame codec %q", codec)).WithField("codec").WithValue(codec)
	}
}

// CompressAsset returns a with its payload zstd-encoded.
func CompressAsset(a FrameAsset) FrameAsset {
	a.Data = zstdEncoder.EncodeAll(a.Data, nil)
	a.Encoding = EncodingZstd
	return a
}

// ToMessage converts a decoded frame into a Message. Unknown events and
// undecodable payloads are errors.
func (f *Frame) ToMessage(platform string) (Message, error) {
	switch f.Event {
	case FrameWatchRun, FrameInvalid:
		return Started{Reason: f.Event}, nil

	case FrameProgress:
		return Progress{Total: f.Total, Completed: f.Completed, Message: f.Message}, nil

	case FrameFailed:
		msg, stack := "unknown build error", ""
		if f.Error != nil {
			msg, stack = f.Error.Message, f.Error.Stack
		}
		return Failed{Err: errors.NewBuildError(msg, nil).WithPlatform(platform).WithStack(stack)}, nil

	case FrameDone:
		assets := make([]Asset, 0, len(f.Assets))
		for _, fa := range f.Assets {
			data, err := decodePayload(fa)
			if err != nil {
				return nil, err
			}
			assets = append(assets, Asset{Filename: fa.Filename, Data: data, Info: fa.Info})
		}
		return Done{Assets: assets, Stats: Stats(f.Stats)}, nil

	default:
		return nil, fmt.Errorf("unknown frame event %q", f.Event)
	}
}

func decodePayload(fa FrameAsset) ([]byte, error) {
	switch fa.Encoding {
	case EncodingNone:
		return fa.Data, nil
	case EncodingZstd:
		data, err := zstdDecoder.DecodeAll(fa.Data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode %s: %w", fa.Filename, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("asset %s: unknown encoding %q", fa.Filename, fa.Encoding)
	}
}
