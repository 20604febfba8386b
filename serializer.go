package promptcache

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Serializer converts prompt payloads to and from the bytes stored in the
// cache. Implementations must be safe for concurrent use.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer serializes with jsoniter, which is 2-3x faster than the
// standard library while staying wire-compatible with encoding/json. It is
// the default: prompt documents arrive from the remote API as JSON.
type JSONSerializer struct{}

func (JSONSerializer) Marshal(v interface{}) ([]byte, error) {
	return jsonFast.Marshal(v)
}

func (JSONSerializer) Unmarshal(data []byte, v interface{}) error {
	return jsonFast.Unmarshal(data, v)
}

// MsgpackSerializer serializes with msgpack: more compact than JSON and
// faster for deeply nested prompt templates, at the cost of stored payloads
// no longer being human-readable.
type MsgpackSerializer struct{}

func (MsgpackSerializer) Marshal(v interface{}) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackSerializer) Unmarshal(data []byte, v interface{}) error {
	return msgpack.Unmarshal(data, v)
}

// CompressedSerializer layers gzip over any inner serializer. Useful for
// large chat templates where store bandwidth matters more than CPU.
type CompressedSerializer struct {
	Inner Serializer
	Level int // gzip level; 1=fastest, 9=best compression
}

// NewCompressedSerializer wraps inner with gzip.DefaultCompression.
func NewCompressedSerializer(inner Serializer) *CompressedSerializer {
	return &CompressedSerializer{Inner: inner, Level: gzip.DefaultCompression}
}

func (c *CompressedSerializer) Marshal(v interface{}) ([]byte, error) {
	data, err := c.Inner.Marshal(v)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *CompressedSerializer) Unmarshal(data []byte, v interface{}) error {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()

	decompressed, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return c.Inner.Unmarshal(decompressed, v)
}
