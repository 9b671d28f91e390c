package bulk

import (
	"encoding/json"
	"fmt"
)

// CodecVersion is the envelope version written by the codecs.
const CodecVersion = 1

// Codec encodes and decodes one record type to and from stream payloads.
type Codec[T any] interface {
	Encode(v T) ([]byte, error)
	Decode(data []byte) (T, error)
}

var (
	// CommandCodec encodes commands on the command stream.
	CommandCodec Codec[*Command] = jsonCodec[*Command]{kind: "command"}

	// StatusCodec encodes full and delta statuses on the status and done
	// streams and in the status store.
	StatusCodec Codec[*Status] = jsonCodec[*Status]{kind: "status"}

	// BucketCodec encodes buckets on the action streams.
	BucketCodec Codec[*Bucket] = jsonCodec[*Bucket]{kind: "bucket"}
)

// envelope tags every payload with its kind and format version so a consumer
// wired to the wrong stream fails loudly instead of decoding garbage.
type envelope struct {
	Version int             `json:"v"`
	Kind    string          `json:"kind"`
	Data    json.RawMessage `json:"data"`
}

type jsonCodec[T any] struct {
	kind string
}

func (c jsonCodec[T]) Encode(v T) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", c.kind, err)
	}

	out, err := json.Marshal(envelope{
		Version: CodecVersion,
		Kind:    c.kind,
		Data:    data,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", c.kind, err)
	}
	return out, nil
}

func (c jsonCodec[T]) Decode(data []byte) (T, error) {
	var zero T

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return zero, fmt.Errorf("failed to unmarshal %s envelope: %w", c.kind, err)
	}
	if env.Version != CodecVersion {
		return zero, fmt.Errorf("%w: %s v%d", ErrCodecVersion, c.kind, env.Version)
	}
	if env.Kind != c.kind {
		return zero, fmt.Errorf("expected %s record, got %q", c.kind, env.Kind)
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return zero, fmt.Errorf("empty %s record", c.kind)
	}

	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return zero, fmt.Errorf("failed to unmarshal %s: %w", c.kind, err)
	}
	return v, nil
}
