// Package compression packs cached collection values with zstd.
//
// Every encoded value starts with a one-byte frame marker so small values can
// be stored raw and still be told apart from compressed ones on read.
package compression

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01

	// values below this size are not worth a zstd frame
	minCompressSize = 256
)

var ErrUnknownFrame = errors.New("compression: unknown frame marker")

type Compressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	enabled bool
}

// NewCompressor returns a compressor for the given level (1 fastest, 2 default,
// 3 better). A disabled compressor still frames values so data written with
// compression on stays readable after it is turned off.
func NewCompressor(level int, enabled bool) (*Compressor, error) {
	var encoderLevel zstd.EncoderLevel
	switch level {
	case 1:
		encoderLevel = zstd.SpeedFastest
	case 3:
		encoderLevel = zstd.SpeedBetterCompression
	default:
		encoderLevel = zstd.SpeedDefault
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	c := &Compressor{decoder: decoder, enabled: enabled}
	if !enabled {
		return c, nil
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(encoderLevel),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		decoder.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	c.encoder = encoder
	return c, nil
}

func (c *Compressor) Compress(data []byte) []byte {
	if !c.enabled || len(data) < minCompressSize {
		return frame(frameRaw, data)
	}

	compressed := c.encoder.EncodeAll(data, make([]byte, 1, len(data)/2+1))
	if len(compressed)-1 >= len(data) {
		return frame(frameRaw, data)
	}
	compressed[0] = frameZstd
	return compressed
}

func (c *Compressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrUnknownFrame)
	}

	switch data[0] {
	case frameRaw:
		return data[1:], nil
	case frameZstd:
		out, err := c.decoder.DecodeAll(data[1:], nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decode: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownFrame, data[0])
	}
}

func (c *Compressor) Close() error {
	if c.encoder != nil {
		c.encoder.Close()
	}
	if c.decoder != nil {
		c.decoder.Close()
	}
	return nil
}

func frame(marker byte, data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, marker)
	return append(out, data...)
}
