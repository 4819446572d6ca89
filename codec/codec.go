// Package codec compresses and decompresses VPK chunks. Two block codecs are
// supported: LZHAM (the historical default, no framing) and ZSTD, which is
// framed with an 8-byte marker so the two can be told apart at decode time.
package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pg9182/tf2lzham"
)

// Marker is prefixed to ZSTD-compressed chunks. A stored chunk is ZSTD iff it
// is smaller than its uncompressed size and begins with this value
// (little-endian).
const Marker uint64 = 0x5244315F5F4D4150

// MarkerSize is the stored size of Marker.
const MarkerSize = 8

// zstdLevel is the fixed ZSTD compression level selected by the "zstd" token.
const zstdLevel = 6

// Method is a block codec.
type Method int

const (
	MethodLZHAM Method = iota
	MethodZSTD
)

func (m Method) String() string {
	switch m {
	case MethodLZHAM:
		return "lzham"
	case MethodZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Method(%d)", int(m))
	}
}

// Config selects the codec for a pack operation.
type Config struct {
	Method Method
	Level  string // the level token the method was selected with
}

// ParseLevel maps a compression level token to a codec config. The tokens
// fastest/faster/default/better/uber select LZHAM; the literal token "zstd"
// selects ZSTD at a fixed level. An empty token selects the LZHAM default.
func ParseLevel(token string) (Config, error) {
	switch token {
	case "zstd":
		return Config{Method: MethodZSTD, Level: token}, nil
	case "", "default":
		return Config{Method: MethodLZHAM, Level: "default"}, nil
	case "fastest", "faster", "better", "uber":
		return Config{Method: MethodLZHAM, Level: token}, nil
	default:
		return Config{}, fmt.Errorf("unknown compression level %q", token)
	}
}

// IsZstdFrame reports whether a stored chunk begins with the ZSTD marker.
func IsZstdFrame(b []byte) bool {
	return len(b) >= MarkerSize && binary.LittleEndian.Uint64(b) == Marker
}

// Compressor compresses and decompresses chunks for one codec config. It is
// safe for concurrent use; per-chunk scratch buffers are owned by the caller.
type Compressor struct {
	cfg  Config
	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// New creates a Compressor. The ZSTD decoder is always initialized since
// decode-side codec detection is per chunk, not per config.
func New(cfg Config) (*Compressor, error) {
	c := &Compressor{cfg: cfg}
	var err error
	if c.zdec, err = zstd.NewReader(nil); err != nil {
		return nil, fmt.Errorf("init zstd decoder: %w", err)
	}
	if cfg.Method == MethodZSTD {
		c.zenc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(zstdLevel)))
		if err != nil {
			return nil, fmt.Errorf("init zstd encoder: %w", err)
		}
	}
	return c, nil
}

// Config returns the config the Compressor was created with.
func (c *Compressor) Config() Config {
	return c.cfg
}

// Compress compresses src with the configured method into scratch. It returns
// the stored bytes (marker included for ZSTD) and whether the compressed form
// is kept: a result is kept only when it is strictly smaller than src, so a
// false return means the chunk must be stored raw. The returned slice aliases
// scratch and is only valid until the next call with the same scratch.
func (c *Compressor) Compress(scratch, src []byte) ([]byte, bool) {
	switch c.cfg.Method {
	case MethodZSTD:
		if cap(scratch) < MarkerSize {
			scratch = make([]byte, MarkerSize, MarkerSize+len(src))
		}
		scratch = scratch[:MarkerSize]
		binary.LittleEndian.PutUint64(scratch, Marker)
		out := c.zenc.EncodeAll(src, scratch)
		if len(out) < len(src) {
			return out, true
		}
		return nil, false
	default:
		if cap(scratch) < len(src) {
			scratch = make([]byte, len(src))
		}
		n, _, _, err := tf2lzham.Compress(scratch[:len(src)], src)
		if err == nil && n < len(src) {
			return scratch[:n], true
		}
		// compression failure is indistinguishable from incompressible data
		// here; the caller stores the chunk raw either way
		return nil, false
	}
}

// Decompress decodes a stored chunk of known uncompressed size into scratch.
// The codec is detected from the stored bytes: the ZSTD marker selects ZSTD,
// anything else is LZHAM. Callers must not pass raw (uncompressed) chunks.
func (c *Compressor) Decompress(scratch, src []byte, uncompressedSize uint64) ([]byte, error) {
	if IsZstdFrame(src) {
		if cap(scratch) > 0 {
			scratch = scratch[:0]
		}
		out, err := c.zdec.DecodeAll(src[MarkerSize:], scratch)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress chunk: %w", err)
		}
		if uint64(len(out)) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress chunk: expected %d bytes, got %d", uncompressedSize, len(out))
		}
		return out, nil
	}
	if uint64(cap(scratch)) < uncompressedSize {
		scratch = make([]byte, uncompressedSize)
	}
	dst := scratch[:uncompressedSize]
	n, _, _, err := tf2lzham.Decompress(dst, src)
	if err != nil {
		return nil, fmt.Errorf("lzham decompress chunk: %w", err)
	}
	if uint64(n) != uncompressedSize {
		return nil, fmt.Errorf("lzham decompress chunk: expected %d bytes, got %d", uncompressedSize, n)
	}
	return dst, nil
}
