package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

const (
	// CompressionThreshold is the minimum payload size before compression is considered.
	CompressionThreshold = 2048

	// MaxDecompressedSize is the hard cap during decompression to prevent compression bombs.
	MaxDecompressedSize = 1 << 20 // 1MB

	// CurrentVersion is the current envelope version.
	CurrentVersion = 1

	digestSize = 32
	headerSize = 2 + digestSize
)

// Encoding identifies how the envelope payload is stored.
type Encoding byte

const (
	EncodingIdentity Encoding = 0
	EncodingZstd     Encoding = 1
)

// Codec turns Records into the byte envelope persisted by stores:
//
//	[0]     version
//	[1]     encoding
//	[2:34]  BLAKE3-256 digest of the JSON record
//	[34:]   payload
//
// Encoder and decoder are goroutine-safe and can be reused.
type Codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	mu      sync.RWMutex
}

// NewCodec creates a new codec with pooled zstd encoder/decoder.
func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(MaxDecompressedSize))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &Codec{
		encoder: enc,
		decoder: dec,
	}, nil
}

// Close releases encoder/decoder resources.
func (c *Codec) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder != nil {
		c.encoder.Close()
		c.encoder = nil
	}
	if c.decoder != nil {
		c.decoder.Close()
		c.decoder = nil
	}
}

// Encode serializes rec, compressing the payload when it pays off.
func (c *Codec) Encode(rec Record) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling record: %w", err)
	}

	digest := blake3.Sum256(data)
	payload, encoding := c.compress(data)

	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, CurrentVersion, byte(encoding))
	out = append(out, digest[:]...)
	out = append(out, payload...)
	return out, nil
}

func (c *Codec) compress(data []byte) ([]byte, Encoding) {
	if len(data) < CompressionThreshold {
		return data, EncodingIdentity
	}

	c.mu.RLock()
	enc := c.encoder
	c.mu.RUnlock()

	if enc == nil {
		return data, EncodingIdentity
	}

	compressed := enc.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return data, EncodingIdentity
	}
	return compressed, EncodingZstd
}

// Decode parses an envelope produced by Encode.
// Every failure wraps ErrDecode.
func (c *Codec) Decode(b []byte) (Record, error) {
	if len(b) < headerSize {
		return Record{}, fmt.Errorf("%w: envelope too short (%d bytes)", ErrDecode, len(b))
	}
	if b[0] != CurrentVersion {
		return Record{}, fmt.Errorf("%w: unsupported version %d", ErrDecode, b[0])
	}

	data, err := c.decompress(Encoding(b[1]), b[headerSize:])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	digest := blake3.Sum256(data)
	if !bytes.Equal(digest[:], b[2:headerSize]) {
		return Record{}, fmt.Errorf("%w: digest mismatch", ErrDecode)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return rec, nil
}

func (c *Codec) decompress(encoding Encoding, payload []byte) ([]byte, error) {
	switch encoding {
	case EncodingIdentity:
		return payload, nil
	case EncodingZstd:
	default:
		return nil, fmt.Errorf("unsupported encoding: %d", encoding)
	}

	c.mu.RLock()
	dec := c.decoder
	c.mu.RUnlock()

	if dec == nil {
		return nil, errors.New("decoder not initialized")
	}

	decompressed, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	return decompressed, nil
}
