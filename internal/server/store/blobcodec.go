package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Compression identifies how a state blob is stored.
type Compression int

const (
	CompressionNone Compression = 0
	CompressionZstd Compression = 1
)

// Package-level encoder/decoder, safe for concurrent use.
var (
	encoder *zstd.Encoder
	decoder *zstd.Decoder
)

func init() {
	var err error
	encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("store: init zstd encoder: %v", err))
	}
	decoder, err = zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("store: init zstd decoder: %v", err))
	}
}

// compressBlob compresses a state blob for storage and returns the
// compressed bytes with the matching compression tag.
func compressBlob(data []byte) ([]byte, Compression) {
	compressed := encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	return compressed, CompressionZstd
}

// decompressBlob restores a stored state blob according to its
// compression tag. Rows written before compression was introduced are
// tagged CompressionNone and pass through unchanged.
func decompressBlob(data []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionZstd:
		return decoder.DecodeAll(data, nil)
	case CompressionNone:
		return data, nil
	default:
		return nil, fmt.Errorf("store: unsupported compression: %d", c)
	}
}
