package storage

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeEmbedding converts a float32 vector to its binary representation.
// Uses little-endian byte order for consistency across backends.
func EncodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// DecodeEmbedding converts a binary representation back to a float32 vector.
// An empty buffer decodes to nil.
func DecodeEmbedding(buf []byte) ([]float32, error) {
	if len(buf) == 0 {
		return nil, nil
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("embedding buffer size %d is not a multiple of 4", len(buf))
	}
	embedding := make([]float32, len(buf)/4)
	for i := range embedding {
		embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return embedding, nil
}
