package bolt

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Stored values carry a one-byte marker so raw and compressed documents can
// coexist in the same bucket.
const (
	markerRaw  = 0x00
	markerZstd = 0x01
)

// compressThreshold is the minimum document size worth compressing.
// Word documents are a few dozen bytes and stay raw; chunk documents
// (up to 8 KiB of letters) compress well.
const compressThreshold = 512

var errEmptyValue = errors.New("empty stored value")

// zstdEnc and zstdDec are package-level and concurrent-safe, following the
// usual klauspost/compress usage: one encoder/decoder pair per process.
var (
	zstdEnc *zstd.Encoder
	zstdDec *zstd.Decoder
)

func init() {
	var err error
	zstdEnc, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("zstd: init encoder: " + err.Error())
	}
	zstdDec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		panic("zstd: init decoder: " + err.Error())
	}
}

// encodeValue frames doc for storage, compressing when it is large enough.
func encodeValue(doc []byte) []byte {
	if len(doc) < compressThreshold {
		out := make([]byte, 1+len(doc))
		out[0] = markerRaw
		copy(out[1:], doc)
		return out
	}
	out := make([]byte, 1, 1+len(doc)/2)
	out[0] = markerZstd
	return zstdEnc.EncodeAll(doc, out)
}

// decodeValue unframes a stored value.
func decodeValue(v []byte) ([]byte, error) {
	if len(v) == 0 {
		return nil, errEmptyValue
	}
	switch v[0] {
	case markerRaw:
		return v[1:], nil
	case markerZstd:
		return zstdDec.DecodeAll(v[1:], nil)
	default:
		return nil, fmt.Errorf("unknown value marker 0x%02x", v[0])
	}
}
