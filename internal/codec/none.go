package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/impactrank/impactrank/internal/primitive"
)

// NoneCodec is the "None" codec: gap values are stored as raw 32-bit
// little-endian integers with no compression. It is the reference codec
// against which every other codec's output is checked, since its Decode is
// a direct memory reinterpretation.
type NoneCodec struct{}

func (NoneCodec) Name() string { return "none" }

func (NoneCodec) Decode(dst []uint32, count int, src []byte) error {
	need := count * 4
	if len(src) < need {
		return fmt.Errorf("none: source too short: need %d bytes, have %d", need, len(src))
	}
	if len(dst) < count {
		return fmt.Errorf("none: destination too small: need %d, have %d", count, len(dst))
	}
	for i := 0; i < count; i++ {
		dst[i] = binary.LittleEndian.Uint32(src[i*4:])
	}
	return nil
}

func (c NoneCodec) DecodeAndProcess(impact primitive.Impact, count int, src []byte, scratch []uint32, processor Processor) error {
	return decodeAndProcess(c, impact, count, src, scratch, processor)
}

// Encode is the None codec's inverse of Decode, used by tests to build
// synthetic segment payloads; the reader itself never encodes.
func (NoneCodec) Encode(gaps []uint32) []byte {
	out := make([]byte, len(gaps)*4)
	for i, v := range gaps {
		binary.LittleEndian.PutUint32(out[i*4:], v)
	}
	return out
}
