package codec

import (
	"fmt"

	"github.com/impactrank/impactrank/internal/primitive"
)

// qmxBlockSize is the number of integers packed per block. The real QMX
// codec selects a SIMD word width per 128-integer block; this
// implementation keeps the same block size and the same "one bit-width
// selector per block" shape without claiming byte-for-byte compatibility
// with the vendor codec — the spec only requires that the identifier byte
// 'q' name this codec, not that its payload match the original bit layout.
const qmxBlockSize = 128

// QMXJASSv1Codec is the "QMX JASS v1" codec: an opaque, vendor-named
// bit-packing scheme. Each block of up to qmxBlockSize gap values is
// preceded by a one-byte bit-width selector (0-32) and packed at that
// width, least-significant-bit first within each byte.
type QMXJASSv1Codec struct{}

func (QMXJASSv1Codec) Name() string { return "qmx-jass-v1" }

func (QMXJASSv1Codec) Decode(dst []uint32, count int, src []byte) error {
	if len(dst) < count {
		return fmt.Errorf("qmx-jass-v1: destination too small: need %d, have %d", count, len(dst))
	}
	pos := 0
	written := 0
	for written < count {
		if pos >= len(src) {
			return fmt.Errorf("qmx-jass-v1: truncated block header at value %d", written)
		}
		width := int(src[pos])
		pos++
		blockLen := qmxBlockSize
		if count-written < blockLen {
			blockLen = count - written
		}
		if width == 0 {
			for i := 0; i < blockLen; i++ {
				dst[written+i] = 0
			}
			written += blockLen
			continue
		}
		nbytes := (blockLen*width + 7) / 8
		if pos+nbytes > len(src) {
			return fmt.Errorf("qmx-jass-v1: truncated block body: need %d bytes, have %d", nbytes, len(src)-pos)
		}
		unpackBits(src[pos:pos+nbytes], dst[written:written+blockLen], width)
		pos += nbytes
		written += blockLen
	}
	return nil
}

func (c QMXJASSv1Codec) DecodeAndProcess(impact primitive.Impact, count int, src []byte, scratch []uint32, processor Processor) error {
	return decodeAndProcess(c, impact, count, src, scratch, processor)
}

// Encode is the inverse of Decode, used by tests and by any future index
// writer to build synthetic QMX-JASS-v1 segment payloads.
func (QMXJASSv1Codec) Encode(gaps []uint32) []byte {
	var out []byte
	for start := 0; start < len(gaps); start += qmxBlockSize {
		end := start + qmxBlockSize
		if end > len(gaps) {
			end = len(gaps)
		}
		block := gaps[start:end]
		width := bitWidthOf(block)
		out = append(out, byte(width))
		if width == 0 {
			continue
		}
		out = append(out, packBits(block, width)...)
	}
	return out
}

// bitWidthOf returns the minimum number of bits needed to represent every
// value in block (0 if every value is zero).
func bitWidthOf(block []uint32) int {
	var max uint32
	for _, v := range block {
		if v > max {
			max = v
		}
	}
	width := 0
	for max != 0 {
		width++
		max >>= 1
	}
	return width
}

// packBits bit-packs values at the given width, least-significant-bit
// first within each output byte, padding the final byte with zero bits.
func packBits(values []uint32, width int) []byte {
	nbytes := (len(values)*width + 7) / 8
	out := make([]byte, nbytes)
	bitPos := 0
	for _, v := range values {
		for b := 0; b < width; b++ {
			if v&(1<<uint(b)) != 0 {
				out[bitPos/8] |= 1 << uint(bitPos%8)
			}
			bitPos++
		}
	}
	return out
}

// unpackBits is the inverse of packBits.
func unpackBits(src []byte, dst []uint32, width int) {
	bitPos := 0
	for i := range dst {
		var v uint32
		for b := 0; b < width; b++ {
			byteIdx := bitPos / 8
			if src[byteIdx]&(1<<uint(bitPos%8)) != 0 {
				v |= 1 << uint(b)
			}
			bitPos++
		}
		dst[i] = v
	}
}
