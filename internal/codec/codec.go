// Package codec defines the pluggable integer-decoding interface the index
// reader uses to turn a segment's compressed byte payload into a d1-gap
// sequence of document IDs, plus the two codecs the reader must recognise.
package codec

import (
	"fmt"

	"github.com/impactrank/impactrank/internal/primitive"
	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

// Processor receives decoded, cumulative-summed docids during the fused
// decode-and-process path. The accumulator engine implements this
// interface; codec never imports the accumulator package directly, to keep
// the dependency pointed the other way.
type Processor interface {
	AddWithImpact(docid primitive.DocID, impact primitive.Impact)
}

// Codec is a pair of pure functions over byte buffers. Implementations must
// never mutate src.
type Codec interface {
	// Name returns the codec's identifying name, for diagnostics.
	Name() string

	// Decode writes count gap-encoded u32 values from src into dst. The
	// caller guarantees len(dst) >= count+primitive.DecodeScratchSlack;
	// some codecs write scratch past the logical end of the output.
	Decode(dst []uint32, count int, src []byte) error

	// DecodeAndProcess decodes count values from src, applies the
	// mandatory d1-gap cumulative sum, and calls
	// processor.AddWithImpact(docid, impact) for each resulting docid, in
	// ascending docid order. It is a fused convenience over Decode plus
	// primitive.CumulativeSum; callers that don't need fusion may use
	// Decode directly. scratch is caller-owned decode working space, reused
	// across calls; the caller guarantees len(scratch) >= count+primitive.DecodeScratchSlack.
	DecodeAndProcess(impact primitive.Impact, count int, src []byte, scratch []uint32, processor Processor) error
}

// Identifier bytes recognised in the first byte of a postings file.
const (
	IdentifierNone     = 's'
	IdentifierQMXJASSv1 = 'q'
)

// ByIdentifier returns the Codec named by the postings file's leading
// identifier byte. An unrecognised byte is a fatal load error.
func ByIdentifier(b byte) (Codec, error) {
	switch b {
	case IdentifierNone:
		return NoneCodec{}, nil
	case IdentifierQMXJASSv1:
		return QMXJASSv1Codec{}, nil
	default:
		return nil, apperrors.Newf(apperrors.UnknownCodec, "unrecognised codec identifier byte %q", b)
	}
}

// decodeAndProcess is the shared fused-path implementation built on top of
// a codec's own Decode: decode into the caller-supplied scratch, cumulative-
// sum, then push through the processor. Both codecs in this package use it;
// a codec with a genuinely faster fused kernel would override it instead.
// scratch is never allocated here: per-worker resource discipline requires
// decode scratch be allocated once per worker and rewound across segments
// and queries, not allocated per call.
func decodeAndProcess(c Codec, impact primitive.Impact, count int, src []byte, scratch []uint32, processor Processor) error {
	if len(scratch) < count+primitive.DecodeScratchSlack {
		return fmt.Errorf("%s: decode_and_process: scratch too small: need %d, have %d", c.Name(), count+primitive.DecodeScratchSlack, len(scratch))
	}
	if err := c.Decode(scratch, count, src); err != nil {
		return fmt.Errorf("%s: decode_and_process: %w", c.Name(), err)
	}
	gaps := scratch[:count]
	primitive.CumulativeSum(gaps)
	for _, docid := range gaps {
		processor.AddWithImpact(docid, impact)
	}
	return nil
}
