package index

import (
	"encoding/binary"

	"github.com/impactrank/impactrank/internal/primitive"
	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

// v1SegmentHeaderSize is the packed size of deserialised_jass_v1's
// segment_header: uint16 impact, uint64 offset, uint64 end, uint32
// segment_frequency.
const v1SegmentHeaderSize = 2 + 8 + 8 + 4

// readPrimaryKeysV1 parses the v1 primary-key file. The document count is
// stored as a trailing u64 at the very end of the file; immediately before
// it sits a table of documentCount u64 offsets into the string blob that
// occupies the rest of the file. Each referenced string is NUL-terminated.
func readPrimaryKeysV1(data []byte) ([]string, uint64, error) {
	if len(data) < 8 {
		return nil, 0, apperrors.New(apperrors.Malformed, "primary key file shorter than the trailing document count")
	}
	n := len(data)
	count := binary.LittleEndian.Uint64(data[n-8:])
	tableBytes := int(count) * 8
	tableStart := n - 8 - tableBytes
	if tableStart < 0 {
		return nil, 0, apperrors.New(apperrors.Malformed, "primary key offsets table larger than the file")
	}
	blob := data[:tableStart]
	keys := make([]string, count)
	for i := uint64(0); i < count; i++ {
		off := binary.LittleEndian.Uint64(data[tableStart+int(i)*8:])
		s, err := cStringAt(blob, int(off))
		if err != nil {
			return nil, 0, apperrors.Wrap(apperrors.Malformed, "primary key offset out of range", err)
		}
		keys[i] = s
	}
	return keys, count, nil
}

// readVocabV1 parses the v1 vocabulary index file: fixed-width triples
// (term_offset, postings_offset, impacts), 24 bytes each, contiguous and
// already in vocabulary order.
func readVocabV1(vocabBytes, vocabTermsBytes []byte) ([]vocabEntry, error) {
	const tripleSize = 8 + 8 + 8
	if len(vocabBytes)%tripleSize != 0 {
		return nil, apperrors.Newf(apperrors.Malformed, "vocabulary file length %d is not a multiple of %d", len(vocabBytes), tripleSize)
	}
	n := len(vocabBytes) / tripleSize
	entries := make([]vocabEntry, n)
	for i := 0; i < n; i++ {
		base := i * tripleSize
		termOffset := binary.LittleEndian.Uint64(vocabBytes[base:])
		postingsOffset := binary.LittleEndian.Uint64(vocabBytes[base+8:])
		impacts := binary.LittleEndian.Uint64(vocabBytes[base+16:])
		term, err := cStringAt(vocabTermsBytes, int(termOffset))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Malformed, "vocabulary term offset out of range", err)
		}
		entries[i] = vocabEntry{term: term, postingsOffset: postingsOffset, impacts: impacts}
	}
	return entries, nil
}

// segmentHeadersV1 reaches the segment headers indirectly: postingsOffset
// points to an array of `impacts` u64 byte offsets, each naming the
// location of one packed segment_header record within the postings blob.
func (r *Reader) segmentHeadersV1(meta Metadata) ([]SegmentHeader, error) {
	headers := make([]SegmentHeader, meta.Impacts)
	for i := uint64(0); i < meta.Impacts; i++ {
		pointerPos := meta.PostingsOffset + i*8
		if pointerPos+8 > uint64(len(r.postings)) {
			return nil, apperrors.New(apperrors.Malformed, "segment pointer table runs past end of postings")
		}
		segOff := binary.LittleEndian.Uint64(r.postings[pointerPos:])
		h, err := parseV1SegmentHeader(r.postings, segOff)
		if err != nil {
			return nil, err
		}
		headers[i] = h
	}
	return headers, nil
}

func parseV1SegmentHeader(buf []byte, offset uint64) (SegmentHeader, error) {
	if offset+v1SegmentHeaderSize > uint64(len(buf)) {
		return SegmentHeader{}, apperrors.New(apperrors.Malformed, "segment header runs past end of postings")
	}
	impact := binary.LittleEndian.Uint16(buf[offset:])
	segOffset := binary.LittleEndian.Uint64(buf[offset+2:])
	end := binary.LittleEndian.Uint64(buf[offset+10:])
	freq := binary.LittleEndian.Uint32(buf[offset+18:])
	return SegmentHeader{
		Impact:           primitive.Impact(impact),
		Offset:           segOffset,
		End:              end,
		SegmentFrequency: freq,
	}, nil
}
