package index

import (
	"bytes"
	"encoding/binary"

	"github.com/impactrank/impactrank/internal/primitive"
	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

// readPrimaryKeysV2 parses the v2 primary-key file: NUL-delimited strings
// followed by a terminal u64 document count.
func readPrimaryKeysV2(data []byte) ([]string, uint64, error) {
	if len(data) < 8 {
		return nil, 0, apperrors.New(apperrors.Malformed, "primary key file shorter than the trailing document count")
	}
	n := len(data)
	count := binary.LittleEndian.Uint64(data[n-8:])
	blob := data[:n-8]

	parts := bytes.Split(blob, []byte{0})
	// A trailing delimiter produces one extra, empty final element.
	if len(parts) > 0 && len(parts[len(parts)-1]) == 0 {
		parts = parts[:len(parts)-1]
	}
	if uint64(len(parts)) != count {
		return nil, 0, apperrors.Newf(apperrors.Malformed, "primary key file names %d strings but declares document_count %d", len(parts), count)
	}
	keys := make([]string, count)
	for i, p := range parts {
		keys[i] = string(p)
	}
	return keys, count, nil
}

// readVocabV2 parses the v2 vocabulary index file: variable-byte-encoded
// (term_offset, postings_offset, impacts) triples packed contiguously,
// decoded until the buffer is exhausted.
func readVocabV2(vocabBytes, vocabTermsBytes []byte) ([]vocabEntry, error) {
	var entries []vocabEntry
	pos := 0
	for pos < len(vocabBytes) {
		termOffset, next, err := vbyteDecode(vocabBytes, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		postingsOffset, next, err := vbyteDecode(vocabBytes, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		impacts, next, err := vbyteDecode(vocabBytes, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		term, err := cStringAt(vocabTermsBytes, int(termOffset))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Malformed, "vocabulary term offset out of range", err)
		}
		entries = append(entries, vocabEntry{term: term, postingsOffset: postingsOffset, impacts: impacts})
	}
	return entries, nil
}

// segmentHeadersV2 decodes meta.Impacts consecutive variable-byte tuples
// (impact, offset, end_or_length, segment_frequency) starting at
// meta.PostingsOffset within the postings blob. offset is relative to the
// byte immediately following the tuple's own encoding; end_or_length is a
// length, not an absolute offset, added to the resolved absolute offset.
func (r *Reader) segmentHeadersV2(meta Metadata) ([]SegmentHeader, error) {
	headers := make([]SegmentHeader, 0, meta.Impacts)
	pos := int(meta.PostingsOffset)
	for i := uint64(0); i < meta.Impacts; i++ {
		impact, next, err := vbyteDecode(r.postings, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		offsetRel, next, err := vbyteDecode(r.postings, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		length, next, err := vbyteDecode(r.postings, pos)
		if err != nil {
			return nil, err
		}
		pos = next
		freq, next, err := vbyteDecode(r.postings, pos)
		if err != nil {
			return nil, err
		}
		pos = next

		absOffset := uint64(pos) + offsetRel
		headers = append(headers, SegmentHeader{
			Impact:           primitive.Impact(impact),
			Offset:           absOffset,
			End:              absOffset + length,
			SegmentFrequency: uint32(freq),
		})
	}
	return headers, nil
}
