// Package index deserialises the four-file binary index format (primary
// keys, vocabulary, vocabulary strings, postings) in either of its two
// on-disk layouts, and exposes vocabulary lookup and segment-list
// extraction to the query processor.
package index

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/impactrank/impactrank/internal/codec"
	"github.com/impactrank/impactrank/internal/primitive"
	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

// Paths names the four on-disk index files.
type Paths struct {
	DocList    string
	Vocab      string
	VocabTerms string
	Postings   string
}

// DefaultPaths returns the conventional file names rooted at dir.
func DefaultPaths(dir string) Paths {
	join := func(name string) string {
		if dir == "" {
			return name
		}
		return dir + string(os.PathSeparator) + name
	}
	return Paths{
		DocList:    join("CIdoclist.bin"),
		Vocab:      join("CIvocab.bin"),
		VocabTerms: join("CIvocab_terms.bin"),
		Postings:   join("CIpostings.bin"),
	}
}

// Metadata is what postings_details returns for a vocabulary hit.
type Metadata struct {
	Term           string
	PostingsOffset uint64
	Impacts        uint64
}

// SegmentHeader describes one impact segment of a term's postings list.
type SegmentHeader struct {
	Impact           primitive.Impact
	Offset           uint64
	End              uint64
	SegmentFrequency uint32
}

type vocabEntry struct {
	term           string
	postingsOffset uint64
	impacts        uint64
}

// Reader is an immutable, loaded index. It is safe for concurrent use by
// any number of readers once Load has returned successfully; nothing on
// Reader mutates after construction.
type Reader struct {
	version       int
	documentCount uint64
	primaryKeys   []string
	vocab         []vocabEntry
	postings      []byte
	codecImpl     codec.Codec
	codecName     string
}

// Load reads all four index files according to the given layout version
// (1 or 2) and returns an immutable Reader.
func Load(version int, paths Paths) (*Reader, error) {
	if version != 1 && version != 2 {
		return nil, apperrors.Newf(apperrors.BadIndexVersion, "unsupported index version %d", version)
	}

	postings, err := os.ReadFile(paths.Postings)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "reading postings file", err)
	}
	if len(postings) == 0 {
		return nil, apperrors.New(apperrors.Io, "postings file is empty")
	}
	c, err := codec.ByIdentifier(postings[0])
	if err != nil {
		return nil, err
	}

	docListBytes, err := os.ReadFile(paths.DocList)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "reading primary key file", err)
	}
	vocabBytes, err := os.ReadFile(paths.Vocab)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "reading vocabulary file", err)
	}
	vocabTermsBytes, err := os.ReadFile(paths.VocabTerms)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "reading vocabulary terms file", err)
	}

	var primaryKeys []string
	var documentCount uint64
	var vocab []vocabEntry

	switch version {
	case 1:
		primaryKeys, documentCount, err = readPrimaryKeysV1(docListBytes)
		if err != nil {
			return nil, err
		}
		vocab, err = readVocabV1(vocabBytes, vocabTermsBytes)
		if err != nil {
			return nil, err
		}
	case 2:
		primaryKeys, documentCount, err = readPrimaryKeysV2(docListBytes)
		if err != nil {
			return nil, err
		}
		vocab, err = readVocabV2(vocabBytes, vocabTermsBytes)
		if err != nil {
			return nil, err
		}
	}

	if documentCount > primitive.MaxDocumentCount {
		return nil, apperrors.Newf(apperrors.TooManyDocuments, "document_count %d exceeds maximum %d", documentCount, primitive.MaxDocumentCount)
	}

	return &Reader{
		version:       version,
		documentCount: documentCount,
		primaryKeys:   primaryKeys,
		vocab:         vocab,
		postings:      postings, // segment/vocab offsets are relative to the start of the postings file, identifier byte included
		codecImpl:     c,
		codecName:     c.Name(),
	}, nil
}

// DocumentCount returns the number of documents in the collection.
func (r *Reader) DocumentCount() uint64 { return r.documentCount }

// Version returns the on-disk layout version this reader was loaded with.
func (r *Reader) Version() int { return r.version }

// Codec returns the integer codec named by the postings file's identifier
// byte.
func (r *Reader) Codec() codec.Codec { return r.codecImpl }

// CodecName returns the human-readable codec name, for diagnostics.
func (r *Reader) CodecName() string { return r.codecName }

// PrimaryKey returns the external document identifier for docid, or false
// if docid is out of range.
func (r *Reader) PrimaryKey(docid primitive.DocID) (string, bool) {
	if uint64(docid) >= uint64(len(r.primaryKeys)) {
		return "", false
	}
	return r.primaryKeys[docid], true
}

// PostingsDetails performs a binary search over the vocabulary for term,
// respecting the shorter-then-lexicographic order, and returns its
// metadata. ok is false if the term is not present.
func (r *Reader) PostingsDetails(term string) (meta Metadata, ok bool) {
	n := len(r.vocab)
	i := sort.Search(n, func(i int) bool {
		return !primitive.TermLess(r.vocab[i].term, term)
	})
	if i >= n || r.vocab[i].term != term {
		return Metadata{}, false
	}
	e := r.vocab[i]
	return Metadata{Term: e.term, PostingsOffset: e.postingsOffset, Impacts: e.impacts}, true
}

// GetSegmentList decodes all of meta's segment headers, scaling each
// impact by queryFrequency, and returns them along with the smallest and
// largest scaled impact and the sum of segment_frequency across all
// segments (the term's document frequency within this query).
func (r *Reader) GetSegmentList(meta Metadata, queryFrequency uint32) (headers []SegmentHeader, smallestImpact, largestImpact primitive.Impact, documentFrequency uint64, err error) {
	var raw []SegmentHeader
	switch r.version {
	case 1:
		raw, err = r.segmentHeadersV1(meta)
	case 2:
		raw, err = r.segmentHeadersV2(meta)
	default:
		err = apperrors.Newf(apperrors.BadIndexVersion, "unsupported index version %d", r.version)
	}
	if err != nil {
		return nil, 0, 0, 0, err
	}

	headers = make([]SegmentHeader, len(raw))
	smallestImpact = ^primitive.Impact(0)
	for i, h := range raw {
		h.Impact *= queryFrequency
		headers[i] = h
		if h.Impact > largestImpact {
			largestImpact = h.Impact
		}
		if h.Impact < smallestImpact {
			smallestImpact = h.Impact
		}
		documentFrequency += uint64(h.SegmentFrequency)
	}
	if len(headers) == 0 {
		smallestImpact = 0
	}
	return headers, smallestImpact, largestImpact, documentFrequency, nil
}

// DecodeSegment decodes one segment's compressed docid list and pushes the
// resulting absolute docids into processor with the given (already scaled)
// impact. scratch is caller-owned decode working space, reused across
// segments and queries by a single worker; it must have length at least
// DecodeScratchLen(r.DocumentCount()). A malformed segment (offsets outside
// the postings blob) returns an error; callers must treat that as "this
// segment contributed nothing" rather than aborting the query.
func (r *Reader) DecodeSegment(h SegmentHeader, impact primitive.Impact, scratch []uint32, processor codec.Processor) error {
	if h.End < h.Offset || h.End > uint64(len(r.postings)) {
		return apperrors.New(apperrors.Malformed, "segment payload runs past end of postings")
	}
	buf := r.postings[h.Offset:h.End]
	return r.codecImpl.DecodeAndProcess(impact, int(h.SegmentFrequency), buf, scratch, processor)
}

// DecodeScratchLen returns the scratch buffer length DecodeSegment requires
// for an index with the given document count: the largest possible
// segment_frequency (bounded by document count) plus the codec's decode
// slack. A worker allocates one such buffer at construction and rewinds it
// across every segment and query it processes.
func DecodeScratchLen(documentCount uint64) int {
	return int(documentCount) + primitive.DecodeScratchSlack
}

// cStringAt reads a NUL-terminated string starting at offset within blob.
func cStringAt(blob []byte, offset int) (string, error) {
	if offset < 0 || offset > len(blob) {
		return "", fmt.Errorf("string offset %d out of range (blob length %d)", offset, len(blob))
	}
	end := bytes.IndexByte(blob[offset:], 0)
	if end < 0 {
		return string(blob[offset:]), nil
	}
	return string(blob[offset : offset+end]), nil
}
