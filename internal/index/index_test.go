package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func u16(v uint16) []byte {
	b := make([]byte, 2)
	binary.LittleEndian.PutUint16(b, v)
	return b
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func TestLoadV1(t *testing.T) {
	dir := t.TempDir()

	// doclist: blob "a\0bb\0ccc\0" + offsets[0,2,5] + count=3
	var doclist []byte
	doclist = append(doclist, "a\x00bb\x00ccc\x00"...)
	doclist = append(doclist, u64(0)...)
	doclist = append(doclist, u64(2)...)
	doclist = append(doclist, u64(5)...)
	doclist = append(doclist, u64(3)...)

	// postings: 's' + pointer table (2 entries at offsets 17, 39) + two packed headers
	var postings []byte
	postings = append(postings, 's')
	postings = append(postings, u64(17)...)
	postings = append(postings, u64(39)...)
	// header1 at 17: impact=5, offset=100, end=104, freq=3
	postings = append(postings, u16(5)...)
	postings = append(postings, u64(100)...)
	postings = append(postings, u64(104)...)
	postings = append(postings, u32(3)...)
	// header2 at 39: impact=7, offset=200, end=210, freq=2
	postings = append(postings, u16(7)...)
	postings = append(postings, u64(200)...)
	postings = append(postings, u64(210)...)
	postings = append(postings, u32(2)...)
	postings = append(postings, make([]byte, 512)...) // padding so offset/end stay in range

	// vocab: one triple (termOffset=0, postingsOffset=1, impacts=2)
	var vocab []byte
	vocab = append(vocab, u64(0)...)
	vocab = append(vocab, u64(1)...)
	vocab = append(vocab, u64(2)...)

	vocabTerms := []byte("cat\x00")

	paths := Paths{
		DocList:    writeFile(t, dir, "CIdoclist.bin", doclist),
		Vocab:      writeFile(t, dir, "CIvocab.bin", vocab),
		VocabTerms: writeFile(t, dir, "CIvocab_terms.bin", vocabTerms),
		Postings:   writeFile(t, dir, "CIpostings.bin", postings),
	}

	r, err := Load(1, paths)
	if err != nil {
		t.Fatal(err)
	}
	if r.DocumentCount() != 3 {
		t.Fatalf("document count = %d, want 3", r.DocumentCount())
	}
	if r.CodecName() != "none" {
		t.Fatalf("codec = %q, want none", r.CodecName())
	}
	for i, want := range []string{"a", "bb", "ccc"} {
		got, ok := r.PrimaryKey(uint32(i))
		if !ok || got != want {
			t.Errorf("PrimaryKey(%d) = (%q, %v), want (%q, true)", i, got, ok, want)
		}
	}

	meta, ok := r.PostingsDetails("cat")
	if !ok {
		t.Fatal("expected term 'cat' to be found")
	}
	if meta.Impacts != 2 {
		t.Fatalf("impacts = %d, want 2", meta.Impacts)
	}

	headers, smallest, largest, docFreq, err := r.GetSegmentList(meta, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(headers))
	}
	if headers[0].Impact != 15 || headers[1].Impact != 21 {
		t.Errorf("impacts = %d, %d, want 15, 21", headers[0].Impact, headers[1].Impact)
	}
	if smallest != 15 || largest != 21 {
		t.Errorf("smallest/largest = %d/%d, want 15/21", smallest, largest)
	}
	if docFreq != 5 {
		t.Errorf("docFreq = %d, want 5", docFreq)
	}

	_, ok = r.PostingsDetails("dog")
	if ok {
		t.Error("expected 'dog' to be absent")
	}
}

func TestLoadV2(t *testing.T) {
	dir := t.TempDir()

	var doclist []byte
	doclist = append(doclist, "a\x00bb\x00ccc\x00"...)
	doclist = append(doclist, u64(3)...)

	var postings []byte
	postings = append(postings, 'q')
	tuplesStart := len(postings)
	postings = append(postings, vbyteEncode(5)...)  // impact
	postings = append(postings, vbyteEncode(10)...) // offsetRel
	postings = append(postings, vbyteEncode(4)...)  // length
	postings = append(postings, vbyteEncode(3)...)  // freq
	postings = append(postings, vbyteEncode(7)...)  // impact
	postings = append(postings, vbyteEncode(20)...) // offsetRel
	postings = append(postings, vbyteEncode(6)...)  // length
	postings = append(postings, vbyteEncode(2)...)  // freq
	postings = append(postings, make([]byte, 64)...)

	var vocab []byte
	vocab = append(vocab, vbyteEncode(0)...) // termOffset
	vocab = append(vocab, vbyteEncode(uint64(tuplesStart))...)
	vocab = append(vocab, vbyteEncode(2)...) // impacts

	vocabTerms := []byte("cat\x00")

	paths := Paths{
		DocList:    writeFile(t, dir, "CIdoclist.bin", doclist),
		Vocab:      writeFile(t, dir, "CIvocab.bin", vocab),
		VocabTerms: writeFile(t, dir, "CIvocab_terms.bin", vocabTerms),
		Postings:   writeFile(t, dir, "CIpostings.bin", postings),
	}

	r, err := Load(2, paths)
	if err != nil {
		t.Fatal(err)
	}
	if r.CodecName() != "qmx-jass-v1" {
		t.Fatalf("codec = %q, want qmx-jass-v1", r.CodecName())
	}

	meta, ok := r.PostingsDetails("cat")
	if !ok {
		t.Fatal("expected term 'cat' to be found")
	}
	headers, smallest, largest, docFreq, err := r.GetSegmentList(meta, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(headers) != 2 {
		t.Fatalf("got %d headers, want 2", len(headers))
	}
	if headers[0].Impact != 10 || headers[1].Impact != 14 {
		t.Errorf("impacts = %d, %d, want 10, 14", headers[0].Impact, headers[1].Impact)
	}
	if smallest != 10 || largest != 14 {
		t.Errorf("smallest/largest = %d/%d, want 10/14", smallest, largest)
	}
	if docFreq != 5 {
		t.Errorf("docFreq = %d, want 5", docFreq)
	}
	for i, h := range headers {
		if h.End-h.Offset != uint64([]int{4, 6}[i]) {
			t.Errorf("header %d length = %d, want %d", i, h.End-h.Offset, []int{4, 6}[i])
		}
	}
}

func TestLoadBadVersion(t *testing.T) {
	if _, err := Load(3, Paths{}); err == nil {
		t.Fatal("expected an error for an unsupported version")
	}
}
