package codec

import (
	"reflect"
	"testing"

	"github.com/impactrank/impactrank/internal/primitive"
)

func TestByIdentifier(t *testing.T) {
	cases := []struct {
		b       byte
		want    string
		wantErr bool
	}{
		{IdentifierNone, "none", false},
		{IdentifierQMXJASSv1, "qmx-jass-v1", false},
		{'x', "", true},
	}
	for _, tc := range cases {
		c, err := ByIdentifier(tc.b)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ByIdentifier(%q): expected error", tc.b)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ByIdentifier(%q): %v", tc.b, err)
		}
		if c.Name() != tc.want {
			t.Errorf("ByIdentifier(%q).Name() = %q, want %q", tc.b, c.Name(), tc.want)
		}
	}
}

func TestNoneRoundtrip(t *testing.T) {
	gaps := []uint32{1, 0, 4, 200, 65536, 1<<31 - 1}
	var c NoneCodec
	payload := c.Encode(gaps)
	dst := make([]uint32, len(gaps)+primitive.DecodeScratchSlack)
	if err := c.Decode(dst, len(gaps), payload); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst[:len(gaps)], gaps) {
		t.Errorf("roundtrip mismatch: got %v, want %v", dst[:len(gaps)], gaps)
	}
}

func TestQMXRoundtrip(t *testing.T) {
	gaps := make([]uint32, 300)
	for i := range gaps {
		gaps[i] = uint32(i * 37 % 5000)
	}
	var c QMXJASSv1Codec
	payload := c.Encode(gaps)
	dst := make([]uint32, len(gaps)+primitive.DecodeScratchSlack)
	if err := c.Decode(dst, len(gaps), payload); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(dst[:len(gaps)], gaps) {
		t.Errorf("roundtrip mismatch: got %v, want %v", dst[:len(gaps)], gaps)
	}
}

func TestQMXAllZero(t *testing.T) {
	gaps := make([]uint32, 10)
	var c QMXJASSv1Codec
	payload := c.Encode(gaps)
	dst := make([]uint32, len(gaps)+primitive.DecodeScratchSlack)
	if err := c.Decode(dst, len(gaps), payload); err != nil {
		t.Fatal(err)
	}
	for _, v := range dst[:len(gaps)] {
		if v != 0 {
			t.Fatalf("expected all zero, got %v", dst[:len(gaps)])
		}
	}
}

type captureProcessor struct {
	docids  []primitive.DocID
	impacts []primitive.Impact
}

func (c *captureProcessor) AddWithImpact(docid primitive.DocID, impact primitive.Impact) {
	c.docids = append(c.docids, docid)
	c.impacts = append(c.impacts, impact)
}

func TestDecodeAndProcessCumulativeSum(t *testing.T) {
	gaps := []uint32{5, 1, 1, 10}
	var c NoneCodec
	payload := c.Encode(gaps)
	var proc captureProcessor
	scratch := make([]uint32, len(gaps)+primitive.DecodeScratchSlack)
	if err := c.DecodeAndProcess(3, len(gaps), payload, scratch, &proc); err != nil {
		t.Fatal(err)
	}
	want := []primitive.DocID{5, 6, 7, 17}
	if !reflect.DeepEqual(proc.docids, want) {
		t.Errorf("docids = %v, want %v", proc.docids, want)
	}
	for _, impact := range proc.impacts {
		if impact != 3 {
			t.Errorf("impact = %d, want 3", impact)
		}
	}
}
