package primitive

// CumulativeSum turns a d1-gap sequence into absolute, ascending docids in
// place: gaps[0] is already absolute (per the d1-gap protocol the first
// docid in a segment is never gapped), every subsequent element is added to
// its predecessor's now-absolute value.
func CumulativeSum(gaps []DocID) {
	for i := 1; i < len(gaps); i++ {
		gaps[i] += gaps[i-1]
	}
}

// D1Gap is the inverse of CumulativeSum: it turns an ascending sequence of
// absolute docids into successive differences, in place. It exists for
// tests that need to build synthetic segment payloads and for verifying the
// roundtrip law between encode and decode.
func D1Gap(docids []DocID) {
	for i := len(docids) - 1; i >= 1; i-- {
		docids[i] -= docids[i-1]
	}
}
