// Package oracle loads the optional query-id -> rsv_at_k hint table used
// by the query processor's early-termination check.
package oracle

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	apperrors "github.com/impactrank/impactrank/pkg/errors"
)

// Table is an immutable, loaded oracle: a query id maps to the predicted
// minimum score needed to enter the top-k. It is safe for concurrent
// lookup by any number of workers.
type Table struct {
	thresholds map[string]uint32
}

// Load reads a plain-text oracle file, one `<query-id> <threshold>` pair
// per line, fields separated by whitespace.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "opening oracle file", err)
	}
	defer f.Close()

	thresholds := make(map[string]uint32)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, apperrors.Newf(apperrors.Malformed, "oracle line %q does not have exactly two fields", line)
		}
		v, err := strconv.ParseUint(fields[1], 10, 32)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Malformed, fmt.Sprintf("oracle threshold %q is not an integer", fields[1]), err)
		}
		thresholds[fields[0]] = uint32(v)
	}
	if err := scanner.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.Io, "reading oracle file", err)
	}
	return &Table{thresholds: thresholds}, nil
}

// Lookup returns the predicted rsv_at_k for queryID, clamped to at least
// 1. A miss defaults to 1 (no early-exit hint).
func (t *Table) Lookup(queryID string) uint32 {
	if t == nil {
		return 1
	}
	v, ok := t.thresholds[queryID]
	if !ok || v < 1 {
		return 1
	}
	return v
}
