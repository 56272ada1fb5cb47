// Copyright (c) 2018, Postgres Professional

package pg

import (
	"fmt"
	"strconv"
	"strings"
)

// One WAL segment covers this many byte units when differencing two
// SEGMENT/OFFSET position strings.
const SegmentBytes = 0xFFFFFF

// ParseLSN converts a "SEGMENT/OFFSET" WAL position string into bytes.
func ParseLSN(s string) (int64, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed WAL position %q", s)
	}
	seg, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed WAL position %q: %v", s, err)
	}
	off, err := strconv.ParseInt(parts[1], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed WAL position %q: %v", s, err)
	}
	return seg*SegmentBytes + off, nil
}

// LagBytes is the byte distance from the local replayed position to the
// upstream's current one.
func LagBytes(upstream string, local string) (int64, error) {
	u, err := ParseLSN(upstream)
	if err != nil {
		return 0, err
	}
	l, err := ParseLSN(local)
	if err != nil {
		return 0, err
	}
	return u - l, nil
}
