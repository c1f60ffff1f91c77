// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSequenceExhausted is returned when an id no longer fits the fixed-width
// legacy encoding (12 decimal digits). It is fatal to that stream's
// ingestion, not to the process.
var ErrSequenceExhausted = errors.New("sequence id exhausted")

// legacyIDLimit is the first id that cannot be encoded as xxxx:xxxx:xxxx.
const legacyIDLimit = 1_000_000_000_000

// NextID returns the next identifier in a strictly increasing sequence.
// Plain integers are the native scheme; the colon-grouped legacy form is a
// display transform only.
func NextID(last int64) int64 { return last + 1 }

// FormatLegacyID renders an integer id in the legacy zero-padded
// xxxx:xxxx:xxxx form used by older stores.
func FormatLegacyID(id int64) (string, error) {
	if id < 0 || id >= legacyIDLimit {
		return "", fmt.Errorf("%w: %d", ErrSequenceExhausted, id)
	}
	s := fmt.Sprintf("%012d", id)
	return s[0:4] + ":" + s[4:8] + ":" + s[8:12], nil
}

// ParseLegacyID reads either a plain integer or the colon-grouped legacy
// form back into an integer id.
func ParseLegacyID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.ReplaceAll(s, ":", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence id %q: %w", s, err)
	}
	return id, nil
}
