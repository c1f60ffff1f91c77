// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"errors"
	"sort"
	"testing"
	"time"
)

func TestNormalizer_Normalize_WallClock(t *testing.T) {
	n := Normalizer{Format: FormatWallClock, Offset: 3 * time.Hour}

	ts, err := n.Normalize("2025-03-01T12:30:45.123Z")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	// Offset applied, seconds truncated.
	if got := ts.String(); got != "2025-03-01-15-30" {
		t.Errorf("expected 2025-03-01-15-30, got %s", got)
	}
}

func TestNormalizer_Normalize_Epoch(t *testing.T) {
	n := Normalizer{Format: FormatEpoch, Offset: 3 * time.Hour}

	ts, err := n.Normalize("2025-03-01T12:30:45.123Z")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	want := time.Date(2025, 3, 1, 15, 30, 45, 0, time.UTC).Unix()
	got, err := n.ParseCanonical(ts.String())
	if err != nil {
		t.Fatalf("ParseCanonical failed: %v", err)
	}
	if got.Time().Unix() != want {
		t.Errorf("expected unix %d, got %d", want, got.Time().Unix())
	}
}

func TestNormalizer_Normalize_Malformed(t *testing.T) {
	n := Normalizer{Format: FormatWallClock}

	testCases := []string{
		"",
		"2025-03-01",
		"2025-03-01T12:30:45Z",     // missing milliseconds
		"2025-03-01 12:30:45.123Z", // wrong separator
		"not-a-timestamp",
	}
	for _, raw := range testCases {
		if _, err := n.Normalize(raw); !errors.Is(err, ErrMalformedTimestamp) {
			t.Errorf("Normalize(%q) = %v, want ErrMalformedTimestamp", raw, err)
		}
	}
}

func TestNormalizer_ParseCanonical_RoundTrip(t *testing.T) {
	for _, format := range []TimeFormat{FormatWallClock, FormatEpoch} {
		n := Normalizer{Format: format, Offset: 3 * time.Hour}

		ts, err := n.Normalize("2025-06-15T08:00:00.000Z")
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		parsed, err := n.ParseCanonical(ts.String())
		if err != nil {
			t.Fatalf("ParseCanonical failed: %v", err)
		}
		if !parsed.Equal(ts) {
			t.Errorf("format %d: round trip changed instant: %s vs %s", format, ts, parsed)
		}
	}
}

func TestNormalizer_ParseCanonical_Empty(t *testing.T) {
	n := Normalizer{Format: FormatWallClock}
	ts, err := n.ParseCanonical("")
	if err != nil {
		t.Fatalf("ParseCanonical(\"\") failed: %v", err)
	}
	if !ts.IsZero() {
		t.Error("empty canonical string should parse to zero timestamp")
	}
}

// The store sorts ORDER BY date on the serialized TEXT column, so the
// canonical form must sort lexicographically in chronological order.
func TestTimestamp_LexicographicOrder(t *testing.T) {
	n := Normalizer{Format: FormatWallClock}
	raws := []string{
		"2024-12-31T23:59:00.000Z",
		"2025-01-01T00:00:00.000Z",
		"2025-01-01T00:01:00.000Z",
		"2025-10-05T10:00:00.000Z",
	}

	var serialized []string
	for _, raw := range raws {
		ts, err := n.Normalize(raw)
		if err != nil {
			t.Fatalf("Normalize failed: %v", err)
		}
		serialized = append(serialized, ts.String())
	}

	if !sort.StringsAreSorted(serialized) {
		t.Errorf("canonical forms not lexicographically sorted: %v", serialized)
	}
}

func TestTimestamp_Ordering(t *testing.T) {
	n := Normalizer{Format: FormatWallClock}
	early, _ := n.Normalize("2025-01-01T10:00:00.000Z")
	late, _ := n.Normalize("2025-01-01T10:05:00.000Z")

	if !late.After(early) {
		t.Error("late.After(early) should be true")
	}
	if !early.Before(late) {
		t.Error("early.Before(late) should be true")
	}
	if late.After(late) {
		t.Error("After must be strict")
	}
	if !late.Equal(late) {
		t.Error("Equal on itself should be true")
	}
	if got := early.Compare(late); got != -1 {
		t.Errorf("Compare = %d, want -1", got)
	}
}

func TestNormalizer_Convert(t *testing.T) {
	wall := Normalizer{Format: FormatWallClock, Offset: 3 * time.Hour}
	epoch := Normalizer{Format: FormatEpoch, Offset: 3 * time.Hour}

	ts, err := wall.Normalize("2025-03-01T12:30:00.000Z")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	converted := epoch.Convert(ts)
	if !converted.Equal(ts) {
		t.Error("Convert must keep the instant")
	}
	if converted.String() == ts.String() {
		t.Error("Convert should change the serialized form")
	}
	back := wall.Convert(converted)
	if back.String() != ts.String() {
		t.Errorf("double conversion changed serialization: %s vs %s", ts, back)
	}
}
