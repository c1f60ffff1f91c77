// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// UpstreamTimeLayout is the only timestamp shape Nightscout delivers for
// entries, treatments and devicestatus records.
const UpstreamTimeLayout = "2006-01-02T15:04:05.000Z"

// WallClockLayout is the canonical minute-precision form used by wall-clock
// deployments. It sorts lexicographically in chronological order, which the
// store relies on for ORDER BY date.
const WallClockLayout = "2006-01-02-15-04"

// ErrMalformedTimestamp is returned when an upstream timestamp does not match
// UpstreamTimeLayout. Callers drop the single record, not the batch.
var ErrMalformedTimestamp = errors.New("malformed upstream timestamp")

// TimeFormat selects the canonical time representation for a deployment.
// A single deployment must use exactly one format for all streams; mixing
// formats breaks ordering.
type TimeFormat int

const (
	// FormatWallClock serializes timestamps as fixed-offset wall-clock
	// strings with minute precision (legacy SQLite deployments).
	FormatWallClock TimeFormat = iota
	// FormatEpoch serializes timestamps as decimal unix seconds
	// (MySQL/Postgres server deployments).
	FormatEpoch
)

// Timestamp is the canonical, totally ordered time value used for all
// admission comparisons and persisted as TEXT in the store.
type Timestamp struct {
	wall   time.Time
	format TimeFormat
}

// IsZero reports whether the timestamp carries no value (empty cursor).
func (t Timestamp) IsZero() bool { return t.wall.IsZero() }

// After reports whether t is strictly later than u.
func (t Timestamp) After(u Timestamp) bool { return t.wall.After(u.wall) }

// Before reports whether t is strictly earlier than u.
func (t Timestamp) Before(u Timestamp) bool { return t.wall.Before(u.wall) }

// Equal reports whether t and u denote the same canonical instant.
func (t Timestamp) Equal(u Timestamp) bool { return t.wall.Equal(u.wall) }

// Compare returns -1, 0 or +1 ordering t against u.
func (t Timestamp) Compare(u Timestamp) int { return t.wall.Compare(u.wall) }

// Time exposes the underlying instant, mainly for display code.
func (t Timestamp) Time() time.Time { return t.wall }

// String renders the canonical serialized form for the configured format.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	switch t.format {
	case FormatEpoch:
		return strconv.FormatInt(t.wall.Unix(), 10)
	default:
		return t.wall.Format(WallClockLayout)
	}
}

// Normalizer converts upstream timestamp strings into canonical Timestamps.
// Offset is the fixed wall-clock shift applied to the UTC upstream value
// (the source operated at UTC+3).
type Normalizer struct {
	Format TimeFormat
	Offset time.Duration
}

// Normalize parses an upstream timestamp and applies the deployment offset.
// Wall-clock deployments truncate to minute precision to match the canonical
// serialized form.
func (n Normalizer) Normalize(raw string) (Timestamp, error) {
	parsed, err := time.Parse(UpstreamTimeLayout, raw)
	if err != nil {
		return Timestamp{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, raw)
	}
	shifted := parsed.Add(n.Offset)
	if n.Format == FormatWallClock {
		shifted = shifted.Truncate(time.Minute)
	}
	return Timestamp{wall: shifted, format: n.Format}, nil
}

// Convert re-tags a timestamp with this normalizer's canonical format,
// keeping the instant. Used when mirroring rows between stores that use
// different representations.
func (n Normalizer) Convert(t Timestamp) Timestamp {
	return Timestamp{wall: t.wall, format: n.Format}
}

// ParseCanonical re-reads a canonical serialized timestamp (as stored in the
// database) back into a comparable Timestamp. Used for cursor loads.
func (n Normalizer) ParseCanonical(s string) (Timestamp, error) {
	if s == "" {
		return Timestamp{}, nil
	}
	switch n.Format {
	case FormatEpoch:
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		return Timestamp{wall: time.Unix(secs, 0).UTC(), format: n.Format}, nil
	default:
		parsed, err := time.Parse(WallClockLayout, s)
		if err != nil {
			return Timestamp{}, fmt.Errorf("%w: %q", ErrMalformedTimestamp, s)
		}
		return Timestamp{wall: parsed, format: n.Format}, nil
	}
}
