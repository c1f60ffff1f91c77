// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"fmt"
	"log/slog"
)

// EngineConfig holds reconciliation parameters.
type EngineConfig struct {
	// IDFloor is the id assigned to the first record admitted into an
	// empty table.
	IDFloor int64
}

// DefaultEngineConfig returns reconciliation defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{IDFloor: 1}
}

// Engine decides which fetched records are new relative to the persisted
// cursor, assigns ids, computes derived fields and commits the delta.
// Streams are reconciled independently; a failure in one never aborts a
// sibling.
type Engine struct {
	store  Store
	config EngineConfig
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine over the given store.
func NewEngine(store Store, config EngineConfig, logger *slog.Logger) *Engine {
	if config.IDFloor <= 0 {
		config.IDFloor = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, config: config, logger: logger}
}

// ReconcileGlucose admits glucose samples newer than the persisted cursor.
// The fetched batch arrives newest-first and is processed oldest-first.
// Each admitted sample gets the delta against the previous persisted value;
// the very first sample of an empty store gets "0.0".
func (e *Engine) ReconcileGlucose(ctx context.Context, batch []GlucoseSample) StreamResult {
	result := StreamResult{Stream: StreamGlucose}

	// Top-2 so the previous VALUE is available, not just the id.
	cursor, err := e.store.LastGlucose(ctx, 2)
	if err != nil {
		e.logger.Error("glucose cursor load failed, aborting stream",
			"error", err, "retryable", isRetryableStoreError(err))
		result.Failed = len(batch)
		return result
	}

	lastID := e.config.IDFloor - 1
	var lastTS Timestamp
	var lastValue float64
	haveCursor := len(cursor) > 0
	if haveCursor {
		lastID = cursor[0].ID
		lastTS = cursor[0].Timestamp
		lastValue = cursor[0].Value
	}

	for i := len(batch) - 1; i >= 0; i-- {
		sample := batch[i]
		if haveCursor && !sample.Timestamp.After(lastTS) {
			result.Skipped++
			continue
		}

		if haveCursor {
			sample.Difference = FormatDelta(round1(sample.Value - lastValue))
		} else {
			// Empty-store bootstrap: no previous value to diff against.
			sample.Difference = "0.0"
		}
		sample.ID = NextID(lastID)

		if err := e.store.InsertGlucose(ctx, sample); err != nil {
			e.logger.Error("glucose commit failed, abandoning batch remainder",
				"error", err, "id", sample.ID, "date", sample.Timestamp.String())
			result.Failed++
			break
		}

		lastID = sample.ID
		lastTS = sample.Timestamp
		lastValue = sample.Value
		haveCursor = true
		result.Admitted++
	}

	return result
}

// ReconcileDose admits dose events at or after the persisted cursor. An
// incoming event with a timestamp exactly equal to the cursor is compared
// field-wise against the last persisted row: an identical candidate is a
// re-delivery of an in-progress event and is silently dropped.
func (e *Engine) ReconcileDose(ctx context.Context, batch []DoseEvent) StreamResult {
	result := StreamResult{Stream: StreamDose}

	last, err := e.store.LastDose(ctx)
	if err != nil {
		e.logger.Error("dose cursor load failed, aborting stream",
			"error", err, "retryable", isRetryableStoreError(err))
		result.Failed = len(batch)
		return result
	}

	lastID := e.config.IDFloor - 1
	var lastTS Timestamp
	var lastEvent *DoseEvent
	if last != nil {
		lastID = last.ID
		lastTS = last.Timestamp
		lastEvent = last
	}

	for i := len(batch) - 1; i >= 0; i-- {
		event := batch[i]
		if lastEvent != nil {
			if event.Timestamp.Before(lastTS) {
				result.Skipped++
				continue
			}
			if event.Timestamp.Equal(lastTS) && event.sameContent(*lastEvent) {
				e.logger.Debug("dropping duplicate dose candidate",
					"date", event.Timestamp.String(), "label", event.Label)
				result.Skipped++
				continue
			}
		}

		event.ID = NextID(lastID)

		if err := e.store.InsertDose(ctx, event); err != nil {
			e.logger.Error("dose commit failed, abandoning batch remainder",
				"error", err, "id", event.ID, "date", event.Timestamp.String())
			result.Failed++
			break
		}

		lastID = event.ID
		lastTS = event.Timestamp
		committed := event
		lastEvent = &committed
		result.Admitted++
	}

	return result
}

// ReconcileDevice writes the reduced device snapshot: INSERT on the
// first-ever write, merge-UPDATE of the singleton row thereafter. Absent
// snapshot fields keep their previously persisted values.
func (e *Engine) ReconcileDevice(ctx context.Context, snapshot DeviceSnapshot) StreamResult {
	result := StreamResult{Stream: StreamDevice}

	prev, err := e.store.LoadDevice(ctx)
	if err != nil {
		e.logger.Error("device row load failed, aborting stream",
			"error", err, "retryable", isRetryableStoreError(err))
		result.Failed = 1
		return result
	}

	if prev == nil {
		err = e.store.InsertDevice(ctx, snapshot)
	} else {
		err = e.store.UpdateDevice(ctx, snapshot.mergeInto(*prev))
	}
	if err != nil {
		e.logger.Error("device commit failed", "error", err)
		result.Failed = 1
		return result
	}

	result.Admitted = 1
	return result
}

// FormatDelta serializes a glucose delta with an explicit leading + for
// positive values and a bare numeral otherwise. Downstream trend-icon logic
// depends on this exact convention.
func FormatDelta(d float64) string {
	if d > 0 {
		return fmt.Sprintf("+%.1f", d)
	}
	if d == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", d)
}
