// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"fmt"
	"log/slog"
)

// MirrorResult tallies one backup pass.
type MirrorResult struct {
	Glucose int
	Dose    int
	Device  bool
}

// Mirror copies rows from one SQL store into another, converting canonical
// timestamps between deployment formats. The copy is incremental and
// idempotent: only rows with ids above the destination's last id move, so
// repeated runs admit nothing new. Intended for backing a local SQLite
// store up into a server database (or the reverse).
func Mirror(ctx context.Context, src, dst *SQLStore, logger *slog.Logger) (MirrorResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var result MirrorResult

	srcGlucose, err := src.AllGlucose(ctx)
	if err != nil {
		return result, fmt.Errorf("mirror: read source glucose: %w", err)
	}
	dstCursor, err := dst.LastGlucose(ctx, 1)
	if err != nil {
		return result, fmt.Errorf("mirror: read destination glucose cursor: %w", err)
	}
	var lastID int64
	if len(dstCursor) > 0 {
		lastID = dstCursor[0].ID
	}
	for _, sample := range srcGlucose {
		if sample.ID <= lastID {
			continue
		}
		sample.Timestamp = dst.normalizer.Convert(sample.Timestamp)
		if err := dst.InsertGlucose(ctx, sample); err != nil {
			return result, fmt.Errorf("mirror: copy glucose id %d: %w", sample.ID, err)
		}
		result.Glucose++
	}

	srcDose, err := src.AllDose(ctx)
	if err != nil {
		return result, fmt.Errorf("mirror: read source dose: %w", err)
	}
	lastDose, err := dst.LastDose(ctx)
	if err != nil {
		return result, fmt.Errorf("mirror: read destination dose cursor: %w", err)
	}
	lastID = 0
	if lastDose != nil {
		lastID = lastDose.ID
	}
	for _, event := range srcDose {
		if event.ID <= lastID {
			continue
		}
		event.Timestamp = dst.normalizer.Convert(event.Timestamp)
		if err := dst.InsertDose(ctx, event); err != nil {
			return result, fmt.Errorf("mirror: copy dose id %d: %w", event.ID, err)
		}
		result.Dose++
	}

	srcDevice, err := src.LoadDevice(ctx)
	if err != nil {
		return result, fmt.Errorf("mirror: read source device row: %w", err)
	}
	if srcDevice != nil {
		snapshot := *srcDevice
		snapshot.Timestamp = dst.normalizer.Convert(snapshot.Timestamp)
		snapshot.InsulinDate = convertTimeRef(dst.normalizer, snapshot.InsulinDate)
		snapshot.CannulaDate = convertTimeRef(dst.normalizer, snapshot.CannulaDate)
		snapshot.SensorDate = convertTimeRef(dst.normalizer, snapshot.SensorDate)

		dstDevice, err := dst.LoadDevice(ctx)
		if err != nil {
			return result, fmt.Errorf("mirror: read destination device row: %w", err)
		}
		if dstDevice == nil {
			err = dst.InsertDevice(ctx, snapshot)
		} else {
			err = dst.UpdateDevice(ctx, snapshot.mergeInto(*dstDevice))
		}
		if err != nil {
			return result, fmt.Errorf("mirror: copy device row: %w", err)
		}
		result.Device = true
	}

	logger.Info("mirror pass complete",
		"glucose", result.Glucose, "dose", result.Dose, "device", result.Device)
	return result, nil
}

func convertTimeRef(n Normalizer, t *Timestamp) *Timestamp {
	if t == nil {
		return nil
	}
	converted := n.Convert(*t)
	return &converted
}
