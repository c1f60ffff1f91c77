// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"log/slog"
	"time"
)

const (
	StageFetch     = "fetch"
	StageClassify  = "classify"
	StageReconcile = "reconcile"
)

// StageTiming is one observed stage of a sync cycle.
type StageTiming struct {
	Stream   Stream
	Stage    string
	Duration time.Duration
	Count    int
	Error    bool
}

// StageMetricsRecorder receives stage timings from the sync driver. The
// core binds no metrics backend; deployments plug in whatever they run.
type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

// StageMetricsRecorderFunc adapts a function to StageMetricsRecorder.
type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

// SlogStageRecorder logs stage timings at debug level.
func SlogStageRecorder(logger *slog.Logger) StageMetricsRecorder {
	return StageMetricsRecorderFunc(func(_ context.Context, t StageTiming) {
		logger.Debug("stage timing",
			"stream", t.Stream,
			"stage", t.Stage,
			"duration", t.Duration,
			"count", t.Count,
			"error", t.Error,
		)
	})
}
