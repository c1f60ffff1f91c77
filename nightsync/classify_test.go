// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClassifier() Classifier {
	return Classifier{
		Normalizer:       Normalizer{Format: FormatWallClock, Offset: 3 * time.Hour},
		MmolConversion:   true,
		DurationFloorMin: 30,
	}
}

func TestClassifyGlucose_MmolConversion(t *testing.T) {
	c := testClassifier()

	sample, ok := c.ClassifyGlucose(map[string]any{
		"dateString": "2025-03-01T12:30:00.000Z",
		"sgv":        float64(180),
		"device":     "xDrip-DexcomG6",
		"direction":  "Flat",
	})
	require.True(t, ok)
	require.Equal(t, 10.0, sample.Value)
	require.Equal(t, "xDrip-DexcomG6", sample.Device)
	require.Equal(t, "Flat", sample.Trend)
	require.Equal(t, "2025-03-01-15-30", sample.Timestamp.String())
}

func TestClassifyGlucose_NoConversion(t *testing.T) {
	c := testClassifier()
	c.MmolConversion = false

	sample, ok := c.ClassifyGlucose(map[string]any{
		"dateString": "2025-03-01T12:30:00.000Z",
		"sgv":        float64(180),
	})
	require.True(t, ok)
	require.Equal(t, 180.0, sample.Value)
}

func TestClassifyGlucose_Skips(t *testing.T) {
	c := testClassifier()

	testCases := []struct {
		name string
		raw  map[string]any
	}{
		{"missing dateString", map[string]any{"sgv": float64(120)}},
		{"missing sgv", map[string]any{"dateString": "2025-03-01T12:30:00.000Z"}},
		{"malformed timestamp", map[string]any{"dateString": "yesterday", "sgv": float64(120)}},
		{"non-numeric sgv", map[string]any{"dateString": "2025-03-01T12:30:00.000Z", "sgv": map[string]any{}}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := c.ClassifyGlucose(tc.raw)
			require.False(t, ok)
		})
	}
}

func TestClassifyDose_TempBasal(t *testing.T) {
	c := testClassifier()

	event, ok := c.ClassifyDose(map[string]any{
		"created_at": "2025-03-01T12:00:00.000Z",
		"eventType":  "Temp Basal",
		"rate":       0.85,
		"duration":   float64(20),
	})
	require.True(t, ok)
	require.Equal(t, DoseBasalRate, event.Kind)
	require.NotNil(t, event.RateOrAmount)
	require.Equal(t, 0.85, *event.RateOrAmount)
	require.Nil(t, event.Carbs)
	// Nonzero durations are floored to the configured minimum.
	require.Equal(t, 30, event.DurationMinutes)
	require.Equal(t, "Temp Basal", event.Label)
}

func TestClassifyDose_DurationFloor(t *testing.T) {
	c := testClassifier()

	testCases := []struct {
		name     string
		duration any
		want     int
	}{
		{"absent stays zero", nil, 0},
		{"zero stays zero", float64(0), 0},
		{"below floor", float64(5), 30},
		{"above floor", float64(45), 45},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			raw := map[string]any{
				"created_at": "2025-03-01T12:00:00.000Z",
				"eventType":  "Temp Basal",
				"rate":       1.0,
			}
			if tc.duration != nil {
				raw["duration"] = tc.duration
			}
			event, ok := c.ClassifyDose(raw)
			require.True(t, ok)
			require.Equal(t, tc.want, event.DurationMinutes)
		})
	}
}

func TestClassifyDose_Boluses(t *testing.T) {
	c := testClassifier()

	for _, label := range []string{"Bolus", "Correction Bolus"} {
		event, ok := c.ClassifyDose(map[string]any{
			"created_at": "2025-03-01T12:00:00.000Z",
			"eventType":  label,
			"insulin":    4.5,
		})
		require.True(t, ok, label)
		require.Equal(t, DoseBolusInjection, event.Kind)
		require.Equal(t, 4.5, *event.RateOrAmount)
		require.Nil(t, event.Carbs)
		require.Equal(t, label, event.Label)
	}
}

func TestClassifyDose_CarbCorrection(t *testing.T) {
	c := testClassifier()

	event, ok := c.ClassifyDose(map[string]any{
		"created_at": "2025-03-01T12:00:00.000Z",
		"eventType":  "Carb Correction",
		"carbs":      float64(24),
	})
	require.True(t, ok)
	require.Equal(t, DoseCarbCorrection, event.Kind)
	require.Nil(t, event.RateOrAmount)
	require.Equal(t, 24.0, *event.Carbs)
}

func TestClassifyDose_Skips(t *testing.T) {
	c := testClassifier()

	testCases := []struct {
		name string
		raw  map[string]any
	}{
		{"unknown label", map[string]any{"created_at": "2025-03-01T12:00:00.000Z", "eventType": "Site Change"}},
		{"missing eventType", map[string]any{"created_at": "2025-03-01T12:00:00.000Z"}},
		{"missing created_at", map[string]any{"eventType": "Bolus", "insulin": 1.0}},
		{"malformed timestamp", map[string]any{"created_at": "noon", "eventType": "Bolus"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := c.ClassifyDose(tc.raw)
			require.False(t, ok)
		})
	}
}

func TestAttributeUploader(t *testing.T) {
	testCases := []struct {
		name         string
		uploaderName string
		hasName      bool
		hasTimestamp bool
		want         UploaderKind
	}{
		{"named transmitter", "transmitter", true, false, UploaderTransmitter},
		{"named transmitter with timestamp", "transmitter", true, true, UploaderTransmitter},
		{"named phone with timestamp", "samsung-s21", true, true, UploaderPhone},
		{"named without timestamp", "samsung-s21", true, false, UploaderTransmitter},
		{"unnamed", "", false, false, UploaderPhone},
		{"unnamed with timestamp", "", false, true, UploaderPhone},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := AttributeUploader(tc.uploaderName, tc.hasName, tc.hasTimestamp)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestClassifyDevicePing_Pump(t *testing.T) {
	c := testClassifier()

	fields := c.ClassifyDevicePing(map[string]any{
		"created_at": "2025-03-01T12:00:00.000Z",
		"pump": map[string]any{
			"battery":      map[string]any{"percent": float64(75)},
			"reservoir":    142.5,
			"manufacturer": "Medtronic",
			"model":        "754",
		},
	})
	require.NotNil(t, fields.PumpBattery)
	require.Equal(t, 75, *fields.PumpBattery)
	require.NotNil(t, fields.PumpCartridge)
	require.Equal(t, 142.5, *fields.PumpCartridge)
	require.Equal(t, "Medtronic 754", fields.PumpModel)
	require.Equal(t, "2025-03-01-15-00", fields.CartridgeTime.String())
	require.Nil(t, fields.PhoneBattery)
	require.Nil(t, fields.TransmitterBattery)
}

func TestClassifyDevicePing_Uploader(t *testing.T) {
	c := testClassifier()

	phone := c.ClassifyDevicePing(map[string]any{
		"uploader": map[string]any{
			"battery":   float64(64),
			"name":      "samsung-s21",
			"timestamp": "2025-03-01T12:00:00.000Z",
		},
	})
	require.NotNil(t, phone.PhoneBattery)
	require.Equal(t, 64, *phone.PhoneBattery)
	require.Nil(t, phone.TransmitterBattery)

	transmitter := c.ClassifyDevicePing(map[string]any{
		"uploader": map[string]any{
			"battery": float64(91),
			"name":    "transmitter",
		},
	})
	require.NotNil(t, transmitter.TransmitterBattery)
	require.Equal(t, 91, *transmitter.TransmitterBattery)
	require.Nil(t, transmitter.PhoneBattery)
}

func TestClassifyDevicePing_Empty(t *testing.T) {
	c := testClassifier()

	fields := c.ClassifyDevicePing(map[string]any{"other": "stuff"})
	require.Nil(t, fields.PumpBattery)
	require.Nil(t, fields.PumpCartridge)
	require.Nil(t, fields.PhoneBattery)
	require.Nil(t, fields.TransmitterBattery)
}

func TestFormatDelta(t *testing.T) {
	testCases := []struct {
		in   float64
		want string
	}{
		{0.3, "+0.3"},
		{-0.3, "-0.3"},
		{0, "0.0"},
		{1.0, "+1.0"},
		{-2.5, "-2.5"},
	}
	for _, tc := range testCases {
		if got := FormatDelta(tc.in); got != tc.want {
			t.Errorf("FormatDelta(%v) = %s, want %s", tc.in, got, tc.want)
		}
	}
}
