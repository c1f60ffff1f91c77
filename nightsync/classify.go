// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"fmt"
	"math"
)

// mgdlPerMmol converts mg/dL readings to mmol/L.
const mgdlPerMmol = 18.0

// Classifier reshapes loosely-typed upstream records into canonical record
// variants. Records with missing required keys or unrecognized labels are
// skipped, not erred; the caller is responsible for counting skips.
type Classifier struct {
	Normalizer       Normalizer
	MmolConversion   bool
	DurationFloorMin int
}

// ClassifyGlucose maps one entries record to a GlucoseSample. The second
// return value is false when the record lacks a timestamp or a sample value,
// or when its timestamp is malformed.
func (c Classifier) ClassifyGlucose(raw map[string]any) (GlucoseSample, bool) {
	dateString, okDate := asString(raw["dateString"])
	value, okValue := asFloat(raw["sgv"])
	if !okDate || !okValue {
		return GlucoseSample{}, false
	}
	ts, err := c.Normalizer.Normalize(dateString)
	if err != nil {
		return GlucoseSample{}, false
	}
	if c.MmolConversion {
		value = round1(value / mgdlPerMmol)
	}
	device, _ := asString(raw["device"])
	trend, _ := asString(raw["direction"])
	return GlucoseSample{
		Timestamp: ts,
		Value:     value,
		Device:    device,
		Trend:     trend,
	}, true
}

// ClassifyDose maps one treatments record to a DoseEvent by exact match on
// the upstream eventType label. Unrecognized labels are skipped silently;
// this is intentional tolerance for upstream schema drift.
func (c Classifier) ClassifyDose(raw map[string]any) (DoseEvent, bool) {
	createdAt, okDate := asString(raw["created_at"])
	label, okLabel := asString(raw["eventType"])
	if !okDate || !okLabel {
		return DoseEvent{}, false
	}
	ts, err := c.Normalizer.Normalize(createdAt)
	if err != nil {
		return DoseEvent{}, false
	}

	event := DoseEvent{Timestamp: ts, Label: label}
	switch label {
	case LabelTempBasal:
		event.Kind = DoseBasalRate
		event.RateOrAmount = floatPtr(raw["rate"])
		event.DurationMinutes = c.floorDuration(raw["duration"])
	case LabelBolus, LabelCorrectionBolus:
		event.Kind = DoseBolusInjection
		event.RateOrAmount = floatPtr(raw["insulin"])
	case LabelCarbCorrection:
		event.Kind = DoseCarbCorrection
		event.Carbs = floatPtr(raw["carbs"])
	default:
		return DoseEvent{}, false
	}
	return event, true
}

// floorDuration applies the configured minimum to nonzero upstream
// durations; absent or zero durations stay 0.
func (c Classifier) floorDuration(v any) int {
	d, ok := asFloat(v)
	if !ok || d == 0 {
		return 0
	}
	minutes := int(d)
	if minutes < c.DurationFloorMin {
		return c.DurationFloorMin
	}
	return minutes
}

// UploaderKind is the device class an uploader battery ping is attributed to.
type UploaderKind int

const (
	UploaderNone UploaderKind = iota
	UploaderPhone
	UploaderTransmitter
)

// AttributeUploader decides whether an uploader battery ping belongs to the
// transmitter or the phone from shape alone. The rule is inherited from an
// ambiguous upstream payload and intentionally kept in one pure function:
// a ping named "transmitter" is the transmitter; a named ping with a
// timestamp is the phone; a named ping without a timestamp is still the
// transmitter; an unnamed ping falls back to the phone.
func AttributeUploader(name string, hasName, hasTimestamp bool) UploaderKind {
	if !hasName {
		return UploaderPhone
	}
	if name == "transmitter" {
		return UploaderTransmitter
	}
	if hasTimestamp {
		return UploaderPhone
	}
	return UploaderTransmitter
}

// ClassifyDevicePing extracts whatever device fields one devicestatus record
// carries. There is no error case; missing fields simply stay nil.
func (c Classifier) ClassifyDevicePing(raw map[string]any) PartialDeviceFields {
	var fields PartialDeviceFields

	pump, _ := raw["pump"].(map[string]any)
	if pump != nil {
		if battery, ok := pump["battery"].(map[string]any); ok {
			if pct, ok := asFloat(battery["percent"]); ok {
				fields.PumpBattery = intRef(int(pct))
			}
		}
		if reservoir, ok := asFloat(pump["reservoir"]); ok {
			fields.PumpCartridge = &reservoir
			manufacturer, _ := asString(pump["manufacturer"])
			model, _ := asString(pump["model"])
			fields.PumpModel = fmt.Sprintf("%s %s", manufacturer, model)
			if createdAt, ok := asString(raw["created_at"]); ok {
				if ts, err := c.Normalizer.Normalize(createdAt); err == nil {
					fields.CartridgeTime = ts
				}
			}
		}
	}

	uploader, _ := raw["uploader"].(map[string]any)
	if uploader != nil {
		if battery, ok := asFloat(uploader["battery"]); ok {
			name, hasName := asString(uploader["name"])
			_, hasTimestamp := uploader["timestamp"]
			switch AttributeUploader(name, hasName, hasTimestamp) {
			case UploaderTransmitter:
				fields.TransmitterBattery = intRef(int(battery))
			case UploaderPhone:
				fields.PhoneBattery = intRef(int(battery))
			}
		}
	}

	return fields
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func intRef(v int) *int { return &v }

// floatPtr coerces a loosely-typed JSON value to *float64, nil when absent
// or not numeric.
func floatPtr(v any) *float64 {
	f, ok := asFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// asFloat accepts the numeric shapes encoding/json and the SQL drivers
// produce.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(n, "%g", &f); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}
