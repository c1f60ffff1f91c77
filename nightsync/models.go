// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

// Stream identifies one of the three independent telemetry categories.
type Stream string

const (
	StreamGlucose Stream = "glucose"
	StreamDose    Stream = "dose"
	StreamDevice  Stream = "device"
)

// DoseKind is the canonical variant of a dose event.
type DoseKind string

const (
	DoseBasalRate      DoseKind = "basal"
	DoseBolusInjection DoseKind = "bolus"
	DoseCarbCorrection DoseKind = "carbs"
)

// Upstream event labels recognized by the classifier. Anything else is
// schema drift and is skipped with a counted skip.
const (
	LabelTempBasal       = "Temp Basal"
	LabelBolus           = "Bolus"
	LabelCorrectionBolus = "Correction Bolus"
	LabelCarbCorrection  = "Carb Correction"
)

// GlucoseSample is one persisted glucose reading. Difference is a derived
// display string ("+0.3", "-0.3", "0.0") computed against the previous
// persisted value at admission time.
type GlucoseSample struct {
	ID         int64
	Timestamp  Timestamp
	Value      float64
	Device     string
	Trend      string
	Difference string
}

// DoseEvent is one persisted insulin/carb treatment. Exactly one of
// RateOrAmount (basal rate or bolus units) and Carbs is populated depending
// on Kind; the other stays nil.
type DoseEvent struct {
	ID              int64
	Timestamp       Timestamp
	Kind            DoseKind
	RateOrAmount    *float64
	Carbs           *float64
	DurationMinutes int
	Label           string
}

// sameContent reports whether two dose events carry identical fields apart
// from id and timestamp. Used by the duplicate short-circuit when the
// upstream re-delivers an in-progress temp basal under the same timestamp.
func (d DoseEvent) sameContent(other DoseEvent) bool {
	return d.Kind == other.Kind &&
		eqFloatPtr(d.RateOrAmount, other.RateOrAmount) &&
		eqFloatPtr(d.Carbs, other.Carbs) &&
		d.DurationMinutes == other.DurationMinutes &&
		d.Label == other.Label
}

func eqFloatPtr(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// DeviceNames are the static device labels injected from configuration,
// never taken from upstream data.
type DeviceNames struct {
	Pump        string
	Phone       string
	Transmitter string
	Insulin     string
	Sensor      string
}

// DeviceSnapshot is the single logical device-state row. Nil fields mean
// "no update" when merging into an already persisted snapshot, never
// "clear to null".
type DeviceSnapshot struct {
	Timestamp          Timestamp
	PhoneBattery       *int
	TransmitterBattery *int
	PumpBattery        *int
	PumpCartridge      *float64
	PumpModel          string
	InsulinDate        *Timestamp
	CannulaDate        *Timestamp
	SensorDate         *Timestamp
	Names              DeviceNames
}

// mergeInto fills absent fields of s from the previously persisted snapshot
// so an UPDATE never wipes known state.
func (s DeviceSnapshot) mergeInto(prev DeviceSnapshot) DeviceSnapshot {
	out := s
	if out.PhoneBattery == nil {
		out.PhoneBattery = prev.PhoneBattery
	}
	if out.TransmitterBattery == nil {
		out.TransmitterBattery = prev.TransmitterBattery
	}
	if out.PumpBattery == nil {
		out.PumpBattery = prev.PumpBattery
	}
	if out.PumpCartridge == nil {
		out.PumpCartridge = prev.PumpCartridge
	}
	if out.PumpModel == "" {
		out.PumpModel = prev.PumpModel
	}
	if out.InsulinDate == nil {
		out.InsulinDate = prev.InsulinDate
	}
	if out.CannulaDate == nil {
		out.CannulaDate = prev.CannulaDate
	}
	if out.SensorDate == nil {
		out.SensorDate = prev.SensorDate
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = prev.Timestamp
	}
	return out
}

// PartialDeviceFields is what one devicestatus ping contributes. Each ping
// may carry any subset of the tracked fields.
type PartialDeviceFields struct {
	PumpBattery        *int
	PumpCartridge      *float64
	PumpModel          string
	CartridgeTime      Timestamp
	PhoneBattery       *int
	TransmitterBattery *int
}
