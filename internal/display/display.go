// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

// Package display renders the latest persisted telemetry as a console
// table. The last-printed id is explicit Renderer state so repeated renders
// of unchanged data stay silent.
package display

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/Kkleytt/NightScout-New/nightsync"
)

var trendIcons = map[string]string{
	"Flat":           "→",
	"FortyFiveUp":    "↗",
	"SingleUp":       "↑",
	"DoubleUp":       "↑↑",
	"FortyFiveDown":  "↘",
	"SingleDown":     "↓",
	"DoubleDown":     "↓↓",
	"NOT COMPUTABLE": "?",
	"":               "?",
}

// Renderer prints telemetry tables, skipping renders whose glucose id
// matches the previously printed one.
type Renderer struct {
	lastPrintedID int64
}

// Render writes one status table. Returns false when the glucose row has
// not advanced since the previous render and nothing was printed.
func (r *Renderer) Render(w io.Writer, sample *nightsync.GlucoseSample,
	dose *nightsync.DoseEvent, device *nightsync.DeviceSnapshot) bool {
	if sample == nil {
		return false
	}
	if r.lastPrintedID != 0 && sample.ID == r.lastPrintedID {
		return false
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "glucose\t%s %s %s\t%s\n",
		sugarIcon(sample.Value),
		strconv.FormatFloat(sample.Value, 'f', 1, 64),
		trendIcon(sample),
		sample.Timestamp.String())
	fmt.Fprintf(tw, "change\t%s\tid %d\n", sample.Difference, sample.ID)

	if dose != nil {
		fmt.Fprintf(tw, "dose\t%s %s\t%s\n",
			dose.Label, doseAmount(dose), dose.Timestamp.String())
	}

	if device != nil {
		fmt.Fprintf(tw, "phone\t%s %s\t\n", device.Names.Phone, battery(device.PhoneBattery))
		fmt.Fprintf(tw, "transmitter\t%s %s\t\n", device.Names.Transmitter, battery(device.TransmitterBattery))
		fmt.Fprintf(tw, "pump\t%s %s\t%s\n", device.Names.Pump, battery(device.PumpBattery), cartridge(device.PumpCartridge))
	}

	tw.Flush()
	r.lastPrintedID = sample.ID
	return true
}

// trendIcon prefers the upstream direction label; when upstream could not
// compute one, the icon falls back to the stored difference.
func trendIcon(sample *nightsync.GlucoseSample) string {
	if icon, ok := trendIcons[sample.Trend]; ok && sample.Trend != "NOT COMPUTABLE" && sample.Trend != "" {
		return icon
	}
	var diff float64
	fmt.Sscanf(sample.Difference, "%g", &diff)
	switch d := math.Abs(diff); {
	case d <= 0.3:
		return "→"
	case d <= 0.6:
		return upOrDown(diff, "↗", "↘")
	case d <= 0.9:
		return upOrDown(diff, "↑", "↓")
	default:
		return upOrDown(diff, "↑↑", "↓↓")
	}
}

func upOrDown(diff float64, up, down string) string {
	if diff >= 0 {
		return up
	}
	return down
}

func sugarIcon(value float64) string {
	switch {
	case value < 4.0:
		return "[!low]"
	case value < 5.0:
		return "[low]"
	case value <= 7.4:
		return "[ok]"
	case value <= 10.0:
		return "[high]"
	default:
		return "[!high]"
	}
}

func doseAmount(dose *nightsync.DoseEvent) string {
	switch dose.Kind {
	case nightsync.DoseCarbCorrection:
		if dose.Carbs != nil {
			return fmt.Sprintf("%.1fg", *dose.Carbs)
		}
	default:
		if dose.RateOrAmount != nil {
			return fmt.Sprintf("%.2fU", *dose.RateOrAmount)
		}
	}
	return "-"
}

func battery(pct *int) string {
	if pct == nil {
		return "?"
	}
	return fmt.Sprintf("%d%%", *pct)
}

func cartridge(units *float64) string {
	if units == nil {
		return ""
	}
	return fmt.Sprintf("%.0fU", *units)
}
