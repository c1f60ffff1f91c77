// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

// TokenRequest is the credentials payload of POST /token.
type TokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// TokenResponse carries an issued bearer token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// SugarRecord is the wire form of one glucose row.
type SugarRecord struct {
	ID         int64   `json:"id"`
	Date       string  `json:"date"`
	Value      float64 `json:"value"`
	Tendency   string  `json:"tendency"`
	Difference string  `json:"difference"`
}

// InsulinRecord is the wire form of one dose row.
type InsulinRecord struct {
	ID       int64    `json:"id"`
	Date     string   `json:"date"`
	Value    *float64 `json:"value"`
	Carbs    *float64 `json:"carbs"`
	Duration int      `json:"duration"`
	Type     string   `json:"type"`
}

// DeviceRecord is the wire form of the singleton device row.
type DeviceRecord struct {
	ID                 int64    `json:"id"`
	Date               string   `json:"date"`
	PhoneBattery       *int     `json:"phone_battery"`
	TransmitterBattery *int     `json:"transmitter_battery"`
	PumpBattery        *int     `json:"pump_battery"`
	PumpCartridge      *float64 `json:"pump_cartridge"`
	InsulinDate        *string  `json:"insulin_date"`
	CannulaDate        *string  `json:"cannula_date"`
	SensorDate         *string  `json:"sensor_date"`
	PumpName           string   `json:"pump_name"`
	PhoneName          string   `json:"phone_name"`
	TransmitterName    string   `json:"transmitter_name"`
	InsulinName        string   `json:"insulin_name"`
	SensorName         string   `json:"sensor_name"`
}

// CommandRequest is the privileged raw-query escape hatch of
// PUT /put/command. Trusted callers only; the sync parser uses it for
// cursor reads in the three-tier deployment.
type CommandRequest struct {
	Query  string `json:"query"`
	Params []any  `json:"params"`
}

// ResultResponse acknowledges a write.
type ResultResponse struct {
	Result bool `json:"result"`
}

// ErrorResponse is the facade's error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Wire conversions between records and canonical models.

func sugarRecord(s GlucoseSample) SugarRecord {
	return SugarRecord{
		ID:         s.ID,
		Date:       s.Timestamp.String(),
		Value:      s.Value,
		Tendency:   s.Trend,
		Difference: s.Difference,
	}
}

func (r SugarRecord) sample(n Normalizer) (GlucoseSample, error) {
	ts, err := n.ParseCanonical(r.Date)
	if err != nil {
		return GlucoseSample{}, err
	}
	return GlucoseSample{
		ID:         r.ID,
		Timestamp:  ts,
		Value:      r.Value,
		Trend:      r.Tendency,
		Difference: r.Difference,
	}, nil
}

func insulinRecord(d DoseEvent) InsulinRecord {
	return InsulinRecord{
		ID:       d.ID,
		Date:     d.Timestamp.String(),
		Value:    d.RateOrAmount,
		Carbs:    d.Carbs,
		Duration: d.DurationMinutes,
		Type:     d.Label,
	}
}

func (r InsulinRecord) event(n Normalizer) (DoseEvent, error) {
	ts, err := n.ParseCanonical(r.Date)
	if err != nil {
		return DoseEvent{}, err
	}
	return DoseEvent{
		ID:              r.ID,
		Timestamp:       ts,
		Kind:            kindForLabel(r.Type),
		RateOrAmount:    r.Value,
		Carbs:           r.Carbs,
		DurationMinutes: r.Duration,
		Label:           r.Type,
	}, nil
}

func deviceRecord(s DeviceSnapshot) DeviceRecord {
	return DeviceRecord{
		ID:                 0,
		Date:               s.Timestamp.String(),
		PhoneBattery:       s.PhoneBattery,
		TransmitterBattery: s.TransmitterBattery,
		PumpBattery:        s.PumpBattery,
		PumpCartridge:      s.PumpCartridge,
		InsulinDate:        timeString(s.InsulinDate),
		CannulaDate:        timeString(s.CannulaDate),
		SensorDate:         timeString(s.SensorDate),
		PumpName:           s.Names.Pump,
		PhoneName:          s.Names.Phone,
		TransmitterName:    s.Names.Transmitter,
		InsulinName:        s.Names.Insulin,
		SensorName:         s.Names.Sensor,
	}
}

func (r DeviceRecord) snapshot(n Normalizer) (DeviceSnapshot, error) {
	ts, err := n.ParseCanonical(r.Date)
	if err != nil {
		return DeviceSnapshot{}, err
	}
	return DeviceSnapshot{
		Timestamp:          ts,
		PhoneBattery:       r.PhoneBattery,
		TransmitterBattery: r.TransmitterBattery,
		PumpBattery:        r.PumpBattery,
		PumpCartridge:      r.PumpCartridge,
		InsulinDate:        parseTimeRef(n, r.InsulinDate),
		CannulaDate:        parseTimeRef(n, r.CannulaDate),
		SensorDate:         parseTimeRef(n, r.SensorDate),
		Names: DeviceNames{
			Pump:        r.PumpName,
			Phone:       r.PhoneName,
			Transmitter: r.TransmitterName,
			Insulin:     r.InsulinName,
			Sensor:      r.SensorName,
		},
	}, nil
}

func timeString(t *Timestamp) *string {
	if t == nil {
		return nil
	}
	s := t.String()
	return &s
}

func parseTimeRef(n Normalizer, s *string) *Timestamp {
	if s == nil || *s == "" {
		return nil
	}
	ts, err := n.ParseCanonical(*s)
	if err != nil || ts.IsZero() {
		return nil
	}
	return &ts
}
