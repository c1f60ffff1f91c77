// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks a store that cannot be reached this cycle. The
// engine aborts the affected stream and retries on the next cycle.
var ErrStoreUnavailable = errors.New("store unavailable")

// Querier is the minimal capability set a deployment's database adapter must
// provide. Queries are written with ? placeholders; adapters rebind as
// needed for their dialect.
type Querier interface {
	Query(ctx context.Context, query string, args ...any) ([][]any, error)
	Exec(ctx context.Context, query string, args ...any) error
}

// Store is everything the reconciliation engine needs from persistence.
// One SQL implementation serves the local SQLite and direct Postgres
// deployments; RemoteStore serves the three-tier split over the REST facade.
type Store interface {
	LastGlucose(ctx context.Context, n int) ([]GlucoseSample, error)
	LastDose(ctx context.Context) (*DoseEvent, error)
	LoadDevice(ctx context.Context) (*DeviceSnapshot, error)

	InsertGlucose(ctx context.Context, sample GlucoseSample) error
	InsertDose(ctx context.Context, event DoseEvent) error
	InsertDevice(ctx context.Context, snapshot DeviceSnapshot) error
	UpdateDevice(ctx context.Context, snapshot DeviceSnapshot) error
}

// SQLStore implements Store over any Querier. The singleton device row is
// keyed WHERE id = 0; glucose and dose rows are append-only.
type SQLStore struct {
	q          Querier
	normalizer Normalizer
}

// NewSQLStore wraps a database adapter. The normalizer must match the
// deployment's canonical time format so cursor timestamps parse back into
// comparable values.
func NewSQLStore(q Querier, normalizer Normalizer) *SQLStore {
	return &SQLStore{q: q, normalizer: normalizer}
}

// LastGlucose returns up to n most recent glucose rows, newest first.
func (s *SQLStore) LastGlucose(ctx context.Context, n int) ([]GlucoseSample, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, sugar, tendency, difference FROM Sugar ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("load glucose cursor: %w", err)
	}
	return s.scanGlucoseRows(rows)
}

// GlucoseByID returns one glucose row, or nil when absent.
func (s *SQLStore) GlucoseByID(ctx context.Context, id int64) (*GlucoseSample, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, sugar, tendency, difference FROM Sugar WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("glucose by id: %w", err)
	}
	samples, err := s.scanGlucoseRows(rows)
	if err != nil || len(samples) == 0 {
		return nil, err
	}
	return &samples[0], nil
}

// AllGlucose returns every glucose row, oldest first. Used by the mirror.
func (s *SQLStore) AllGlucose(ctx context.Context) ([]GlucoseSample, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, sugar, tendency, difference FROM Sugar ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("all glucose: %w", err)
	}
	return s.scanGlucoseRows(rows)
}

// GlucoseRange returns glucose rows between two canonical timestamps,
// oldest first.
func (s *SQLStore) GlucoseRange(ctx context.Context, start, end string) ([]GlucoseSample, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, sugar, tendency, difference FROM Sugar WHERE date BETWEEN ? AND ? ORDER BY date ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("glucose range: %w", err)
	}
	return s.scanGlucoseRows(rows)
}

func (s *SQLStore) scanGlucoseRows(rows [][]any) ([]GlucoseSample, error) {
	samples := make([]GlucoseSample, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			return nil, fmt.Errorf("glucose row has %d columns, want 5", len(row))
		}
		ts, err := s.normalizer.ParseCanonical(colString(row[1]))
		if err != nil {
			return nil, err
		}
		value, _ := asFloat(row[2])
		samples = append(samples, GlucoseSample{
			ID:         colInt64(row[0]),
			Timestamp:  ts,
			Value:      value,
			Trend:      colString(row[3]),
			Difference: colString(row[4]),
		})
	}
	return samples, nil
}

// LastDose returns the most recent dose row, or nil on an empty table.
func (s *SQLStore) LastDose(ctx context.Context) (*DoseEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, value, carbs, duration, type FROM Insulin ORDER BY date DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("load dose cursor: %w", err)
	}
	events, err := s.scanDoseRows(rows)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// DoseByID returns one dose row, or nil when absent.
func (s *SQLStore) DoseByID(ctx context.Context, id int64) (*DoseEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, value, carbs, duration, type FROM Insulin WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("dose by id: %w", err)
	}
	events, err := s.scanDoseRows(rows)
	if err != nil || len(events) == 0 {
		return nil, err
	}
	return &events[0], nil
}

// AllDose returns every dose row, oldest first. Used by the mirror.
func (s *SQLStore) AllDose(ctx context.Context) ([]DoseEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, value, carbs, duration, type FROM Insulin ORDER BY date ASC`)
	if err != nil {
		return nil, fmt.Errorf("all dose: %w", err)
	}
	return s.scanDoseRows(rows)
}

// DoseRange returns dose rows between two canonical timestamps, oldest first.
func (s *SQLStore) DoseRange(ctx context.Context, start, end string) ([]DoseEvent, error) {
	rows, err := s.q.Query(ctx,
		`SELECT id, date, value, carbs, duration, type FROM Insulin WHERE date BETWEEN ? AND ? ORDER BY date ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("dose range: %w", err)
	}
	return s.scanDoseRows(rows)
}

func (s *SQLStore) scanDoseRows(rows [][]any) ([]DoseEvent, error) {
	events := make([]DoseEvent, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("dose row has %d columns, want 6", len(row))
		}
		ts, err := s.normalizer.ParseCanonical(colString(row[1]))
		if err != nil {
			return nil, err
		}
		label := colString(row[5])
		events = append(events, DoseEvent{
			ID:              colInt64(row[0]),
			Timestamp:       ts,
			Kind:            kindForLabel(label),
			RateOrAmount:    colFloatPtr(row[2]),
			Carbs:           colFloatPtr(row[3]),
			DurationMinutes: int(colInt64(row[4])),
			Label:           label,
		})
	}
	return events, nil
}

func kindForLabel(label string) DoseKind {
	switch label {
	case LabelTempBasal:
		return DoseBasalRate
	case LabelCarbCorrection:
		return DoseCarbCorrection
	default:
		return DoseBolusInjection
	}
}

// LoadDevice returns the singleton device row, or nil when the table is
// still empty.
func (s *SQLStore) LoadDevice(ctx context.Context) (*DeviceSnapshot, error) {
	rows, err := s.q.Query(ctx,
		`SELECT date, phone_battery, transmitter_battery, pump_battery, pump_cartridge,
		        insulin_date, cannula_date, sensor_date,
		        pump_name, phone_name, transmitter_name, insulin_name, sensor_name
		 FROM Device WHERE id = 0`)
	if err != nil {
		return nil, fmt.Errorf("load device row: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	row := rows[0]
	if len(row) < 13 {
		return nil, fmt.Errorf("device row has %d columns, want 13", len(row))
	}
	ts, err := s.normalizer.ParseCanonical(colString(row[0]))
	if err != nil {
		return nil, err
	}
	snapshot := DeviceSnapshot{
		Timestamp:          ts,
		PhoneBattery:       colIntPtr(row[1]),
		TransmitterBattery: colIntPtr(row[2]),
		PumpBattery:        colIntPtr(row[3]),
		PumpCartridge:      colFloatPtr(row[4]),
		InsulinDate:        s.colTimePtr(row[5]),
		CannulaDate:        s.colTimePtr(row[6]),
		SensorDate:         s.colTimePtr(row[7]),
		Names: DeviceNames{
			Pump:        colString(row[8]),
			Phone:       colString(row[9]),
			Transmitter: colString(row[10]),
			Insulin:     colString(row[11]),
			Sensor:      colString(row[12]),
		},
	}
	return &snapshot, nil
}

// InsertGlucose appends one glucose row. Committed rows are immutable.
func (s *SQLStore) InsertGlucose(ctx context.Context, sample GlucoseSample) error {
	return s.q.Exec(ctx,
		`INSERT INTO Sugar (id, date, sugar, tendency, difference) VALUES (?, ?, ?, ?, ?)`,
		sample.ID, sample.Timestamp.String(), sample.Value, sample.Trend, sample.Difference)
}

// InsertDose appends one dose row.
func (s *SQLStore) InsertDose(ctx context.Context, event DoseEvent) error {
	return s.q.Exec(ctx,
		`INSERT INTO Insulin (id, date, value, carbs, duration, type) VALUES (?, ?, ?, ?, ?, ?)`,
		event.ID, event.Timestamp.String(), derefFloat(event.RateOrAmount),
		derefFloat(event.Carbs), event.DurationMinutes, event.Label)
}

// InsertDevice creates the singleton device row (first-ever write only).
func (s *SQLStore) InsertDevice(ctx context.Context, snapshot DeviceSnapshot) error {
	return s.q.Exec(ctx,
		`INSERT INTO Device (id, date, phone_battery, transmitter_battery, pump_battery, pump_cartridge,
		                     insulin_date, cannula_date, sensor_date,
		                     pump_name, phone_name, transmitter_name, insulin_name, sensor_name)
		 VALUES (0, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		deviceArgs(snapshot)...)
}

// UpdateDevice rewrites the singleton device row in place.
func (s *SQLStore) UpdateDevice(ctx context.Context, snapshot DeviceSnapshot) error {
	return s.q.Exec(ctx,
		`UPDATE Device SET date = ?, phone_battery = ?, transmitter_battery = ?, pump_battery = ?,
		                   pump_cartridge = ?, insulin_date = ?, cannula_date = ?, sensor_date = ?,
		                   pump_name = ?, phone_name = ?, transmitter_name = ?, insulin_name = ?, sensor_name = ?
		 WHERE id = 0`,
		deviceArgs(snapshot)...)
}

func deviceArgs(snapshot DeviceSnapshot) []any {
	return []any{
		snapshot.Timestamp.String(),
		derefInt(snapshot.PhoneBattery),
		derefInt(snapshot.TransmitterBattery),
		derefInt(snapshot.PumpBattery),
		derefFloat(snapshot.PumpCartridge),
		timeArg(snapshot.InsulinDate),
		timeArg(snapshot.CannulaDate),
		timeArg(snapshot.SensorDate),
		snapshot.Names.Pump,
		snapshot.Names.Phone,
		snapshot.Names.Transmitter,
		snapshot.Names.Insulin,
		snapshot.Names.Sensor,
	}
}

// Column coercion helpers. Driver rows surface numbers and text in several
// shapes ([]byte from database/sql, int64/float64 from pgx); the store
// normalizes them once here.

func colString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", s)
	}
}

func colInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		id, _ := ParseLegacyID(string(n))
		return id
	case string:
		id, _ := ParseLegacyID(n)
		return id
	default:
		return 0
	}
}

func colFloatPtr(v any) *float64 {
	if v == nil {
		return nil
	}
	f, ok := asFloat(colValue(v))
	if !ok {
		return nil
	}
	return &f
}

func colIntPtr(v any) *int {
	p := colFloatPtr(v)
	if p == nil {
		return nil
	}
	return intRef(int(*p))
}

func (s *SQLStore) colTimePtr(v any) *Timestamp {
	raw := colString(v)
	if raw == "" {
		return nil
	}
	ts, err := s.normalizer.ParseCanonical(raw)
	if err != nil || ts.IsZero() {
		return nil
	}
	return &ts
}

func colValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func derefFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeArg(t *Timestamp) any {
	if t == nil {
		return nil
	}
	return t.String()
}
