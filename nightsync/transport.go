// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Source fetches raw telemetry rows from the upstream API. Implementations
// must treat a non-success status as "nothing new" (empty slice), not as an
// error; only transport-level failures are errors.
type Source interface {
	FetchGlucose(ctx context.Context, limit int) ([]map[string]any, error)
	FetchTreatments(ctx context.Context, limit int) ([]map[string]any, error)
	FetchDeviceStatus(ctx context.Context, limit int) ([]map[string]any, error)
}

// NightscoutSource reads the three Nightscout v1 endpoints. Results arrive
// newest-first as loosely-typed JSON arrays.
type NightscoutSource struct {
	Host   string // bare host, e.g. "example.herokuapp.com"
	Token  string
	Client *http.Client
}

// NewNightscoutSource creates a source with a sane request timeout; the
// timeout is the only internal deadline the sync core relies on.
func NewNightscoutSource(host, token string) *NightscoutSource {
	return &NightscoutSource{
		Host:   host,
		Token:  token,
		Client: &http.Client{Timeout: 15 * time.Second},
	}
}

// FetchGlucose reads /api/v1/entries.
func (s *NightscoutSource) FetchGlucose(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.fetch(ctx, "entries", limit)
}

// FetchTreatments reads /api/v1/treatments.
func (s *NightscoutSource) FetchTreatments(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.fetch(ctx, "treatments", limit)
}

// FetchDeviceStatus reads /api/v1/devicestatus.
func (s *NightscoutSource) FetchDeviceStatus(ctx context.Context, limit int) ([]map[string]any, error) {
	return s.fetch(ctx, "devicestatus", limit)
}

func (s *NightscoutSource) fetch(ctx context.Context, endpoint string, limit int) ([]map[string]any, error) {
	url := fmt.Sprintf("https://%s/api/v1/%s/?count=%d&token=%s", s.Host, endpoint, limit, s.Token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	// Upstream signals "no data" with non-200 responses often enough that
	// they must not abort the cycle.
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var rows []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return rows, nil
}
