// Copyright 2025 Kkleytt
// SPDX-License-Identifier: Apache-2.0

package nightsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// RemoteStore implements Store over the REST facade for the three-tier
// deployment (parser process separated from the database host). Cursor
// reads go through the privileged /put/command endpoint; writes use the
// typed /put and /post endpoints.
//
// The store authenticates with username/password via POST /token and
// refreshes the bearer token proactively once a configured fraction of its
// lifetime has elapsed, rather than reacting to 401s mid-cycle.
type RemoteStore struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	sql      *SQLStore

	// Token lifetime as configured on the facade; refresh triggers at
	// refreshFraction of it.
	tokenLifetime   time.Duration
	refreshFraction float64

	mu          sync.Mutex
	token       string
	tokenIssued time.Time
}

// NewRemoteStore creates a facade-backed store. tokenLifetime must match
// the facade's configured token lifetime.
func NewRemoteStore(baseURL, username, password string,
	tokenLifetime time.Duration, normalizer Normalizer) *RemoteStore {
	rs := &RemoteStore{
		baseURL:         baseURL,
		username:        username,
		password:        password,
		client:          &http.Client{Timeout: 15 * time.Second},
		tokenLifetime:   tokenLifetime,
		refreshFraction: 0.8,
	}
	rs.sql = NewSQLStore(remoteQuerier{rs}, normalizer)
	return rs
}

// remoteQuerier routes read queries through PUT /put/command so the typed
// SQLStore scan logic is shared between the local and remote deployments.
type remoteQuerier struct {
	rs *RemoteStore
}

func (r remoteQuerier) Query(ctx context.Context, query string, args ...any) ([][]any, error) {
	if args == nil {
		args = []any{}
	}
	var rows [][]any
	err := r.rs.do(ctx, http.MethodPut, "/put/command",
		CommandRequest{Query: query, Params: args}, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r remoteQuerier) Exec(ctx context.Context, query string, args ...any) error {
	return errors.New("remote store writes use the typed endpoints")
}

// LastGlucose reads the glucose cursor through the facade.
func (rs *RemoteStore) LastGlucose(ctx context.Context, n int) ([]GlucoseSample, error) {
	return rs.sql.LastGlucose(ctx, n)
}

// LastDose reads the dose cursor through the facade.
func (rs *RemoteStore) LastDose(ctx context.Context) (*DoseEvent, error) {
	return rs.sql.LastDose(ctx)
}

// LoadDevice reads the singleton device row through the facade.
func (rs *RemoteStore) LoadDevice(ctx context.Context) (*DeviceSnapshot, error) {
	return rs.sql.LoadDevice(ctx)
}

// InsertGlucose writes one glucose row via PUT /put/sugar.
func (rs *RemoteStore) InsertGlucose(ctx context.Context, sample GlucoseSample) error {
	return rs.do(ctx, http.MethodPut, "/put/sugar", sugarRecord(sample), nil)
}

// InsertDose writes one dose row via PUT /put/insulin.
func (rs *RemoteStore) InsertDose(ctx context.Context, event DoseEvent) error {
	return rs.do(ctx, http.MethodPut, "/put/insulin", insulinRecord(event), nil)
}

// InsertDevice creates the singleton device row via PUT /put/device.
func (rs *RemoteStore) InsertDevice(ctx context.Context, snapshot DeviceSnapshot) error {
	return rs.do(ctx, http.MethodPut, "/put/device", deviceRecord(snapshot), nil)
}

// UpdateDevice rewrites the singleton device row via POST /post/device.
func (rs *RemoteStore) UpdateDevice(ctx context.Context, snapshot DeviceSnapshot) error {
	return rs.do(ctx, http.MethodPost, "/post/device", deviceRecord(snapshot), nil)
}

// bearer returns a valid token, re-authenticating proactively once the
// refresh threshold has elapsed.
func (rs *RemoteStore) bearer(ctx context.Context) (string, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.token != "" && rs.tokenLifetime > 0 {
		age := time.Since(rs.tokenIssued)
		if age < time.Duration(float64(rs.tokenLifetime)*rs.refreshFraction) {
			return rs.token, nil
		}
	}

	body, err := json.Marshal(TokenRequest{Username: rs.username, Password: rs.password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		rs.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := rs.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token request: %v", ErrStoreUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: token request returned %d", ErrStoreUnavailable, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	rs.token = token.AccessToken
	rs.tokenIssued = time.Now()
	return rs.token, nil
}

func (rs *RemoteStore) do(ctx context.Context, method, path string, in, out any) error {
	token, err := rs.bearer(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, rs.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := rs.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var facadeErr ErrorResponse
		if json.NewDecoder(resp.Body).Decode(&facadeErr) == nil && facadeErr.Error != "" {
			return fmt.Errorf("%w: %s %s: %s (%s)", ErrStoreUnavailable,
				method, path, facadeErr.Error, facadeErr.Message)
		}
		return fmt.Errorf("%w: %s %s returned %d", ErrStoreUnavailable, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
