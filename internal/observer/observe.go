// Package observer watches a running factory through its HTTP API.
// It polls status, mirrors unit channels from the delta stream and
// issues admin actions.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/talgya/mini-factory/internal/machines"
)

// Snapshot holds all data collected during one observation cycle.
type Snapshot struct {
	Status FactoryStatus     `json:"status"`
	Units  []machines.Status `json:"units"`
}

// FactoryStatus mirrors GET /api/v1/status.
type FactoryStatus struct {
	Name      string  `json:"name"`
	Tick      uint64  `json:"tick"`
	SimTime   string  `json:"sim_time"`
	Speed     float64 `json:"speed"`
	Running   bool    `json:"running"`
	Units     int     `json:"units"`
	Working   int     `json:"working"`
	Blocked   int     `json:"blocked"`
	Observers int     `json:"observers"`
}

// Observer reads factory state from the public API.
type Observer struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewObserver creates an Observer targeting the given API base URL.
func NewObserver(baseURL string) *Observer {
	return &Observer{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Observe collects status and every unit's status.
func (o *Observer) Observe(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	if err := o.fetchJSON(ctx, "/api/v1/status", &snap.Status); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	if err := o.fetchJSON(ctx, "/api/v1/units", &snap.Units); err != nil {
		return nil, fmt.Errorf("units: %w", err)
	}
	return snap, nil
}

// Blocked returns the units currently reporting at least one error.
func (o *Observer) Blocked(ctx context.Context) ([]machines.Status, error) {
	var units []machines.Status
	if err := o.fetchJSON(ctx, "/api/v1/units?blocked=true", &units); err != nil {
		return nil, fmt.Errorf("blocked units: %w", err)
	}
	return units, nil
}

// Ping reports whether the API answers the status endpoint.
func (o *Observer) Ping(ctx context.Context) bool {
	var st FactoryStatus
	return o.fetchJSON(ctx, "/api/v1/status", &st) == nil
}

func (o *Observer) fetchJSON(ctx context.Context, path string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := o.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// WaitReady polls the status endpoint with exponential backoff until it
// responds or maxWait elapses.
func (o *Observer) WaitReady(ctx context.Context, maxWait time.Duration) error {
	backoff := 100 * time.Millisecond
	maxBackoff := 30 * time.Second
	deadline := time.Now().Add(maxWait)

	for {
		if o.Ping(ctx) {
			slog.Info("factory API is ready", "url", o.BaseURL)
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("factory API at %s not ready within %s", o.BaseURL, maxWait)
		}
		slog.Info("factory API not ready, retrying...", "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
