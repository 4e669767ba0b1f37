package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Actor executes admin actions via the API.
type Actor struct {
	BaseURL    string
	AdminKey   string
	HTTPClient *http.Client
}

// NewActor creates an Actor targeting the given API base URL with admin auth.
func NewActor(baseURL, adminKey string) *Actor {
	return &Actor{
		BaseURL:  baseURL,
		AdminKey: adminKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetSpeed changes the simulation speed multiplier.
func (a *Actor) SetSpeed(ctx context.Context, speed float64) error {
	return a.post(ctx, "/api/v1/speed", map[string]float64{"speed": speed})
}

// SetDisabled switches a unit off or back on.
func (a *Actor) SetDisabled(ctx context.Context, unit string, disabled bool) error {
	return a.post(ctx, "/api/v1/unit/"+unit+"/disable", map[string]bool{"disabled": disabled})
}

// Save asks the server to persist the world now.
func (a *Actor) Save(ctx context.Context) error {
	return a.post(ctx, "/api/v1/snapshot", struct{}{})
}

func (a *Actor) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.AdminKey)

	resp, err := a.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("POST %s failed (%d): %s", path, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
