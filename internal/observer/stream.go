package observer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/talgya/mini-factory/internal/deltasync"
)

// Stream connects to GET /api/v1/stream and calls fn for every frame until
// ctx is cancelled or the server closes the stream. Cancellation is not an
// error.
func (o *Observer) Stream(ctx context.Context, fn func(event string, f deltasync.Frame)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.BaseURL+"/api/v1/stream", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The polling timeout would cut a long-lived stream.
	client := *o.HTTPClient
	client.Timeout = 0

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("GET stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET stream returned %d: %s", resp.StatusCode, string(body))
	}

	err = readEvents(resp.Body, fn)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// readEvents parses SSE records. Comment lines (heartbeats) are skipped.
func readEvents(r io.Reader, fn func(event string, f deltasync.Frame)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	event := "message"
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() > 0 {
				var f deltasync.Frame
				if err := json.Unmarshal([]byte(data.String()), &f); err != nil {
					return fmt.Errorf("decode %s frame: %w", event, err)
				}
				fn(event, f)
			}
			event = "message"
			data.Reset()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("read stream: %w", err)
	}
	return nil
}
