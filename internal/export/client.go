// Package export ships roster snapshots to the configured sheet endpoint
// and renders the CSV pull format.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/FRC5892/HeroHours/internal/attendance"
)

// Payload is the JSON package posted to the sheet endpoint: the full roster
// plus the audit trail, and the checked-in count at snapshot time.
type Payload struct {
	Members   []attendance.Member   `json:"members"`
	Logs      []attendance.LogEntry `json:"logs"`
	CheckedIn int                   `json:"checked_in"`
	TakenAt   time.Time             `json:"taken_at"`
}

// Result is the sheet endpoint's response.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// Client posts export payloads to an Apps-Script style web endpoint.
type Client struct {
	URL  string
	HTTP *http.Client
	Skip bool
}

// New creates a client. Skip short-circuits sends for deployments without a
// sheet endpoint configured.
func New(url string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		URL:  url,
		Skip: skip || url == "",
		HTTP: &http.Client{Timeout: timeout},
	}
}

// Send posts the payload and returns the endpoint's response.
func (c *Client) Send(ctx context.Context, payload Payload) (*Result, error) {
	if c.Skip {
		return &Result{Status: "skipped"}, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheet endpoint request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("sheet endpoint error %s: %s", resp.Status, string(bodyBytes))
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Snapshot gathers the full payload from a store.
func Snapshot(ctx context.Context, store attendance.Store, now time.Time) (Payload, error) {
	members, err := store.ListMembers(ctx, attendance.MemberFilter{})
	if err != nil {
		return Payload{}, err
	}
	logs, err := store.RecentLogs(ctx, allLogsLimit, 0)
	if err != nil {
		return Payload{}, err
	}
	count, err := store.CountCheckedIn(ctx, true)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Members: members, Logs: logs, CheckedIn: count, TakenAt: now}, nil
}

// allLogsLimit bounds a snapshot; the sheet keeps history, so only the most
// recent window ships each run.
const allLogsLimit = 10000
