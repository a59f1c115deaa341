// Package testclient talks to a running watch server the way a viewer
// would: JSON control calls plus a WebSocket event stream.
package testclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lawnchairsociety/tilecollapse/internal/host"
)

// Resolution mirrors a resolved cell in a snapshot or run payload.
type Resolution struct {
	X        int    `json:"x"`
	Y        int    `json:"y"`
	Artwork  string `json:"artwork"`
	Rotation int    `json:"rotation"`
	Forced   bool   `json:"forced,omitempty"`
}

// Snapshot is the first message a watcher receives.
type Snapshot struct {
	Type        string       `json:"type"`
	Status      host.Status  `json:"status"`
	Resolutions []Resolution `json:"resolutions"`
}

// Run is a stored run as served by /api/runs/{id}.
type Run struct {
	ID          int64        `json:"id"`
	Seed        uint64       `json:"seed"`
	Width       int          `json:"width"`
	Height      int          `json:"height"`
	State       string       `json:"state"`
	Collapsed   int          `json:"collapsed"`
	Fingerprint string       `json:"fingerprint"`
	Resolutions []Resolution `json:"resolutions"`
}

// TestClient is one viewer connection.
type TestClient struct {
	Name    string
	baseURL string
	wsURL   string
	http    *http.Client
	conn    *websocket.Conn

	mu       sync.Mutex
	snapshot *Snapshot
	events   []host.Event
	done     chan struct{}
}

func newClient(address string) *TestClient {
	return &TestClient{
		baseURL: "http://" + address,
		wsURL:   "ws://" + address + "/ws",
		http:    &http.Client{Timeout: 5 * time.Second},
		done:    make(chan struct{}),
	}
}

// NewTestClient connects a watcher and waits for its snapshot.
func NewTestClient(name string, address string) (*TestClient, error) {
	c := newClient(address)
	c.Name = name

	conn, resp, err := websocket.DefaultDialer.Dial(c.wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snap Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if snap.Type != "snapshot" {
		conn.Close()
		return nil, fmt.Errorf("expected snapshot, got %q", snap.Type)
	}
	conn.SetReadDeadline(time.Time{})
	c.snapshot = &snap

	go c.readEvents()
	return c, nil
}

// NewTestClientRaw creates a client for the HTTP API only.
func NewTestClientRaw(address string) *TestClient {
	c := newClient(address)
	close(c.done)
	return c
}

func (c *TestClient) readEvents() {
	defer close(c.done)
	for {
		var ev host.Event
		if err := c.conn.ReadJSON(&ev); err != nil {
			return
		}
		c.mu.Lock()
		c.events = append(c.events, ev)
		c.mu.Unlock()
	}
}

// Snapshot returns the snapshot received on connect.
func (c *TestClient) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snapshot == nil {
		return Snapshot{}
	}
	return *c.snapshot
}

// Start asks the host to start a run and returns the HTTP status.
func (c *TestClient) Start() (int, error) {
	return c.post("/api/start", nil)
}

// Cancel asks the host to cancel the current run.
func (c *TestClient) Cancel() (int, error) {
	return c.post("/api/cancel", nil)
}

// Reset rebuilds the grid with seed and returns the new status.
func (c *TestClient) Reset(seed uint64) (host.Status, int, error) {
	var st host.Status
	code, err := c.post(fmt.Sprintf("/api/reset?seed=%d", seed), &st)
	return st, code, err
}

// State returns the host status.
func (c *TestClient) State() (host.Status, error) {
	var st host.Status
	code, err := c.GetJSON("/api/state", &st)
	if err == nil && code != http.StatusOK {
		err = fmt.Errorf("state returned %d", code)
	}
	return st, err
}

// GetRun loads a stored run with its resolutions.
func (c *TestClient) GetRun(id int64) (Run, int, error) {
	var run Run
	code, err := c.GetJSON(fmt.Sprintf("/api/runs/%d", id), &run)
	return run, code, err
}

// GetJSON fetches path and decodes a 2xx body into v.
func (c *TestClient) GetJSON(path string, v any) (int, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 || v == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(v)
}

func (c *TestClient) post(path string, v any) (int, error) {
	resp, err := c.http.Post(c.baseURL+path, "application/json", strings.NewReader("{}"))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 || v == nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, json.NewDecoder(resp.Body).Decode(v)
}

// GetEvents returns a copy of all events received so far.
func (c *TestClient) GetEvents() []host.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]host.Event(nil), c.events...)
}

// ClearEvents clears the event buffer.
func (c *TestClient) ClearEvents() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}

// Resolved returns the resolved events received so far, in order.
func (c *TestClient) Resolved() []host.Event {
	var out []host.Event
	for _, ev := range c.GetEvents() {
		if ev.Type == host.EventResolved {
			out = append(out, ev)
		}
	}
	return out
}

// WaitForEvent waits for an event of type t.
func (c *TestClient) WaitForEvent(t host.EventType, timeout time.Duration) (host.Event, bool) {
	return c.WaitForAnyEvent([]host.EventType{t}, timeout)
}

// WaitForAnyEvent waits for an event of any of the given types and returns
// the first one found.
func (c *TestClient) WaitForAnyEvent(types []host.EventType, timeout time.Duration) (host.Event, bool) {
	deadline := time.Now().Add(timeout)

	for {
		if ev, ok := c.findEvent(types); ok {
			return ev, true
		}
		if !time.Now().Before(deadline) {
			return host.Event{}, false
		}
		select {
		case <-c.done:
			return c.findEvent(types)
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func (c *TestClient) findEvent(types []host.EventType) (host.Event, bool) {
	for _, ev := range c.GetEvents() {
		for _, t := range types {
			if ev.Type == t {
				return ev, true
			}
		}
	}
	return host.Event{}, false
}

// Close closes the watcher connection.
func (c *TestClient) Close() error {
	if c.conn == nil {
		return nil
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	err := c.conn.Close()
	<-c.done
	return err
}
