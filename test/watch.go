package test

import (
	"fmt"
	"net/http"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/host"
	"github.com/lawnchairsociety/tilecollapse/internal/testclient"
)

var terminalEvents = []host.EventType{host.EventCompleted, host.EventFailed, host.EventCancelled}

const runTimeout = 15 * time.Second

// eventsSinceStart returns the events after the most recent started event.
func eventsSinceStart(client *testclient.TestClient) []host.Event {
	events := client.GetEvents()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Type == host.EventStarted {
			return events[i+1:]
		}
	}
	return nil
}

func resolvedSinceStart(client *testclient.TestClient) []host.Event {
	var out []host.Event
	for _, ev := range eventsSinceStart(client) {
		if ev.Type == host.EventResolved {
			out = append(out, ev)
		}
	}
	return out
}

// runToEnd resets the grid with seed, starts a run and waits for it to end.
func runToEnd(testName string, client *testclient.TestClient, seed uint64) (host.Event, error) {
	logAction(testName, fmt.Sprintf("Resetting grid with seed %d", seed))
	if _, code, err := client.Reset(seed); err != nil || code != http.StatusOK {
		return host.Event{}, fmt.Errorf("reset failed: status %d, %v", code, err)
	}
	client.ClearEvents()

	logAction(testName, "Starting run")
	if code, err := client.Start(); err != nil || code != http.StatusAccepted {
		return host.Event{}, fmt.Errorf("start failed: status %d, %v", code, err)
	}
	if _, ok := client.WaitForEvent(host.EventStarted, 2*time.Second); !ok {
		return host.Event{}, fmt.Errorf("no started event")
	}

	deadline := time.Now().Add(runTimeout)
	for time.Now().Before(deadline) {
		for _, ev := range eventsSinceStart(client) {
			for _, t := range terminalEvents {
				if ev.Type == t {
					return ev, nil
				}
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return host.Event{}, fmt.Errorf("run did not finish within %s", runTimeout)
}

// =============================================================================
// Group 1: Connection
// =============================================================================

// TestHealth checks the health endpoint.
func TestHealth(serverAddr string) TestResult {
	const testName = "Health"

	client := testclient.NewTestClientRaw(serverAddr)
	var body map[string]string
	code, err := client.GetJSON("/api/health", &body)
	if err != nil {
		return fail(testName, "Request failed: %v", err)
	}
	logResult(testName, code == http.StatusOK, fmt.Sprintf("status %d, body %v", code, body))
	if code != http.StatusOK || body["status"] != "ok" {
		return fail(testName, "Unexpected response: %d %v", code, body)
	}
	return pass(testName, "Server healthy")
}

// TestSnapshotOnConnect checks that a new watcher gets the current status.
func TestSnapshotOnConnect(serverAddr string) TestResult {
	const testName = "Snapshot On Connect"

	client, err := testclient.NewTestClient(uniqueName("snap"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	snap := client.Snapshot()
	state, err := client.State()
	if err != nil {
		return fail(testName, "State failed: %v", err)
	}
	logResult(testName, snap.Status.Total == state.Total,
		fmt.Sprintf("snapshot %dx%d, %d resolutions", snap.Status.Width, snap.Status.Height, len(snap.Resolutions)))

	if snap.Status.Total != snap.Status.Width*snap.Status.Height || snap.Status.Total != state.Total {
		return fail(testName, "Snapshot status disagrees with /api/state")
	}
	if len(snap.Resolutions) > snap.Status.Total {
		return fail(testName, "Snapshot has %d resolutions for %d cells", len(snap.Resolutions), snap.Status.Total)
	}
	return pass(testName, "Snapshot with %d resolutions", len(snap.Resolutions))
}

// TestBadSeedRejected checks that reset validates its seed.
func TestBadSeedRejected(serverAddr string) TestResult {
	const testName = "Bad Seed Rejected"

	client := testclient.NewTestClientRaw(serverAddr)
	resp, err := http.Post("http://"+serverAddr+"/api/reset?seed=banana", "application/json", nil)
	if err != nil {
		return fail(testName, "Request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		return fail(testName, "Expected 400, got %d", resp.StatusCode)
	}

	if _, err := client.State(); err != nil {
		return fail(testName, "State failed after bad reset: %v", err)
	}
	return pass(testName, "Rejected with 400")
}

// =============================================================================
// Group 2: Run lifecycle
// =============================================================================

// TestWatchRun streams one run and checks every cell is reported once.
func TestWatchRun(serverAddr string) TestResult {
	const testName = "Watch Run"

	client, err := testclient.NewTestClient(uniqueName("watch"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	end, err := runToEnd(testName, client, 1234)
	if err != nil {
		return fail(testName, "%v", err)
	}
	state, err := client.State()
	if err != nil {
		return fail(testName, "State failed: %v", err)
	}

	resolved := resolvedSinceStart(client)
	seen := make(map[[2]int]bool)
	for _, ev := range resolved {
		key := [2]int{ev.X, ev.Y}
		if seen[key] {
			return fail(testName, "Cell (%d, %d) resolved twice", ev.X, ev.Y)
		}
		seen[key] = true
	}
	logResult(testName, true, fmt.Sprintf("%s after %d resolutions", end.Type, len(resolved)))

	switch end.Type {
	case host.EventCompleted:
		if len(resolved) != state.Total {
			return fail(testName, "Completed with %d of %d cells", len(resolved), state.Total)
		}
		return pass(testName, "Completed %d cells", len(resolved))
	case host.EventFailed:
		return pass(testName, "Failed at (%d, %d) after %d cells", end.X, end.Y, len(resolved))
	default:
		return fail(testName, "Run ended with %s", end.Type)
	}
}

// TestFinishedRunNeedsReset checks that a finished grid refuses to restart.
func TestFinishedRunNeedsReset(serverAddr string) TestResult {
	const testName = "Finished Run Needs Reset"

	client, err := testclient.NewTestClient(uniqueName("finish"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	if _, err := runToEnd(testName, client, 99); err != nil {
		return fail(testName, "%v", err)
	}

	logAction(testName, "Starting again without reset")
	code, err := client.Start()
	if err != nil {
		return fail(testName, "Start failed: %v", err)
	}
	if code != http.StatusConflict {
		return fail(testName, "Expected 409, got %d", code)
	}
	return pass(testName, "Restart refused with 409")
}

// TestCancelRun cancels a run in flight.
func TestCancelRun(serverAddr string) TestResult {
	const testName = "Cancel Run"

	client, err := testclient.NewTestClient(uniqueName("cancel"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	if _, code, err := client.Reset(7); err != nil || code != http.StatusOK {
		return fail(testName, "Reset failed: %d %v", code, err)
	}
	if code, err := client.Start(); err != nil || code != http.StatusAccepted {
		return fail(testName, "Start failed: %d %v", code, err)
	}
	logAction(testName, "Cancelling")
	if code, err := client.Cancel(); err != nil || code != http.StatusAccepted {
		return fail(testName, "Cancel failed: %d %v", code, err)
	}

	end, ok := client.WaitForAnyEvent(terminalEvents, runTimeout)
	if !ok {
		return fail(testName, "Run did not end after cancel")
	}
	state, err := client.State()
	if err != nil {
		return fail(testName, "State failed: %v", err)
	}
	if state.State == "running" {
		return fail(testName, "Host still running after %s event", end.Type)
	}
	if end.Type != host.EventCancelled {
		// Small grids can finish before the cancel lands.
		return pass(testName, "Run finished (%s) before cancel arrived", end.Type)
	}
	return pass(testName, "Cancelled after %d cells", end.Collapsed)
}

// TestSeedReplay checks that the same seed gives the same run.
func TestSeedReplay(serverAddr string) TestResult {
	const testName = "Seed Replay"

	client, err := testclient.NewTestClient(uniqueName("replay"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	const seed = 424242
	var runs [2][]host.Event
	var ends [2]host.Event
	for i := range runs {
		end, err := runToEnd(testName, client, seed)
		if err != nil {
			return fail(testName, "Run %d: %v", i+1, err)
		}
		ends[i] = end
		runs[i] = resolvedSinceStart(client)
	}

	if ends[0].Type != ends[1].Type || len(runs[0]) != len(runs[1]) {
		return fail(testName, "Runs differ: %s/%d vs %s/%d", ends[0].Type, len(runs[0]), ends[1].Type, len(runs[1]))
	}
	for i := range runs[0] {
		a, b := runs[0][i], runs[1][i]
		if a.X != b.X || a.Y != b.Y || a.Artwork != b.Artwork || a.Rotation != b.Rotation {
			return fail(testName, "Resolution %d differs: %+v vs %+v", i, a, b)
		}
	}
	return pass(testName, "Seed %d replayed %d resolutions", seed, len(runs[0]))
}

// TestTwoWatchersAgree checks that two watchers see the same stream.
func TestTwoWatchersAgree(serverAddr string) TestResult {
	const testName = "Two Watchers Agree"

	a, err := testclient.NewTestClient(uniqueName("a"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect first watcher: %v", err)
	}
	defer a.Close()
	b, err := testclient.NewTestClient(uniqueName("b"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect second watcher: %v", err)
	}
	defer b.Close()

	if _, err := runToEnd(testName, a, 5150); err != nil {
		return fail(testName, "%v", err)
	}
	if _, ok := b.WaitForAnyEvent(terminalEvents, 2*time.Second); !ok {
		return fail(testName, "Second watcher saw no end of run")
	}

	ra, rb := resolvedSinceStart(a), resolvedSinceStart(b)
	if len(ra) != len(rb) {
		return fail(testName, "Watchers saw %d and %d resolutions", len(ra), len(rb))
	}
	for i := range ra {
		if ra[i] != rb[i] {
			return fail(testName, "Resolution %d differs between watchers", i)
		}
	}
	return pass(testName, "Both watchers saw %d resolutions", len(ra))
}

// =============================================================================
// Group 3: Run history
// =============================================================================

// TestRunHistory checks that a finished run is stored with its resolutions.
func TestRunHistory(serverAddr string) TestResult {
	const testName = "Run History"

	client, err := testclient.NewTestClient(uniqueName("history"), serverAddr)
	if err != nil {
		return fail(testName, "Failed to connect: %v", err)
	}
	defer client.Close()

	if code, _ := client.GetJSON("/api/runs?limit=1", nil); code == http.StatusServiceUnavailable {
		return pass(testName, "Run history disabled on this server")
	}

	before, err := client.State()
	if err != nil {
		return fail(testName, "State failed: %v", err)
	}
	if _, err := runToEnd(testName, client, 8080); err != nil {
		return fail(testName, "%v", err)
	}
	resolved := resolvedSinceStart(client)

	// The record is saved just after the end event is sent.
	var id int64
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		st, err := client.State()
		if err == nil && st.LastRunID != 0 && st.LastRunID != before.LastRunID {
			id = st.LastRunID
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if id == 0 {
		return fail(testName, "No new run ID reported")
	}

	run, code, err := client.GetRun(id)
	if err != nil || code != http.StatusOK {
		return fail(testName, "GetRun(%d) failed: %d %v", id, code, err)
	}
	logResult(testName, run.Seed == 8080, fmt.Sprintf("run %d seed %d state %s", run.ID, run.Seed, run.State))
	if run.Seed != 8080 {
		return fail(testName, "Stored seed %d, want 8080", run.Seed)
	}
	if len(run.Resolutions) != len(resolved) {
		return fail(testName, "Stored %d resolutions, watched %d", len(run.Resolutions), len(resolved))
	}
	return pass(testName, "Run %d stored with %d resolutions", id, len(run.Resolutions))
}
