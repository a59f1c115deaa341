package test

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/lawnchairsociety/tilecollapse/internal/testclient"
)

// uniqueCounter provides unique watcher names within a single run
var uniqueCounter uint64

func uniqueName(base string) string {
	return fmt.Sprintf("%s-%d", base, atomic.AddUint64(&uniqueCounter, 1))
}

// Verbose controls whether detailed logging is shown during tests
var Verbose = false

// TestResult represents the result of a test
type TestResult struct {
	Name    string
	Passed  bool
	Message string
}

func pass(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) TestResult {
	return TestResult{Name: name, Passed: false, Message: fmt.Sprintf(format, args...)}
}

// logAction logs a test action when verbose mode is enabled
func logAction(testName, action string) {
	if Verbose {
		fmt.Printf("  [%s] %s\n", testName, action)
	}
}

// logResult logs an expected vs actual result when verbose mode is enabled
func logResult(testName string, success bool, detail string) {
	if Verbose {
		status := "OK"
		if !success {
			status = "FAIL"
		}
		fmt.Printf("  [%s] %s: %s\n", testName, status, detail)
	}
}

// WaitForServer polls /api/health until it answers 200 or timeout passes.
// A zero timeout checks once.
func WaitForServer(serverAddr string, timeout time.Duration) error {
	client := testclient.NewTestClientRaw(serverAddr)
	deadline := time.Now().Add(timeout)
	for {
		code, err := client.GetJSON("/api/health", nil)
		if err == nil && code == http.StatusOK {
			return nil
		}
		if !time.Now().Before(deadline) {
			if err == nil {
				err = fmt.Errorf("health returned %d", code)
			}
			return err
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// RunAllTests runs every scenario against the watch server at serverAddr.
// The server's control rate limit must allow a few dozen requests.
func RunAllTests(serverAddr string) []TestResult {
	results := make([]TestResult, 0)

	// Group 1: Connection
	results = append(results, TestHealth(serverAddr))
	results = append(results, TestSnapshotOnConnect(serverAddr))
	results = append(results, TestBadSeedRejected(serverAddr))

	// Group 2: Run lifecycle
	results = append(results, TestWatchRun(serverAddr))
	results = append(results, TestFinishedRunNeedsReset(serverAddr))
	results = append(results, TestCancelRun(serverAddr))
	results = append(results, TestSeedReplay(serverAddr))
	results = append(results, TestTwoWatchersAgree(serverAddr))

	// Group 3: Run history
	results = append(results, TestRunHistory(serverAddr))

	return results
}

// PrintResults prints a summary of test results
func PrintResults(results []TestResult) {
	passed := 0
	failed := 0

	fmt.Println("============================================================")
	fmt.Println("Integration Test Results")
	fmt.Println("============================================================")
	fmt.Println()

	for _, r := range results {
		status := "PASS"
		if !r.Passed {
			status = "FAIL"
			failed++
		} else {
			passed++
		}
		fmt.Printf("[%s] %s: %s\n", status, r.Name, r.Message)
	}

	fmt.Println()
	fmt.Println("------------------------------------------------------------")
	fmt.Printf("Total: %d | Passed: %d | Failed: %d\n", len(results), passed, failed)
	fmt.Println("------------------------------------------------------------")
}
