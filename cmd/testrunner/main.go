package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lawnchairsociety/tilecollapse/test"
)

func main() {
	serverAddr := flag.String("addr", "localhost:4480", "Watch server address")
	verbose := flag.Bool("v", false, "Verbose output - show detailed actions for each test")
	wait := flag.Duration("wait", 0, "How long to wait for the server to become healthy (0 = check once)")
	flag.Parse()

	test.Verbose = *verbose

	fmt.Printf("Running integration tests against %s\n", *serverAddr)
	if err := test.WaitForServer(*serverAddr, *wait); err != nil {
		fmt.Fprintf(os.Stderr, "Watch server not reachable: %v\n", err)
		fmt.Fprintln(os.Stderr, "Start it with: wfc -serve -addr", *serverAddr)
		os.Exit(2)
	}
	if *verbose {
		fmt.Println("Verbose mode enabled - showing detailed test actions")
	}
	fmt.Println()

	start := time.Now()
	results := test.RunAllTests(*serverAddr)
	test.PrintResults(results)
	fmt.Printf("Finished in %s\n", time.Since(start).Round(time.Millisecond))

	for _, result := range results {
		if !result.Passed {
			os.Exit(1)
		}
	}
}
