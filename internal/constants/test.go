package constants

import "time"

// Test Constants
//
// IMPORTANT: These constants are for testing only. DO NOT use in production code.

const (
	// TestTickInterval is the tick length used by tests that run the tick loop.
	TestTickInterval = 10 * time.Millisecond

	// TestTickWait bounds how long a test waits for the tick loop to react.
	TestTickWait = 2 * time.Second

	// TestTickWorkers is the parallelism of the sync manager in tests.
	TestTickWorkers = 4
)
